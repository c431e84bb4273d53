package valclient

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	stagingPrefix = ".staging-"

	// markerFile tags a directory as written by the catalog store. Only
	// tagged directories are ever pruned.
	markerFile = ".valclient-catalog"
)

// catalogStore persists one directory per catalog version:
// <root>/<version>/<name>.json.
type catalogStore struct {
	root string
}

// versionDirName turns a version marker into a safe directory name.
func versionDirName(version string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, version)
	if name == "" || strings.Trim(name, ".") == "" {
		return "_"
	}
	return name
}

func (s catalogStore) dir(version string) string {
	return filepath.Join(s.root, versionDirName(version))
}

func fileName(name string) string {
	return name + ".json"
}

// complete reports whether the version directory holds every named file
// and none of them is empty.
func (s catalogStore) complete(version string, names []string) bool {
	dir := s.dir(version)
	for _, name := range names {
		info, err := os.Stat(filepath.Join(dir, fileName(name)))
		if err != nil || info.Size() == 0 {
			return false
		}
	}
	return true
}

// commit writes files into a staging directory and renames it into place,
// replacing any previous copy of the same version.
func (s catalogStore) commit(version string, files map[string][]byte) error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("failed to create cache root: %w", err)
	}

	staging, err := os.MkdirTemp(s.root, stagingPrefix)
	if err != nil {
		return fmt.Errorf("failed to create staging dir: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			os.RemoveAll(staging)
		}
	}()

	for name, data := range files {
		if err := os.WriteFile(filepath.Join(staging, fileName(name)), data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	if err := os.WriteFile(filepath.Join(staging, markerFile), []byte(version), 0o644); err != nil {
		return fmt.Errorf("failed to write marker: %w", err)
	}

	final := s.dir(version)
	if err := os.RemoveAll(final); err != nil {
		return fmt.Errorf("failed to replace %s: %w", final, err)
	}
	if err := os.Rename(staging, final); err != nil {
		return fmt.Errorf("failed to publish %s: %w", final, err)
	}
	committed = true
	return nil
}

// prune removes the version directories and leftover staging directories
// under root, except the one for keep. Anything the store did not write is
// left alone.
func (s catalogStore) prune(keep string) error {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	keepName := versionDirName(keep)
	var errs []error
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == keepName || !s.owned(entry.Name()) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.root, entry.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// owned reports whether the directory name under root was created by commit.
func (s catalogStore) owned(name string) bool {
	if strings.HasPrefix(name, stagingPrefix) {
		return true
	}
	info, err := os.Stat(filepath.Join(s.root, name, markerFile))
	return err == nil && info.Mode().IsRegular()
}

// load reads the named files of a version directory.
func (s catalogStore) load(version string, names []string) (map[string][]byte, error) {
	dir := s.dir(version)
	files := make(map[string][]byte, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, fileName(name)))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		files[name] = data
	}
	return files, nil
}
