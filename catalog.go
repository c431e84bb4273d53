package valclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	http "github.com/bogdanfinn/fhttp"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
)

// Collection names a catalog collection. The value is the catalog service path.
type Collection string

const (
	CollectionAgents           Collection = "agents"
	CollectionBuddies          Collection = "buddies"
	CollectionBundles          Collection = "bundles"
	CollectionCeremonies       Collection = "ceremonies"
	CollectionCompetitiveTiers Collection = "competitivetiers"
	CollectionContentTiers     Collection = "contenttiers"
	CollectionContracts        Collection = "contracts"
	CollectionCurrencies       Collection = "currencies"
	CollectionEvents           Collection = "events"
	CollectionGameModes        Collection = "gamemodes"
	CollectionGear             Collection = "gear"
	CollectionLevelBorders     Collection = "levelborders"
	CollectionMaps             Collection = "maps"
	CollectionMissions         Collection = "missions"
	CollectionPlayerCards      Collection = "playercards"
	CollectionPlayerTitles     Collection = "playertitles"
	CollectionSeasons          Collection = "seasons"
	CollectionSprays           Collection = "sprays"
	CollectionThemes           Collection = "themes"
	CollectionWeapons          Collection = "weapons"

	// Derived from weapons at load time.
	CollectionWeaponSkins       Collection = "weaponskins"
	CollectionWeaponSkinLevels  Collection = "weaponskinlevels"
	CollectionWeaponSkinChromas Collection = "weaponskinchromas"

	// bundlePricesFile holds the companion price list next to the collections.
	bundlePricesFile = "bundleprices"
)

// catalogCollections are fetched from the catalog service on every refresh.
var catalogCollections = []Collection{
	CollectionAgents,
	CollectionBuddies,
	CollectionBundles,
	CollectionCeremonies,
	CollectionCompetitiveTiers,
	CollectionContentTiers,
	CollectionContracts,
	CollectionCurrencies,
	CollectionEvents,
	CollectionGameModes,
	CollectionGear,
	CollectionLevelBorders,
	CollectionMaps,
	CollectionMissions,
	CollectionPlayerCards,
	CollectionPlayerTitles,
	CollectionSeasons,
	CollectionSprays,
	CollectionThemes,
	CollectionWeapons,
}

// storedFiles lists every file a complete version directory holds.
func storedFiles() []string {
	names := make([]string, 0, len(catalogCollections)+1)
	for _, col := range catalogCollections {
		names = append(names, string(col))
	}
	return append(names, bundlePricesFile)
}

// Record is one raw catalog entry.
type Record = map[string]any

// snapshot is an immutable, fully built index. Readers never see a partial one.
type snapshot struct {
	version     string
	collections map[Collection]map[string]Record
}

// Catalog keeps a UUID-indexed copy of the game catalog in sync with the
// version the catalog service publishes, persisted under one directory.
type Catalog struct {
	gateway     *Gateway
	store       catalogStore
	logger      Logger
	language    string
	concurrency int

	refreshMu sync.Mutex
	current   atomic.Pointer[snapshot]
}

// NewCatalog creates an empty catalog. Call Refresh before looking anything up.
func NewCatalog(cfg Config, gateway *Gateway, logger Logger) *Catalog {
	language := cfg.Language
	if language == "" {
		language = "all"
	}
	return &Catalog{
		gateway:     gateway,
		store:       catalogStore{root: cfg.CacheDir},
		logger:      withPrefix(logger, "catalog"),
		language:    language,
		concurrency: cfg.FetchConcurrency,
	}
}

// Version returns the version of the loaded snapshot, or "" before the first
// successful Refresh.
func (c *Catalog) Version() string {
	if snap := c.current.Load(); snap != nil {
		return snap.version
	}
	return ""
}

// Refresh brings the catalog up to the published version. A changed version,
// a missing or incomplete version directory, or force triggers a full
// refetch. Any failure leaves the loaded snapshot and the disk untouched.
func (c *Catalog) Refresh(ctx context.Context, force bool) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	info, err := c.gateway.FetchVersion(ctx)
	if err != nil {
		return fmt.Errorf("catalog version: %w", err)
	}
	version := info.Version

	onDisk := c.store.complete(version, storedFiles())
	if cur := c.current.Load(); !force && onDisk && cur != nil && cur.version == version {
		return nil
	}

	if force || !onDisk {
		c.logger.Log("Fetching catalog %s (force=%v)", version, force)
		files, err := c.fetchAll(ctx)
		if err != nil {
			return fmt.Errorf("catalog fetch: %w", err)
		}
		if err := c.store.commit(version, files); err != nil {
			return fmt.Errorf("catalog store: %w", err)
		}
	} else {
		c.logger.Log("Reusing cached catalog %s", version)
	}
	if err := c.store.prune(version); err != nil {
		c.logger.Log("Failed to remove old catalog versions: %v", err)
	}

	files, err := c.store.load(version, storedFiles())
	if err != nil {
		return fmt.Errorf("catalog load: %w", err)
	}
	snap, err := buildSnapshot(version, files)
	if err != nil {
		return fmt.Errorf("catalog load: %w", err)
	}

	c.current.Store(snap)
	c.logger.Log("Loaded catalog %s", version)
	return nil
}

// fetchAll downloads every collection and the price list concurrently. It
// returns only when all succeeded; the first failure cancels the rest.
func (c *Catalog) fetchAll(ctx context.Context) (map[string][]byte, error) {
	names := storedFiles()
	results := make([][]byte, len(names))

	g, gctx := errgroup.WithContext(ctx)
	if c.concurrency > 0 {
		g.SetLimit(c.concurrency)
	}
	for i, name := range names {
		g.Go(func() error {
			route := NewRoute(http.MethodGet, SurfaceBundlePrices, "")
			if name != bundlePricesFile {
				route = NewRoute(http.MethodGet, SurfaceCatalog, "/v1/%s", name).
					WithQuery(url.Values{"language": {c.language}})
			}
			env, err := RequestJSON[catalogEnvelope[json.RawMessage]](gctx, c.gateway, route)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			if len(env.Data) == 0 {
				return fmt.Errorf("%s: response has no data", name)
			}
			results[i] = env.Data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	files := make(map[string][]byte, len(names))
	for i, name := range names {
		files[name] = results[i]
	}
	return files, nil
}

// Get returns the record with the given UUID.
func (c *Catalog) Get(col Collection, id string) (Record, bool) {
	snap := c.current.Load()
	if snap == nil {
		return nil, false
	}
	rec, ok := snap.collections[col][normalizeID(id)]
	return rec, ok
}

// Len returns the number of records in col.
func (c *Catalog) Len(col Collection) int {
	snap := c.current.Load()
	if snap == nil {
		return 0
	}
	return len(snap.collections[col])
}

// IDs returns the UUIDs in col in ascending order.
func (c *Catalog) IDs(col Collection) []string {
	snap := c.current.Load()
	if snap == nil {
		return nil
	}
	ids := make([]string, 0, len(snap.collections[col]))
	for id := range snap.collections[col] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// FindByDisplayName looks key up as a UUID first, then as a case-insensitive
// exact or prefix match against every localized display name. An exact match
// wins over a prefix match; among equals the smallest UUID wins.
func (c *Catalog) FindByDisplayName(col Collection, key string) (Record, bool) {
	if _, err := uuid.Parse(key); err == nil {
		return c.Get(col, key)
	}

	snap := c.current.Load()
	if snap == nil {
		return nil, false
	}
	fold := cases.Fold()
	needle := fold.String(strings.TrimSpace(key))
	if needle == "" {
		return nil, false
	}

	const (
		noMatch = iota
		prefixMatch
		exactMatch
	)
	bestRank, bestID := noMatch, ""
	for id, rec := range snap.collections[col] {
		rank := noMatch
		for _, name := range displayNames(rec) {
			folded := fold.String(name)
			if folded == needle {
				rank = exactMatch
				break
			}
			if strings.HasPrefix(folded, needle) {
				rank = prefixMatch
			}
		}
		if rank == noMatch {
			continue
		}
		if rank > bestRank || (rank == bestRank && id < bestID) {
			bestRank, bestID = rank, id
		}
	}
	if bestRank == noMatch {
		return nil, false
	}
	return snap.collections[col][bestID], true
}

// displayNames returns every variant of a record's displayName, which is a
// plain string for a single language and a language map for "all".
func displayNames(rec Record) []string {
	switch v := rec["displayName"].(type) {
	case string:
		return []string{v}
	case map[string]any:
		names := make([]string, 0, len(v))
		for _, name := range v {
			if s, ok := name.(string); ok && s != "" {
				names = append(names, s)
			}
		}
		return names
	default:
		return nil
	}
}

// normalizeID returns the canonical lowercase form of a UUID, or id lowercased
// when it does not parse.
func normalizeID(id string) string {
	if parsed, err := uuid.Parse(id); err == nil {
		return parsed.String()
	}
	return strings.ToLower(strings.TrimSpace(id))
}
