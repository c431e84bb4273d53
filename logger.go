package valclient

import (
	"fmt"
	"io"
	"log"
	"os"

	tls_client "github.com/bogdanfinn/tls-client"
)

// Logger is the minimal logging surface every component writes to.
type Logger interface {
	Log(format string, args ...any)
}

type stdLogger struct {
	logger *log.Logger
}

func (s *stdLogger) Log(format string, args ...any) {
	s.logger.Printf(format, args...)
}

// NewLogger writes timestamped lines to w.
func NewLogger(w io.Writer) Logger {
	return &stdLogger{logger: log.New(w, "", log.LstdFlags)}
}

// NewFileLogger logs to stdout and appends to the file at path.
// The returned file must be closed by the caller.
func NewFileLogger(path string) (Logger, *os.File, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return NewLogger(io.MultiWriter(os.Stdout, file)), file, nil
}

type nopLogger struct{}

func (nopLogger) Log(string, ...any) {}

// NopLogger discards everything.
var NopLogger Logger = nopLogger{}

// prefixLogger wraps a logger with a component tag.
type prefixLogger struct {
	prefix string
	base   Logger
}

func (p *prefixLogger) Log(format string, args ...any) {
	p.base.Log("[%s] "+format, append([]any{p.prefix}, args...)...)
}

func withPrefix(base Logger, prefix string) Logger {
	if base == nil {
		base = NopLogger
	}
	return &prefixLogger{prefix: prefix, base: base}
}

// tlsLogger routes tls-client's internal logging into a Logger.
type tlsLogger struct {
	base Logger
}

var _ tls_client.Logger = (*tlsLogger)(nil)

func (t *tlsLogger) Debug(format string, args ...any) {}

func (t *tlsLogger) Info(format string, args ...any) {
	t.base.Log(format, args...)
}

func (t *tlsLogger) Warn(format string, args ...any) {
	t.base.Log("WARN "+format, args...)
}

func (t *tlsLogger) Error(format string, args ...any) {
	t.base.Log("ERROR "+format, args...)
}
