package valclient

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	http "github.com/bogdanfinn/fhttp"
)

// fakeDoer answers requests with a handler and records what it was asked.
type fakeDoer struct {
	mu      sync.Mutex
	handler func(req *http.Request) (*http.Response, error)
	calls   []string
	closed  bool
}

func (f *fakeDoer) Do(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.Method+" "+req.URL.Host+req.URL.Path)
	f.mu.Unlock()
	return f.handler(req)
}

func (f *fakeDoer) CloseIdleConnections() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

// count returns how many recorded calls contain substr.
func (f *fakeDoer) count(substr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, call := range f.calls {
		if strings.Contains(call, substr) {
			n++
		}
	}
	return n
}

func (f *fakeDoer) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeSession is a fakeDoer with a cookie jar slot.
type fakeSession struct {
	fakeDoer
	jar       http.CookieJar
	jarResets int
}

func (s *fakeSession) SetCookieJar(jar http.CookieJar) {
	s.jar = jar
	s.jarResets++
}

func (s *fakeSession) GetCookieJar() http.CookieJar {
	return s.jar
}

func newResponse(status int, header http.Header, body string) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode: status,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func jsonResponse(status int, body string) *http.Response {
	return newResponse(status, http.Header{"Content-Type": {"application/json; charset=utf-8"}}, body)
}

// makeToken builds an unsigned RS256-shaped JWT carrying sub and exp.
func makeToken(sub string, exp time.Time) string {
	enc := base64.RawURLEncoding
	header := enc.EncodeToString([]byte(`{"alg":"RS256","typ":"JWT"}`))
	claims := enc.EncodeToString([]byte(fmt.Sprintf(`{"sub":%q,"exp":%d,"cid":"play-valorant-web-prod"}`, sub, exp.Unix())))
	return header + "." + claims + "." + enc.EncodeToString([]byte("signature"))
}

// noSleep records requested backoff delays without waiting.
type noSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (n *noSleep) sleep(ctx context.Context, d time.Duration) error {
	n.mu.Lock()
	n.delays = append(n.delays, d)
	n.mu.Unlock()
	return ctx.Err()
}

// staticAuth is an Authenticator with fixed credentials and a scripted refresh.
type staticAuth struct {
	mu        sync.Mutex
	creds     CredentialBundle
	refresh   func() (CredentialBundle, bool, error)
	refreshes int
}

func (s *staticAuth) Credentials() (CredentialBundle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds, s.creds.Valid()
}

func (s *staticAuth) Reauthorize(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshes++
	if s.refresh == nil {
		return false, nil
	}
	creds, ok, err := s.refresh()
	if ok {
		s.creds = creds
	}
	return ok, err
}

func testCredentials(accessToken string) CredentialBundle {
	return CredentialBundle{
		AccessToken:       accessToken,
		IDToken:           "id-token",
		EntitlementsToken: "entitlements-token",
		TokenType:         "Bearer",
		ExpiresAt:         time.Now().Add(time.Hour),
		SubjectID:         "3f2c1e0a-9b8d-4c7e-a6f5-0123456789ab",
		DisplayName:       "Player",
		DisplayTag:        "EUW",
		Region:            "eu",
	}
}

// newTestGateway wires a gateway to doer with a pinned client version and
// instant backoff.
func newTestGateway(doer Doer, auth Authenticator) (*Gateway, *noSleep) {
	cfg := DefaultConfig()
	cfg.ClientVersion = "release-09.10-shipping-7-2853197"
	g := NewGateway(cfg, auth, NopLogger, WithDoer(doer))
	sleeper := &noSleep{}
	g.sleep = sleeper.sleep
	return g, sleeper
}
