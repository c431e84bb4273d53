package valclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"syscall"
	"testing"

	http "github.com/bogdanfinn/fhttp"
)

func walletRoute() Route {
	return NewRoute(http.MethodGet, SurfacePD, "/store/v1/wallet/%s", "puuid")
}

func TestGatewayAttemptCeiling(t *testing.T) {
	tests := []struct {
		name      string
		respond   func() (*http.Response, error)
		wantCalls int
		want      error
	}{
		{
			name:      "502 exhausts five attempts",
			respond:   func() (*http.Response, error) { return jsonResponse(502, `{}`), nil },
			wantCalls: maxAttempts,
			want:      ErrInternalServer,
		},
		{
			name:      "524 exhausts five attempts",
			respond:   func() (*http.Response, error) { return newResponse(524, nil, "origin timeout"), nil },
			wantCalls: maxAttempts,
			want:      ErrInternalServer,
		},
		{
			name: "connection reset exhausts five attempts",
			respond: func() (*http.Response, error) {
				return nil, fmt.Errorf("read tcp: %w", syscall.ECONNRESET)
			},
			wantCalls: maxAttempts,
			want:      syscall.ECONNRESET,
		},
		{
			name:      "403 is not retried",
			respond:   func() (*http.Response, error) { return jsonResponse(403, `{}`), nil },
			wantCalls: 1,
			want:      ErrForbidden,
		},
		{
			name:      "404 is not retried",
			respond:   func() (*http.Response, error) { return jsonResponse(404, `{}`), nil },
			wantCalls: 1,
			want:      ErrNotFound,
		},
		{
			name:      "418 is not retried",
			respond:   func() (*http.Response, error) { return jsonResponse(418, `{}`), nil },
			wantCalls: 1,
			want:      ErrHTTP,
		},
		{
			name: "rate limit is not retried",
			respond: func() (*http.Response, error) {
				return newResponse(429, http.Header{"Via": {"1.1 riot"}, "Content-Type": {"application/json"}}, `{"message":"slow down"}`), nil
			},
			wantCalls: 1,
			want:      ErrRateLimited,
		},
		{
			name:      "501 is not retried",
			respond:   func() (*http.Response, error) { return jsonResponse(501, `{}`), nil },
			wantCalls: 1,
			want:      ErrInternalServer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doer := &fakeDoer{handler: func(req *http.Request) (*http.Response, error) {
				return tt.respond()
			}}
			g, sleeper := newTestGateway(doer, &staticAuth{creds: testCredentials("token")})

			payload, err := g.Request(context.Background(), walletRoute())
			if payload != nil {
				t.Errorf("payload = %+v, want nil", payload)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if !errors.Is(err, ErrHTTP) {
				t.Errorf("err %v does not match ErrHTTP", err)
			}
			if doer.total() != tt.wantCalls {
				t.Errorf("calls = %d, want %d", doer.total(), tt.wantCalls)
			}
			if len(sleeper.delays) != max(tt.wantCalls-1, 0) {
				t.Errorf("sleeps = %v", sleeper.delays)
			}
		})
	}
}

func TestClassifyRateLimit(t *testing.T) {
	tests := []struct {
		name   string
		header http.Header
		body   string
		want   error
	}{
		{"routing header and json", http.Header{"Via": {"1.1 riot"}}, `{"errorCode":"RATE_LIMITED"}`, ErrRateLimited},
		{"no routing header, json body", http.Header{}, `{"errorCode":"RATE_LIMITED"}`, ErrHTTP},
		{"no routing header, html body", http.Header{}, `<html>blocked</html>`, ErrHTTP},
		{"routing header, html body", http.Header{"Via": {"1.1 riot"}}, `<html>blocked</html>`, ErrHTTP},
		{"routing header, empty body", http.Header{"Via": {"1.1 riot"}}, ``, ErrHTTP},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyStatus(statusInfo{
				method: http.MethodGet,
				url:    "https://pd.eu.a.pvp.net/x",
				status: 429,
				header: tt.header,
				body:   []byte(tt.body),
			}, requestOptions{})

			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if tt.want == ErrHTTP && errors.Is(err, ErrRateLimited) {
				t.Errorf("edge block classified as rate limit: %v", err)
			}
		})
	}
}

func TestGatewayNotFoundMessage(t *testing.T) {
	doer := &fakeDoer{handler: func(req *http.Request) (*http.Response, error) {
		return jsonResponse(404, `{"errorCode":"RESOURCE_NOT_FOUND"}`), nil
	}}
	g, _ := newTestGateway(doer, &staticAuth{creds: testCredentials("token")})

	_, err := g.CoregamePlayer(context.Background())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if !strings.Contains(err.Error(), notInGameMessage) {
		t.Errorf("err = %q, want message %q", err, notInGameMessage)
	}
	if doer.count("glz-eu-1.eu.a.pvp.net/core-game/v1/players/") != 1 {
		t.Errorf("calls = %v", doer.calls)
	}
}

func TestGatewayHeaders(t *testing.T) {
	var got http.Header
	doer := &fakeDoer{handler: func(req *http.Request) (*http.Response, error) {
		got = req.Header.Clone()
		return jsonResponse(200, `{"Balances":{}}`), nil
	}}
	g, _ := newTestGateway(doer, &staticAuth{creds: testCredentials("token-1")})

	if _, err := g.Wallet(context.Background()); err != nil {
		t.Fatalf("wallet failed: %v", err)
	}

	if v := got.Get("Authorization"); v != "Bearer token-1" {
		t.Errorf("Authorization = %q", v)
	}
	if v := got[headerEntitlements]; len(v) != 1 || v[0] != "entitlements-token" {
		t.Errorf("%s = %v", headerEntitlements, v)
	}
	if v := got[headerClientVersion]; len(v) != 1 || v[0] != "release-09.10-shipping-7-2853197" {
		t.Errorf("%s = %v", headerClientVersion, v)
	}
	if v := got[headerClientPlatform]; len(v) != 1 || v[0] != clientPlatform {
		t.Errorf("%s = %v", headerClientPlatform, v)
	}
	if doer.count("GET pd.eu.a.pvp.net/store/v1/wallet/3f2c1e0a-9b8d-4c7e-a6f5-0123456789ab") != 1 {
		t.Errorf("calls = %v", doer.calls)
	}
}

func TestGatewayReauthOn400(t *testing.T) {
	var mu sync.Mutex
	var tokens []string
	doer := &fakeDoer{handler: func(req *http.Request) (*http.Response, error) {
		auth := req.Header.Get("Authorization")
		mu.Lock()
		tokens = append(tokens, auth)
		mu.Unlock()
		if auth == "Bearer stale" {
			return jsonResponse(400, `{"errorCode":"BAD_CLAIMS"}`), nil
		}
		return jsonResponse(200, `{}`), nil
	}}
	auth := &staticAuth{
		creds: testCredentials("stale"),
		refresh: func() (CredentialBundle, bool, error) {
			return testCredentials("fresh"), true, nil
		},
	}
	g, _ := newTestGateway(doer, auth)

	if _, err := g.Request(context.Background(), walletRoute()); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if auth.refreshes != 1 {
		t.Errorf("refreshes = %d, want 1", auth.refreshes)
	}
	if len(tokens) != 2 || tokens[0] != "Bearer stale" || tokens[1] != "Bearer fresh" {
		t.Errorf("authorization headers = %v", tokens)
	}
}

func TestGatewayReauthDisabled(t *testing.T) {
	doer := &fakeDoer{handler: func(req *http.Request) (*http.Response, error) {
		return jsonResponse(400, `{}`), nil
	}}
	auth := &staticAuth{creds: testCredentials("token")}
	g, _ := newTestGateway(doer, auth)

	_, err := g.Request(context.Background(), walletRoute(), WithReauth(false))
	var he *HTTPError
	if !errors.As(err, &he) || he.Status != 400 {
		t.Fatalf("err = %v", err)
	}
	if auth.refreshes != 0 || doer.total() != 1 {
		t.Errorf("refreshes = %d, calls = %d", auth.refreshes, doer.total())
	}
}

func TestGatewayNotAuthenticated(t *testing.T) {
	doer := &fakeDoer{handler: func(req *http.Request) (*http.Response, error) {
		return jsonResponse(200, `{}`), nil
	}}
	g, _ := newTestGateway(doer, &staticAuth{})

	_, err := g.Request(context.Background(), walletRoute())
	if !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("err = %v, want ErrNotAuthenticated", err)
	}
	if doer.total() != 0 {
		t.Errorf("request sent without credentials")
	}
}

func TestGatewayClose(t *testing.T) {
	doer := &fakeDoer{handler: func(req *http.Request) (*http.Response, error) {
		return jsonResponse(200, `{"status":200,"data":{"version":"1"}}`), nil
	}}
	g, _ := newTestGateway(doer, nil)

	if _, err := g.FetchVersion(context.Background()); err != nil {
		t.Fatalf("fetch version failed: %v", err)
	}
	if err := g.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if !doer.closed {
		t.Error("idle connections not closed")
	}
	if _, err := g.FetchVersion(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
}

func TestGatewayLazyDial(t *testing.T) {
	dials := 0
	doer := &fakeDoer{handler: func(req *http.Request) (*http.Response, error) {
		return jsonResponse(200, `{"status":200,"data":{"version":"1"}}`), nil
	}}
	g, _ := newTestGateway(doer, nil)
	g.dial = func() (Doer, error) {
		dials++
		return doer, nil
	}

	if dials != 0 {
		t.Fatal("dialed before first request")
	}
	for range 3 {
		if _, err := g.FetchVersion(context.Background()); err != nil {
			t.Fatalf("fetch version failed: %v", err)
		}
	}
	if dials != 1 {
		t.Errorf("dials = %d, want 1", dials)
	}
}

func TestGatewayClientVersionFromCatalog(t *testing.T) {
	doer := &fakeDoer{handler: func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/v1/version" {
			return jsonResponse(200, `{"status":200,"data":{"version":"09.10.00.2853197","riotClientVersion":"release-09.10-shipping-7-2853197"}}`), nil
		}
		return jsonResponse(200, `{}`), nil
	}}
	g := NewGateway(DefaultConfig(), &staticAuth{creds: testCredentials("token")}, NopLogger, WithDoer(doer))

	for range 2 {
		if _, err := g.Wallet(context.Background()); err != nil {
			t.Fatalf("wallet failed: %v", err)
		}
	}
	if n := doer.count("/v1/version"); n != 1 {
		t.Errorf("version lookups = %d, want 1", n)
	}
}

func TestPayload(t *testing.T) {
	p := &Payload{Status: 200, ContentType: "text/plain", Body: []byte("ok")}
	if p.IsJSON() {
		t.Error("text payload reported as JSON")
	}
	var v any
	if err := p.Decode(&v); err == nil {
		t.Error("decoding a text payload succeeded")
	}
	if p.Text() != "ok" {
		t.Errorf("text = %q", p.Text())
	}
}
