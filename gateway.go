package valclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	http "github.com/bogdanfinn/fhttp"
	"golang.org/x/sync/singleflight"
)

// Authenticator supplies credentials to the gateway and refreshes them.
// *AuthSession implements it.
type Authenticator interface {
	Credentials() (CredentialBundle, bool)
	Reauthorize(ctx context.Context) (bool, error)
}

const (
	headerEntitlements   = "X-Riot-Entitlements-JWT"
	headerClientPlatform = "X-Riot-ClientPlatform"
	headerClientVersion  = "X-Riot-ClientVersion"

	// rateLimitRoutingHeader is set by the provider's own front end. A 429
	// without it came from the edge network, not from the API.
	rateLimitRoutingHeader = "Via"
)

// clientPlatform is the base64 platform descriptor the native client sends.
var clientPlatform = base64.StdEncoding.EncodeToString([]byte(
	`{"platformType":"PC","platformOS":"Windows","platformOSVersion":"10.0.19042.1.256.64bit","platformChipset":"Unknown"}`,
))

// Payload is a successful response. Decode it when IsJSON, otherwise use Text.
type Payload struct {
	Status      int
	ContentType string
	Body        []byte
}

// IsJSON reports whether the response declared a JSON content type.
func (p *Payload) IsJSON() bool {
	return isJSONContentType(p.ContentType)
}

// Decode unmarshals a JSON payload into v.
func (p *Payload) Decode(v any) error {
	if !p.IsJSON() {
		return fmt.Errorf("payload is %q, not JSON", p.ContentType)
	}
	return json.Unmarshal(p.Body, v)
}

// Text returns the raw body.
func (p *Payload) Text() string {
	return string(p.Body)
}

type requestOptions struct {
	body     any
	headers  map[string]string
	reauth   *bool
	notFound string
}

// RequestOption customizes one gateway call.
type RequestOption func(*requestOptions)

// WithJSONBody sends v as the JSON request body.
func WithJSONBody(v any) RequestOption {
	return func(o *requestOptions) {
		o.body = v
	}
}

// WithHeader adds a request header.
func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) {
		if o.headers == nil {
			o.headers = map[string]string{}
		}
		o.headers[key] = value
	}
}

// WithReauth controls whether a 400 triggers one silent re-authentication.
// Authenticated surfaces default to true.
func WithReauth(enabled bool) RequestOption {
	return func(o *requestOptions) {
		o.reauth = &enabled
	}
}

// WithNotFound replaces the message of a 404, for endpoints where not found
// has a meaning (e.g. not currently in a match).
func WithNotFound(message string) RequestOption {
	return func(o *requestOptions) {
		o.notFound = message
	}
}

// connState tracks the lazily created connection pool.
type connState int

const (
	connIdle connState = iota
	connOpen
	connClosed
)

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithDoer makes the gateway send through d instead of dialing its own pool.
func WithDoer(d Doer) GatewayOption {
	return func(g *Gateway) {
		g.dial = func() (Doer, error) { return d, nil }
	}
}

// WithBaseURL points a surface at another host, e.g. a local mock.
func WithBaseURL(surface Surface, base string) GatewayOption {
	return func(g *Gateway) {
		if g.urls.overrides == nil {
			g.urls.overrides = map[Surface]string{}
		}
		g.urls.overrides[surface] = strings.TrimRight(base, "/")
	}
}

// Gateway executes calls against every API surface with bounded retries,
// uniform error classification and transparent re-authentication.
type Gateway struct {
	cfg    Config
	auth   Authenticator
	logger Logger
	urls   baseURLs

	dial    func() (Doer, error)
	backoff func(attempt int) time.Duration
	sleep   func(context.Context, time.Duration) error

	connMu sync.Mutex
	state  connState
	client Doer

	headersMu    sync.RWMutex
	headers      http.Header
	headersToken string
	version      string

	reauthGroup singleflight.Group
}

// NewGateway builds a gateway. auth may be nil for catalog-only use.
func NewGateway(cfg Config, auth Authenticator, logger Logger, opts ...GatewayOption) *Gateway {
	logger = withPrefix(logger, "gateway")
	g := &Gateway{
		cfg:    cfg,
		auth:   auth,
		logger: logger,
		urls: baseURLs{
			catalog:      cfg.CatalogBaseURL,
			bundlePrices: cfg.BundlePricesURL,
		},
		backoff: defaultBackoff,
		sleep:   sleepContext,
	}
	g.dial = func() (Doer, error) {
		return NewGatewayTransport(logger, cfg.Proxy, cfg.TimeoutSeconds)
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// conn returns the pooled client, creating it on first use.
func (g *Gateway) conn() (Doer, error) {
	g.connMu.Lock()
	defer g.connMu.Unlock()

	switch g.state {
	case connOpen:
		return g.client, nil
	case connClosed:
		return nil, ErrClosed
	}

	client, err := g.dial()
	if err != nil {
		return nil, fmt.Errorf("failed to create http client: %w", err)
	}
	g.client = client
	g.state = connOpen
	return client, nil
}

// Close releases the connection pool. Later calls fail with ErrClosed.
func (g *Gateway) Close() error {
	g.connMu.Lock()
	defer g.connMu.Unlock()

	if g.state == connOpen {
		if c, ok := g.client.(interface{ CloseIdleConnections() }); ok {
			c.CloseIdleConnections()
		}
	}
	g.client = nil
	g.state = connClosed
	return nil
}

// Request executes route and returns the successful payload or a classified error.
func (g *Gateway) Request(ctx context.Context, route Route, opts ...RequestOption) (*Payload, error) {
	var o requestOptions
	for _, opt := range opts {
		opt(&o)
	}
	reauth := route.Surface.authenticated()
	if o.reauth != nil {
		reauth = *o.reauth
	}

	fn := g.attempt(route, o)
	if reauth && g.auth != nil {
		fn = reauthOnce(g.reauthorize, fn)
	}
	return retry(ctx, maxAttempts, g.sleep, fn)
}

// RequestJSON executes route and decodes the JSON payload into T.
func RequestJSON[T any](ctx context.Context, g *Gateway, route Route, opts ...RequestOption) (T, error) {
	var result T
	payload, err := g.Request(ctx, route, opts...)
	if err != nil {
		return result, err
	}
	if err := payload.Decode(&result); err != nil {
		return result, fmt.Errorf("%s: failed to parse response: %w", route, err)
	}
	return result, nil
}

// attempt returns the single-shot call the retry layers wrap.
func (g *Gateway) attempt(route Route, o requestOptions) attemptFunc {
	return func(ctx context.Context, attempt int) (*Payload, error) {
		client, err := g.conn()
		if err != nil {
			return nil, err
		}

		req, err := g.newRequest(ctx, route, o)
		if err != nil {
			return nil, err
		}

		resp, err := client.Do(req)
		if err != nil {
			g.logger.Log("%s %s -> error: %v (attempt %d/%d)", req.Method, req.URL.Path, err, attempt+1, maxAttempts)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if IsConnectionReset(err) {
				return nil, &retryableError{
					err: &HTTPError{
						Kind:   ErrHTTP,
						Method: req.Method,
						URL:    req.URL.String(),
						Cause:  err,
					},
					delay: g.backoff(attempt),
				}
			}
			return nil, fmt.Errorf("%s: %w", route, err)
		}
		defer resp.Body.Close()
		g.logger.Log("%s %s -> %d (attempt %d/%d)", req.Method, req.URL.Path, resp.StatusCode, attempt+1, maxAttempts)

		body, err := readResponseBody(resp)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to read response: %w", route, err)
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return &Payload{
				Status:      resp.StatusCode,
				ContentType: resp.Header.Get("Content-Type"),
				Body:        body,
			}, nil
		}

		classified := classifyStatus(statusInfo{
			method: req.Method,
			url:    req.URL.String(),
			status: resp.StatusCode,
			header: resp.Header,
			body:   body,
		}, o)
		if transientStatuses[resp.StatusCode] {
			return nil, &retryableError{err: classified, delay: g.backoff(attempt)}
		}
		return nil, classified
	}
}

func (g *Gateway) newRequest(ctx context.Context, route Route, o requestOptions) (*http.Request, error) {
	region, shard := g.location()
	rawURL, err := g.urls.url(route, region, shard)
	if err != nil {
		return nil, err
	}

	body, _, err := jsonBody(o.body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, route.Method, rawURL, body)
	if err != nil {
		return nil, err
	}

	req.Header = http.Header{
		"User-Agent":      {"ShooterGame/13 Windows/10.0.19043.1.256.64bit"},
		"Accept":          {"application/json"},
		"Accept-Encoding": {"gzip, deflate, br"},
		http.HeaderOrderKey: {
			"Authorization",
			headerEntitlements,
			headerClientPlatform,
			headerClientVersion,
			"Content-Type",
			"User-Agent",
			"Accept",
			"Accept-Encoding",
		},
		http.PHeaderOrderKey: PseudoHeaderOrder,
	}
	if o.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if route.Surface.authenticated() {
		headers, err := g.authHeaders(ctx)
		if err != nil {
			return nil, err
		}
		for key, values := range headers {
			req.Header[key] = values
		}
	}
	for key, value := range o.headers {
		req.Header.Set(key, value)
	}
	return req, nil
}

// location returns the region and shard sharded URLs are built from.
func (g *Gateway) location() (region, shard string) {
	region, shard = g.cfg.Region, g.cfg.Shard
	if region == "" && g.auth != nil {
		if creds, ok := g.auth.Credentials(); ok {
			region = strings.ToLower(creds.Region)
		}
	}
	if shard == "" && region != "" {
		shard, _ = shardForRegion(region)
	}
	return region, shard
}

// authHeaders returns the four auth-dependent headers, rebuilding them when
// the access token changed since they were built.
func (g *Gateway) authHeaders(ctx context.Context) (http.Header, error) {
	if g.auth == nil {
		return nil, ErrNotAuthenticated
	}
	creds, ok := g.auth.Credentials()
	if !ok {
		return nil, ErrNotAuthenticated
	}

	g.headersMu.RLock()
	headers, token := g.headers, g.headersToken
	g.headersMu.RUnlock()
	if headers != nil && token == creds.AccessToken {
		return headers, nil
	}
	return g.rebuildHeaders(ctx)
}

// rebuildHeaders recomputes the auth headers from the current credentials.
func (g *Gateway) rebuildHeaders(ctx context.Context) (http.Header, error) {
	creds, ok := g.auth.Credentials()
	if !ok {
		return nil, ErrNotAuthenticated
	}
	version, err := g.ClientVersion(ctx)
	if err != nil {
		return nil, err
	}

	headers := http.Header{
		"Authorization":      {creds.TokenType + " " + creds.AccessToken},
		headerEntitlements:   {creds.EntitlementsToken},
		headerClientPlatform: {clientPlatform},
		headerClientVersion:  {version},
	}

	g.headersMu.Lock()
	g.headers = headers
	g.headersToken = creds.AccessToken
	g.headersMu.Unlock()
	return headers, nil
}

// reauthorize runs one silent re-authentication shared by every call that
// hit a 400 at the same time, then rebuilds the headers.
func (g *Gateway) reauthorize(ctx context.Context) (bool, error) {
	v, err, _ := g.reauthGroup.Do("reauthorize", func() (any, error) {
		g.logger.Log("Credentials rejected, reauthorizing...")
		ok, err := g.auth.Reauthorize(ctx)
		if err != nil || !ok {
			return false, err
		}
		if _, err := g.rebuildHeaders(ctx); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// ClientVersion returns the configured client version, falling back to the
// one the catalog service publishes.
func (g *Gateway) ClientVersion(ctx context.Context) (string, error) {
	if v := g.cfg.resolveClientVersion(); v != "" {
		return v, nil
	}

	g.headersMu.RLock()
	version := g.version
	g.headersMu.RUnlock()
	if version != "" {
		return version, nil
	}

	info, err := g.FetchVersion(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve client version: %w", err)
	}
	if info.RiotClientVersion == "" {
		return "", fmt.Errorf("resolve client version: catalog returned none")
	}

	g.headersMu.Lock()
	g.version = info.RiotClientVersion
	g.headersMu.Unlock()
	return info.RiotClientVersion, nil
}

// statusInfo is what classification looks at.
type statusInfo struct {
	method string
	url    string
	status int
	header http.Header
	body   []byte
}

// classifyStatus maps a non-success response to the transport error taxonomy.
func classifyStatus(info statusInfo, o requestOptions) error {
	he := &HTTPError{
		Kind:   ErrHTTP,
		Method: info.method,
		URL:    info.url,
		Status: info.status,
		Body:   info.body,
	}

	switch {
	case info.status == http.StatusTooManyRequests:
		if info.header.Get(rateLimitRoutingHeader) == "" || !isStructuredJSON(info.body) {
			he.Message = "blocked by edge network"
			return he
		}
		he.Kind = ErrRateLimited
	case info.status == http.StatusForbidden:
		he.Kind = ErrForbidden
	case info.status == http.StatusNotFound:
		he.Kind = ErrNotFound
		he.Message = o.notFound
	case info.status >= 500:
		he.Kind = ErrInternalServer
	}
	return he
}

// isStructuredJSON reports whether body is a JSON object or array.
func isStructuredJSON(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || (trimmed[0] != '{' && trimmed[0] != '[') {
		return false
	}
	return json.Valid(trimmed)
}
