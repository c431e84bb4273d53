package valclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	http "github.com/bogdanfinn/fhttp"
	tls_client "github.com/bogdanfinn/tls-client"
	"golang.org/x/sync/errgroup"
)

// AuthState is where an AuthSession is in the login lifecycle.
type AuthState int32

const (
	StateUnauthenticated AuthState = iota
	StateAuthorizing
	StateAuthenticated
	StateReauthorizing
)

func (s AuthState) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthorizing:
		return "authorizing"
	case StateAuthenticated:
		return "authenticated"
	case StateReauthorizing:
		return "reauthorizing"
	default:
		return fmt.Sprintf("AuthState(%d)", int32(s))
	}
}

// Discriminator values of the authorization endpoint's "type" field.
const (
	responseTypeResponse    = "response"
	responseTypeAuth        = "auth"
	responseTypeMultifactor = "multifactor"

	authErrorFailure     = "auth_failure"
	authErrorRateLimited = "rate_limited"
)

// SessionClient is the cookie-aware HTTP client the handshake runs on.
// tls_client.HttpClient satisfies it.
type SessionClient interface {
	Doer
	SetCookieJar(jar http.CookieJar)
	GetCookieJar() http.CookieJar
}

// AuthSession runs the login handshake against the identity provider and owns
// the resulting credentials plus the cookie jar used for silent refresh.
type AuthSession struct {
	client    SessionClient
	newJar    func() http.CookieJar
	logger    Logger
	userAgent string

	// handshake serializes Authorize and Reauthorize: they share the jar.
	handshake sync.Mutex
	state     atomic.Int32

	mu    sync.RWMutex
	creds CredentialBundle
}

// NewAuthSession wraps client, which should present the native client's TLS
// fingerprint (see NewAuthTransport).
func NewAuthSession(client SessionClient, logger Logger) *AuthSession {
	return &AuthSession{
		client: client,
		newJar: func() http.CookieJar {
			return tls_client.NewCookieJar()
		},
		logger:    withPrefix(logger, "auth"),
		userAgent: RiotClientUserAgent,
	}
}

// State returns the current lifecycle state.
func (a *AuthSession) State() AuthState {
	return AuthState(a.state.Load())
}

func (a *AuthSession) setState(s AuthState) {
	a.state.Store(int32(s))
}

// Credentials returns the current bundle and whether it is valid.
func (a *AuthSession) Credentials() (CredentialBundle, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.creds, a.creds.Valid()
}

// Authorize runs the full handshake. Non-empty credentials start from a fresh
// cookie jar; empty ones reuse the stored session cookies.
func (a *AuthSession) Authorize(ctx context.Context, username, password string) (CredentialBundle, error) {
	a.handshake.Lock()
	defer a.handshake.Unlock()
	return a.authorize(ctx, username, password, StateAuthorizing)
}

// Reauthorize silently refreshes the credentials with the stored cookies.
// It returns false, nil when the provider no longer accepts the session;
// transport and protocol failures are returned as errors.
func (a *AuthSession) Reauthorize(ctx context.Context) (bool, error) {
	a.handshake.Lock()
	defer a.handshake.Unlock()

	if _, err := a.authorize(ctx, "", "", StateReauthorizing); err != nil {
		if errors.Is(err, ErrAuthenticationFailed) {
			a.logger.Log("Silent refresh rejected, session expired")
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (a *AuthSession) authorize(ctx context.Context, username, password string, during AuthState) (CredentialBundle, error) {
	a.setState(during)

	bundle, err := a.runHandshake(ctx, username, password)
	if err != nil {
		a.mu.Lock()
		a.creds = CredentialBundle{}
		a.mu.Unlock()
		a.setState(StateUnauthenticated)
		return CredentialBundle{}, err
	}

	a.mu.Lock()
	a.creds = bundle
	a.mu.Unlock()
	a.setState(StateAuthenticated)
	a.logger.Log("Authenticated as %s (%s)", bundle.RiotID(), bundle.Region)
	return bundle, nil
}

func (a *AuthSession) runHandshake(ctx context.Context, username, password string) (CredentialBundle, error) {
	if username != "" || password != "" {
		a.client.SetCookieJar(a.newJar())
	}

	res, err := a.postAuthorizationIntent(ctx)
	if err != nil {
		return CredentialBundle{}, err
	}

	if res.Type != responseTypeResponse {
		res, err = a.putCredentials(ctx, username, password)
		if err != nil {
			return CredentialBundle{}, err
		}
		if err := res.err(); err != nil {
			return CredentialBundle{}, err
		}
	}

	tokens, err := parseRedirectTokens(res.Response.Parameters.URI)
	if err != nil {
		return CredentialBundle{}, err
	}
	claims, err := decodeAccessTokenClaims(tokens.AccessToken)
	if err != nil {
		return CredentialBundle{}, err
	}

	entitlements, err := a.fetchEntitlementsToken(ctx, tokens.AccessToken)
	if err != nil {
		return CredentialBundle{}, err
	}

	parts := credentialParts{
		tokens:       tokens,
		claims:       claims,
		entitlements: entitlements,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		info, err := a.fetchUserInfo(gctx, tokens.AccessToken)
		if err != nil {
			return err
		}
		parts.displayName = info.Account.GameName
		parts.displayTag = info.Account.TagLine
		return nil
	})
	g.Go(func() error {
		region, err := a.fetchRegion(gctx, tokens.AccessToken, tokens.IDToken)
		if err != nil {
			return err
		}
		parts.region = region
		return nil
	})
	if err := g.Wait(); err != nil {
		return CredentialBundle{}, err
	}

	return newCredentialBundle(parts)
}

// authorizationResponse is the body of both authorization calls.
type authorizationResponse struct {
	Type     string `json:"type"`
	Error    string `json:"error"`
	Response struct {
		Parameters struct {
			URI string `json:"uri"`
		} `json:"parameters"`
	} `json:"response"`
	Multifactor *struct {
		Email  string `json:"email"`
		Method string `json:"method"`
	} `json:"multifactor"`
}

// err maps the discriminator and sub-error to the auth error taxonomy.
func (r *authorizationResponse) err() error {
	switch r.Type {
	case responseTypeResponse:
		return nil
	case responseTypeAuth:
		switch r.Error {
		case authErrorFailure:
			return &AuthError{Kind: ErrAuthenticationFailed, Code: r.Error}
		case authErrorRateLimited:
			return &AuthError{Kind: ErrLoginRateLimited, Code: r.Error}
		default:
			return &AuthError{Kind: ErrUnknownAuthError, Code: r.Error}
		}
	case responseTypeMultifactor:
		code := ""
		if r.Multifactor != nil {
			code = r.Multifactor.Method
		}
		return &AuthError{Kind: ErrMultifactorRequired, Code: code}
	default:
		return &AuthError{Kind: ErrUnknownResponseType, Code: r.Type}
	}
}

func (a *AuthSession) postAuthorizationIntent(ctx context.Context) (*authorizationResponse, error) {
	payload := map[string]any{
		"client_id":     "play-valorant-web-prod",
		"nonce":         "1",
		"redirect_uri":  "https://playvalorant.com/opt_in",
		"response_type": "token id_token",
		"scope":         "account openid",
	}

	var res authorizationResponse
	if err := a.doJSON(ctx, http.MethodPost, authBaseURL+authorizationPath, "", payload, &res); err != nil {
		return nil, fmt.Errorf("authorization intent: %w", err)
	}
	return &res, nil
}

func (a *AuthSession) putCredentials(ctx context.Context, username, password string) (*authorizationResponse, error) {
	payload := map[string]any{
		"type":     responseTypeAuth,
		"username": username,
		"password": password,
		"remember": true,
	}

	var res authorizationResponse
	if err := a.doJSON(ctx, http.MethodPut, authBaseURL+authorizationPath, "", payload, &res); err != nil {
		return nil, fmt.Errorf("authorization credentials: %w", err)
	}
	return &res, nil
}

func (a *AuthSession) fetchEntitlementsToken(ctx context.Context, accessToken string) (string, error) {
	var res struct {
		EntitlementsToken string `json:"entitlements_token"`
	}
	if err := a.doJSON(ctx, http.MethodPost, entitlementsBaseURL+entitlementsPath, accessToken, map[string]any{}, &res); err != nil {
		return "", fmt.Errorf("entitlements: %w", err)
	}
	if res.EntitlementsToken == "" {
		return "", fmt.Errorf("entitlements: empty token")
	}
	return res.EntitlementsToken, nil
}

type userInfoResponse struct {
	Subject string `json:"sub"`
	Account struct {
		GameName string `json:"game_name"`
		TagLine  string `json:"tag_line"`
	} `json:"acct"`
}

func (a *AuthSession) fetchUserInfo(ctx context.Context, accessToken string) (*userInfoResponse, error) {
	var res userInfoResponse
	if err := a.doJSON(ctx, http.MethodPost, authBaseURL+userInfoPath, accessToken, nil, &res); err != nil {
		return nil, fmt.Errorf("userinfo: %w", err)
	}
	return &res, nil
}

func (a *AuthSession) fetchRegion(ctx context.Context, accessToken, idToken string) (string, error) {
	var res struct {
		Token      string `json:"token"`
		Affinities struct {
			PBE  string `json:"pbe"`
			Live string `json:"live"`
		} `json:"affinities"`
	}
	payload := map[string]any{"id_token": idToken}
	if err := a.doJSON(ctx, http.MethodPut, geoBaseURL+geoProductPath, accessToken, payload, &res); err != nil {
		return "", fmt.Errorf("region affinity: %w", err)
	}
	if res.Affinities.Live == "" {
		return "", fmt.Errorf("region affinity: no live region")
	}
	return res.Affinities.Live, nil
}

// doJSON performs one handshake call. It never retries: a failed step fails
// the whole handshake.
func (a *AuthSession) doJSON(ctx context.Context, method, rawURL, bearer string, payload, out any) error {
	body, _, err := jsonBody(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return err
	}

	req.Header = http.Header{
		"Content-Type":    {"application/json"},
		"User-Agent":      {a.userAgent},
		"Accept":          {"application/json, text/plain, */*"},
		"Accept-Encoding": {"deflate, gzip"},
		http.HeaderOrderKey: {
			"Content-Type",
			"User-Agent",
			"Accept",
			"Accept-Encoding",
			"Authorization",
			"Cookie",
		},
		http.PHeaderOrderKey: PseudoHeaderOrder,
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		a.logger.Log("%s %s -> error: %v", method, req.URL.Path, err)
		return err
	}
	defer resp.Body.Close()
	a.logger.Log("%s %s -> %d", method, req.URL.Path, resp.StatusCode)

	respBody, err := readResponseBody(resp)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifyStatus(statusInfo{
			method: method,
			url:    rawURL,
			status: resp.StatusCode,
			header: resp.Header,
			body:   respBody,
		}, requestOptions{})
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w (body: %s)", err, bodyPreview(respBody))
	}
	return nil
}
