package valclient

import (
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CredentialBundle is everything an authenticated call needs.
type CredentialBundle struct {
	AccessToken       string
	IDToken           string
	EntitlementsToken string
	TokenType         string
	ExpiresAt         time.Time

	SubjectID   string
	DisplayName string
	DisplayTag  string
	Region      string
}

// Valid reports whether every identity field is populated.
func (c CredentialBundle) Valid() bool {
	return c.AccessToken != "" &&
		c.IDToken != "" &&
		c.EntitlementsToken != "" &&
		c.SubjectID != "" &&
		c.DisplayName != "" &&
		c.DisplayTag != "" &&
		c.Region != "" &&
		!c.ExpiresAt.IsZero()
}

// Expired reports whether the access token is past its expiry at now.
func (c CredentialBundle) Expired(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}

// RiotID renders the display identity as name#tag.
func (c CredentialBundle) RiotID() string {
	return c.DisplayName + "#" + c.DisplayTag
}

// redirectTokens are the tokens carried in the fragment of the handshake's
// success redirect URI.
type redirectTokens struct {
	AccessToken string
	IDToken     string
	TokenType   string
}

// parseRedirectTokens extracts the tokens from a URI like
// https://playvalorant.com/opt_in#access_token=...&id_token=...&token_type=Bearer
func parseRedirectTokens(uri string) (redirectTokens, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return redirectTokens{}, fmt.Errorf("invalid redirect uri: %w", err)
	}
	values, err := url.ParseQuery(parsed.Fragment)
	if err != nil {
		return redirectTokens{}, fmt.Errorf("invalid redirect fragment: %w", err)
	}

	tokens := redirectTokens{
		AccessToken: values.Get("access_token"),
		IDToken:     values.Get("id_token"),
		TokenType:   values.Get("token_type"),
	}
	if tokens.AccessToken == "" || tokens.IDToken == "" {
		return redirectTokens{}, fmt.Errorf("redirect uri missing tokens")
	}
	if tokens.TokenType == "" {
		tokens.TokenType = "Bearer"
	}
	return tokens, nil
}

// tokenClaims are the claims read from the access token itself.
type tokenClaims struct {
	Subject   string
	ExpiresAt time.Time
}

// decodeAccessTokenClaims reads sub and exp from the token's payload segment.
// The signature is not verified.
func decodeAccessTokenClaims(token string) (tokenClaims, error) {
	claims := &jwt.RegisteredClaims{}
	parser := jwt.NewParser(jwt.WithPaddingAllowed())
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return tokenClaims{}, fmt.Errorf("failed to decode access token: %w", err)
	}
	if claims.Subject == "" {
		return tokenClaims{}, fmt.Errorf("access token has no sub claim")
	}
	if claims.ExpiresAt == nil {
		return tokenClaims{}, fmt.Errorf("access token has no exp claim")
	}
	return tokenClaims{
		Subject:   claims.Subject,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// credentialParts are the independently fetched pieces of a bundle.
type credentialParts struct {
	tokens       redirectTokens
	claims       tokenClaims
	entitlements string
	displayName  string
	displayTag   string
	region       string
}

// newCredentialBundle assembles a bundle field by field.
func newCredentialBundle(p credentialParts) (CredentialBundle, error) {
	bundle := CredentialBundle{
		AccessToken:       p.tokens.AccessToken,
		IDToken:           p.tokens.IDToken,
		TokenType:         p.tokens.TokenType,
		EntitlementsToken: p.entitlements,
		ExpiresAt:         p.claims.ExpiresAt,
		SubjectID:         p.claims.Subject,
		DisplayName:       p.displayName,
		DisplayTag:        p.displayTag,
		Region:            p.region,
	}
	if !bundle.Valid() {
		return CredentialBundle{}, ErrInvalidCredentials
	}
	return bundle, nil
}
