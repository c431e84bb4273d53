package valclient

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParseRedirectTokens(t *testing.T) {
	tests := []struct {
		name      string
		uri       string
		wantType  string
		wantError bool
	}{
		{
			name:     "full fragment",
			uri:      "https://playvalorant.com/opt_in#access_token=aaa&scope=openid&id_token=bbb&token_type=Bearer&expires_in=3600",
			wantType: "Bearer",
		},
		{
			name:     "token type defaults to bearer",
			uri:      "https://playvalorant.com/opt_in#access_token=aaa&id_token=bbb",
			wantType: "Bearer",
		},
		{
			name:      "missing id token",
			uri:       "https://playvalorant.com/opt_in#access_token=aaa",
			wantError: true,
		},
		{
			name:      "no fragment",
			uri:       "https://playvalorant.com/opt_in?access_token=aaa&id_token=bbb",
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, err := parseRedirectTokens(tt.uri)
			if tt.wantError {
				if err == nil {
					t.Fatalf("expected error, got tokens %+v", tokens)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tokens.AccessToken != "aaa" || tokens.IDToken != "bbb" {
				t.Errorf("tokens = %+v", tokens)
			}
			if tokens.TokenType != tt.wantType {
				t.Errorf("token type = %q, want %q", tokens.TokenType, tt.wantType)
			}
		})
	}
}

func TestDecodeAccessTokenClaims(t *testing.T) {
	exp := time.Unix(1893456000, 0)

	t.Run("sub and exp", func(t *testing.T) {
		claims, err := decodeAccessTokenClaims(makeToken("subject-1", exp))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if claims.Subject != "subject-1" {
			t.Errorf("subject = %q", claims.Subject)
		}
		if !claims.ExpiresAt.Equal(exp) {
			t.Errorf("expires at = %v, want %v", claims.ExpiresAt, exp)
		}
	})

	t.Run("padded segments", func(t *testing.T) {
		enc := base64.URLEncoding
		claims := enc.EncodeToString([]byte(`{"sub":"subject-22","exp":1893456000}`))
		if !strings.HasSuffix(claims, "=") {
			t.Fatalf("claims segment %q carries no padding", claims)
		}
		token := enc.EncodeToString([]byte(`{"alg":"RS256","typ":"JWT"}`)) + "." + claims + ".c2ln"

		got, err := decodeAccessTokenClaims(token)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Subject != "subject-22" || !got.ExpiresAt.Equal(exp) {
			t.Errorf("claims = %+v", got)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		if _, err := decodeAccessTokenClaims("not-a-token"); err == nil {
			t.Error("expected error for malformed token")
		}
	})

	t.Run("missing subject", func(t *testing.T) {
		if _, err := decodeAccessTokenClaims(makeToken("", exp)); err == nil {
			t.Error("expected error for token without sub")
		}
	})
}

func TestNewCredentialBundle(t *testing.T) {
	exp := time.Now().Add(time.Hour)
	complete := credentialParts{
		tokens:       redirectTokens{AccessToken: "a", IDToken: "i", TokenType: "Bearer"},
		claims:       tokenClaims{Subject: "sub", ExpiresAt: exp},
		entitlements: "e",
		displayName:  "Player",
		displayTag:   "EUW",
		region:       "eu",
	}

	bundle, err := newCredentialBundle(complete)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bundle.SubjectID != "sub" || !bundle.ExpiresAt.Equal(exp) {
		t.Errorf("bundle = %+v", bundle)
	}
	if bundle.RiotID() != "Player#EUW" {
		t.Errorf("riot id = %q", bundle.RiotID())
	}
	if bundle.Expired(time.Now()) {
		t.Error("fresh bundle reported expired")
	}

	partials := map[string]func(p *credentialParts){
		"no entitlements": func(p *credentialParts) { p.entitlements = "" },
		"no display tag":  func(p *credentialParts) { p.displayTag = "" },
		"no region":       func(p *credentialParts) { p.region = "" },
		"no expiry":       func(p *credentialParts) { p.claims.ExpiresAt = time.Time{} },
	}
	for name, mutate := range partials {
		t.Run(name, func(t *testing.T) {
			p := complete
			mutate(&p)
			bundle, err := newCredentialBundle(p)
			if !errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("err = %v, want ErrInvalidCredentials", err)
			}
			if bundle.Valid() {
				t.Error("partial bundle returned as valid")
			}
		})
	}
}
