package valclient

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	http "github.com/bogdanfinn/fhttp"
)

// Not-found messages for endpoints where 404 means "not there right now".
const (
	notInPregameMessage = "You are not in a pre-game"
	notInGameMessage    = "You are not in a game"
)

// MatchHistoryQuery narrows a match history call. Zero values are omitted.
type MatchHistoryQuery struct {
	StartIndex int
	EndIndex   int
	Queue      string
}

func (q MatchHistoryQuery) values() url.Values {
	values := url.Values{}
	if q.StartIndex > 0 {
		values.Set("startIndex", strconv.Itoa(q.StartIndex))
	}
	if q.EndIndex > 0 {
		values.Set("endIndex", strconv.Itoa(q.EndIndex))
	}
	if q.Queue != "" {
		values.Set("queue", q.Queue)
	}
	return values
}

// subject returns the player id of the signed-in account.
func (g *Gateway) subject() (string, error) {
	if g.auth == nil {
		return "", ErrNotAuthenticated
	}
	creds, ok := g.auth.Credentials()
	if !ok {
		return "", ErrNotAuthenticated
	}
	return creds.SubjectID, nil
}

// playerRaw fetches a per-player document as raw JSON.
func (g *Gateway) playerRaw(ctx context.Context, surface Surface, path string, query url.Values, opts ...RequestOption) (json.RawMessage, error) {
	puuid, err := g.subject()
	if err != nil {
		return nil, err
	}
	route := NewRoute(http.MethodGet, surface, path, puuid).WithQuery(query)
	return RequestJSON[json.RawMessage](ctx, g, route, opts...)
}

// MatchHistory returns the signed-in player's recent matches.
func (g *Gateway) MatchHistory(ctx context.Context, q MatchHistoryQuery) (json.RawMessage, error) {
	return g.playerRaw(ctx, SurfacePD, "/match-history/v1/history/%s", q.values())
}

// Contracts returns the player's contract and battle-pass progress.
func (g *Gateway) Contracts(ctx context.Context) (json.RawMessage, error) {
	return g.playerRaw(ctx, SurfacePD, "/contracts/v1/contracts/%s", nil)
}

// Storefront returns the player's current store offers.
func (g *Gateway) Storefront(ctx context.Context) (json.RawMessage, error) {
	return g.playerRaw(ctx, SurfacePD, "/store/v2/storefront/%s", nil)
}

// Wallet returns the player's currency balances.
func (g *Gateway) Wallet(ctx context.Context) (json.RawMessage, error) {
	return g.playerRaw(ctx, SurfacePD, "/store/v1/wallet/%s", nil)
}

// PartyPlayer returns the party the player is in.
func (g *Gateway) PartyPlayer(ctx context.Context) (json.RawMessage, error) {
	return g.playerRaw(ctx, SurfaceGLZ, "/parties/v1/players/%s", nil)
}

// PregamePlayer returns the agent-select match the player is in. Outside of
// agent select it fails with ErrNotFound.
func (g *Gateway) PregamePlayer(ctx context.Context) (json.RawMessage, error) {
	return g.playerRaw(ctx, SurfaceGLZ, "/pregame/v1/players/%s", nil, WithNotFound(notInPregameMessage))
}

// CoregamePlayer returns the live match the player is in. Outside of a match
// it fails with ErrNotFound.
func (g *Gateway) CoregamePlayer(ctx context.Context) (json.RawMessage, error) {
	return g.playerRaw(ctx, SurfaceGLZ, "/core-game/v1/players/%s", nil, WithNotFound(notInGameMessage))
}
