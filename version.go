package valclient

import (
	"context"
	"fmt"

	http "github.com/bogdanfinn/fhttp"
)

// VersionInfo is the game build the catalog service currently describes.
type VersionInfo struct {
	ManifestID        string `json:"manifestId"`
	Branch            string `json:"branch"`
	Version           string `json:"version"`
	BuildVersion      string `json:"buildVersion"`
	EngineVersion     string `json:"engineVersion"`
	RiotClientVersion string `json:"riotClientVersion"`
	RiotClientBuild   string `json:"riotClientBuild"`
	BuildDate         string `json:"buildDate"`
}

// catalogEnvelope is the wrapper every catalog service response comes in.
type catalogEnvelope[T any] struct {
	Status int `json:"status"`
	Data   T   `json:"data"`
}

// FetchVersion asks the catalog service which game version it describes.
func (g *Gateway) FetchVersion(ctx context.Context) (VersionInfo, error) {
	route := NewRoute(http.MethodGet, SurfaceCatalog, "/v1/version")
	env, err := RequestJSON[catalogEnvelope[VersionInfo]](ctx, g, route)
	if err != nil {
		return VersionInfo{}, err
	}
	if env.Data.Version == "" {
		return VersionInfo{}, fmt.Errorf("%s: response has no version", route)
	}
	return env.Data, nil
}
