package valclient

import (
	"fmt"
	"net/url"
	"strings"
)

// Surface is a logical API host family.
type Surface int

const (
	SurfaceAuth Surface = iota
	SurfaceEntitlements
	SurfaceGeo
	SurfacePD
	SurfaceGLZ
	SurfaceShared
	SurfaceCatalog
	SurfaceBundlePrices
)

func (s Surface) String() string {
	switch s {
	case SurfaceAuth:
		return "auth"
	case SurfaceEntitlements:
		return "entitlements"
	case SurfaceGeo:
		return "geo"
	case SurfacePD:
		return "pd"
	case SurfaceGLZ:
		return "glz"
	case SurfaceShared:
		return "shared"
	case SurfaceCatalog:
		return "catalog"
	case SurfaceBundlePrices:
		return "bundle-prices"
	default:
		return fmt.Sprintf("surface(%d)", int(s))
	}
}

// authenticated reports whether calls on the surface carry the auth headers.
func (s Surface) authenticated() bool {
	switch s {
	case SurfacePD, SurfaceGLZ, SurfaceShared:
		return true
	default:
		return false
	}
}

// sharded reports whether the base URL depends on region and shard.
func (s Surface) sharded() bool {
	return s == SurfacePD || s == SurfaceGLZ || s == SurfaceShared
}

const (
	authBaseURL         = "https://auth.riotgames.com"
	entitlementsBaseURL = "https://entitlements.auth.riotgames.com"
	geoBaseURL          = "https://riot-geo.pas.si.riotgames.com"

	authorizationPath = "/api/v1/authorization"
	userInfoPath      = "/userinfo"
	entitlementsPath  = "/api/token/v1"
	geoProductPath    = "/pas/v1/product/valorant"
)

// regionShards maps a region-affinity value to its data-center shard.
var regionShards = map[string]string{
	"na":    "na",
	"latam": "na",
	"br":    "na",
	"pbe":   "pbe",
	"eu":    "eu",
	"ap":    "ap",
	"kr":    "kr",
}

// shardForRegion returns the shard hosting region.
func shardForRegion(region string) (string, error) {
	shard, ok := regionShards[strings.ToLower(region)]
	if !ok {
		return "", fmt.Errorf("unknown region %q", region)
	}
	return shard, nil
}

// Route is one endpoint call: method, surface and path with query.
type Route struct {
	Method  string
	Surface Surface
	Path    string
	Query   url.Values
}

// NewRoute builds a route. args are path-escaped and substituted into path
// with fmt verbs.
func NewRoute(method string, surface Surface, path string, args ...any) Route {
	if len(args) > 0 {
		escaped := make([]any, len(args))
		for i, arg := range args {
			if s, ok := arg.(string); ok {
				escaped[i] = url.PathEscape(s)
			} else {
				escaped[i] = arg
			}
		}
		path = fmt.Sprintf(path, escaped...)
	}
	return Route{Method: method, Surface: surface, Path: path}
}

// WithQuery returns a copy of the route carrying query.
func (r Route) WithQuery(query url.Values) Route {
	r.Query = query
	return r
}

func (r Route) String() string {
	return r.Method + " " + r.Surface.String() + r.Path
}

// baseURLs resolves every surface to a scheme://host prefix.
type baseURLs struct {
	catalog      string
	bundlePrices string
	overrides    map[Surface]string
}

func (b baseURLs) resolve(surface Surface, region, shard string) (string, error) {
	if base, ok := b.overrides[surface]; ok {
		return base, nil
	}
	if surface.sharded() && (region == "" || shard == "") {
		return "", fmt.Errorf("%s surface needs a region and shard: %w", surface, ErrNotAuthenticated)
	}

	switch surface {
	case SurfaceAuth:
		return authBaseURL, nil
	case SurfaceEntitlements:
		return entitlementsBaseURL, nil
	case SurfaceGeo:
		return geoBaseURL, nil
	case SurfacePD:
		return fmt.Sprintf("https://pd.%s.a.pvp.net", shard), nil
	case SurfaceGLZ:
		return fmt.Sprintf("https://glz-%s-1.%s.a.pvp.net", region, shard), nil
	case SurfaceShared:
		return fmt.Sprintf("https://shared.%s.a.pvp.net", shard), nil
	case SurfaceCatalog:
		return b.catalog, nil
	case SurfaceBundlePrices:
		return b.bundlePrices, nil
	default:
		return "", fmt.Errorf("unknown surface %s", surface)
	}
}

func (b baseURLs) url(route Route, region, shard string) (string, error) {
	base, err := b.resolve(route.Surface, region, shard)
	if err != nil {
		return "", err
	}
	full := strings.TrimRight(base, "/") + route.Path
	if len(route.Query) > 0 {
		full += "?" + route.Query.Encode()
	}
	return full, nil
}
