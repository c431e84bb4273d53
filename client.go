package valclient

import (
	"net/url"

	tls_client "github.com/bogdanfinn/tls-client"
	"github.com/bogdanfinn/tls-client/profiles"
)

// transportOptions bundles what every tls-client instance is built from.
type transportOptions struct {
	profile        profiles.ClientProfile
	proxyURL       string
	timeoutSeconds int
	forceHTTP1     bool
	jar            tls_client.CookieJar
}

// newTransport creates a tls-client with the given profile. Redirects are not
// followed: the authorization endpoints answer with the tokens in the body.
func newTransport(logger Logger, opts transportOptions) (tls_client.HttpClient, error) {
	if logger == nil {
		logger = NopLogger
	}
	if opts.timeoutSeconds <= 0 {
		opts.timeoutSeconds = 30
	}

	options := []tls_client.HttpClientOption{
		tls_client.WithTimeoutSeconds(opts.timeoutSeconds),
		tls_client.WithClientProfile(opts.profile),
		tls_client.WithNotFollowRedirects(),
	}
	if opts.jar != nil {
		options = append(options, tls_client.WithCookieJar(opts.jar))
	}
	if opts.forceHTTP1 {
		options = append(options, tls_client.WithForceHttp1())
	}
	if opts.proxyURL != "" {
		options = append(options, tls_client.WithProxyUrl(opts.proxyURL))
		if u, err := url.Parse(opts.proxyURL); err == nil {
			logger.Log("Using proxy: %s", u.Host)
		}
	}

	return tls_client.NewHttpClient(&tlsLogger{base: logger}, options...)
}

// NewAuthTransport creates the client AuthSession uses: the native client's
// TLS fingerprint, HTTP/1.1 only, with a fresh cookie jar.
func NewAuthTransport(logger Logger, proxyURL string, timeoutSeconds int) (tls_client.HttpClient, error) {
	profile, err := RiotClientProfile()
	if err != nil {
		return nil, err
	}
	return newTransport(logger, transportOptions{
		profile:        profile,
		proxyURL:       proxyURL,
		timeoutSeconds: timeoutSeconds,
		forceHTTP1:     true,
		jar:            tls_client.NewCookieJar(),
	})
}

// NewGatewayTransport creates the pooled client the gateway sends game-data
// and catalog calls through.
func NewGatewayTransport(logger Logger, proxyURL string, timeoutSeconds int) (tls_client.HttpClient, error) {
	return newTransport(logger, transportOptions{
		profile:        profiles.DefaultClientProfile,
		proxyURL:       proxyURL,
		timeoutSeconds: timeoutSeconds,
	})
}
