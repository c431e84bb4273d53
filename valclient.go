// Package valclient is a client for the VALORANT web APIs: it signs in with
// the native client's handshake, calls the game-data services with retries
// and silent re-authentication, and keeps a versioned local copy of the
// public game catalog.
package valclient

import (
	"context"
	"errors"
	"io"
)

// Client owns one AuthSession, one Gateway and one Catalog.
type Client struct {
	cfg     Config
	logger  Logger
	auth    *AuthSession
	gateway *Gateway
	catalog *Catalog
	closers []io.Closer
}

// ClientOption configures a Client.
type ClientOption func(*clientOptions)

type clientOptions struct {
	logger      Logger
	authClient  SessionClient
	gatewayOpts []GatewayOption
}

// WithLogger sets the logger. Without it, Config.LogFile or stdout is used.
func WithLogger(logger Logger) ClientOption {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// WithAuthClient replaces the TLS-fingerprinted login transport.
func WithAuthClient(client SessionClient) ClientOption {
	return func(o *clientOptions) {
		o.authClient = client
	}
}

// WithGatewayOptions passes options through to the gateway.
func WithGatewayOptions(opts ...GatewayOption) ClientOption {
	return func(o *clientOptions) {
		o.gatewayOpts = append(o.gatewayOpts, opts...)
	}
}

// New validates cfg and wires the client. No network call is made.
func New(cfg Config, opts ...ClientOption) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}

	c := &Client{cfg: cfg}
	switch {
	case o.logger != nil:
		c.logger = o.logger
	case cfg.LogFile != "":
		logger, file, err := NewFileLogger(cfg.LogFile)
		if err != nil {
			return nil, err
		}
		c.logger = logger
		c.closers = append(c.closers, file)
	default:
		c.logger = NewLogger(io.Discard)
	}

	authClient := o.authClient
	if authClient == nil {
		client, err := NewAuthTransport(c.logger, cfg.Proxy, cfg.TimeoutSeconds)
		if err != nil {
			c.Close()
			return nil, err
		}
		authClient = client
	}

	c.auth = NewAuthSession(authClient, c.logger)
	c.gateway = NewGateway(cfg, c.auth, c.logger, o.gatewayOpts...)
	c.catalog = NewCatalog(cfg, c.gateway, c.logger)
	return c, nil
}

// Login signs in with a username and password.
func (c *Client) Login(ctx context.Context, username, password string) (CredentialBundle, error) {
	return c.auth.Authorize(ctx, username, password)
}

// Reauthorize refreshes the credentials from the stored session cookies.
func (c *Client) Reauthorize(ctx context.Context) (bool, error) {
	return c.auth.Reauthorize(ctx)
}

// Auth returns the login session.
func (c *Client) Auth() *AuthSession {
	return c.auth
}

// Gateway returns the request gateway.
func (c *Client) Gateway() *Gateway {
	return c.gateway
}

// Catalog returns the catalog cache.
func (c *Client) Catalog() *Catalog {
	return c.catalog
}

// Close releases the gateway's connections and the log file.
func (c *Client) Close() error {
	var errs []error
	if c.gateway != nil {
		errs = append(errs, c.gateway.Close())
	}
	for _, closer := range c.closers {
		errs = append(errs, closer.Close())
	}
	c.closers = nil
	return errors.Join(errs...)
}
