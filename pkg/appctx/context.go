// Package appctx provides the application context that holds all runtime dependencies.
package appctx

import (
	"embed-resolver-go/pkg/config"
	"embed-resolver-go/pkg/httpclient"
	"embed-resolver-go/pkg/logging"
	"embed-resolver-go/pkg/services"
)

// Context holds all application runtime dependencies.
// Pass this single struct to components instead of individual parameters.
type Context struct {
	Config     *config.Config
	Log        *logging.Logger
	HTTPClient *httpclient.Client
	Resolver   *services.ResolveService
	Version    string
}

// New creates a new application context.
func New(cfg *config.Config, log *logging.Logger) *Context {
	return &Context{
		Config:  cfg,
		Log:     log,
		Version: "dev",
	}
}

// WithHTTPClient sets the shared HTTP client.
func (c *Context) WithHTTPClient(client *httpclient.Client) *Context {
	c.HTTPClient = client
	return c
}

// WithResolver sets the resolve service.
func (c *Context) WithResolver(rs *services.ResolveService) *Context {
	c.Resolver = rs
	return c
}
