// Package interfaces defines the abstractions shared across the resolution
// pipeline. Host-specific extractors, the manifest resolver and the link
// validator are all consumed through these, so each can be swapped in tests.
package interfaces

import (
	"context"
	"net/http"
	"time"

	"embed-resolver-go/pkg/httpclient"
	"embed-resolver-go/pkg/types"
)

// Extractor turns an embed page URL into a playable media URL.
//
// To add a host-specific extractor:
// 1. Create a new file in pkg/extractors/
// 2. Implement this interface
// 3. Register it in the ExtractorRegistry
type Extractor interface {
	// Name returns a unique identifier for this extractor.
	Name() string

	// CanExtract returns true if this extractor can handle the given URL.
	CanExtract(url string) bool

	// Extract resolves the given embed URL to a direct media URL.
	Extract(ctx context.Context, url string, opts ExtractOptions) (*types.ExtractResult, error)

	// Close releases any resources held by the extractor.
	Close() error
}

// ExtractOptions contains optional parameters for extraction.
type ExtractOptions struct {
	Headers map[string]string
	Referer string
}

// HTTPClient abstracts HTTP operations for testability. NewRequest applies
// the client's browser defaults (User-Agent and friends) before caller headers.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
	NewRequest(ctx context.Context, method, url string, headers map[string]string) (*http.Request, error)
}

// PageFetcher fetches a page and returns its decoded body.
type PageFetcher interface {
	Fetch(ctx context.Context, url string, headers map[string]string, timeout time.Duration) (*httpclient.Page, error)
}

// LinkValidator decides whether a URL is currently servable.
type LinkValidator interface {
	IsPlayable(ctx context.Context, url string, headers map[string]string) bool
}

// Registry is a generic interface for component registries.
type Registry[T any] interface {
	// Register adds a component to the registry.
	Register(component T)

	// Get returns the appropriate component for the given URL.
	Get(url string) T

	// All returns all registered components.
	All() []T
}
