package customHttpClient

import (
	"net/http"
	"sync"

	"github.com/akolanti/BidExtract/internal/config"
)

var (
	transportOnce   sync.Once
	customTransport *http.Transport
)

// Transport is shared by every model client so concurrent chunk calls reuse
// connections to the same endpoint.
func Transport() *http.Transport {
	transportOnce.Do(func() {
		base := http.DefaultTransport.(*http.Transport).Clone()
		base.MaxIdleConns = config.MaxIdleConns
		base.MaxIdleConnsPerHost = config.MaxIdleConnsPerHost
		base.IdleConnTimeout = config.IdleConnTimeout
		customTransport = base
	})
	return customTransport
}

// NewClient has no overall timeout; callers bound each attempt with a context.
func NewClient() *http.Client {
	return &http.Client{Transport: Transport()}
}
