package client

import (
	"net/http"

	"github.com/gregjones/httpcache"
	"github.com/gregjones/httpcache/diskcache"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NewCachingHTTPClient creates an HTTP client that honours Cache-Control on
// responses such as the algorithm catalogue. Entries persist under cacheDir
// across runs; an empty cacheDir keeps them in memory.
func NewCachingHTTPClient(cacheDir string) *http.Client {
	if cacheDir == "" {
		return NewInMemoryCachingHTTPClient()
	}
	return &http.Client{Transport: cachingTransport(diskcache.New(cacheDir))}
}

// NewInMemoryCachingHTTPClient creates an HTTP client with an in-memory cache.
func NewInMemoryCachingHTTPClient() *http.Client {
	return &http.Client{Transport: cachingTransport(httpcache.NewMemoryCache())}
}

// cachingTransport answers fresh requests from cache. Only misses and
// revalidations reach the traced network transport.
func cachingTransport(cache httpcache.Cache) *httpcache.Transport {
	t := httpcache.NewTransport(cache)
	t.Transport = tracedTransport()
	t.MarkCachedResponses = true
	return t
}

func tracedTransport() http.RoundTripper {
	return otelhttp.NewTransport(http.DefaultTransport)
}
