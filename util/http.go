package util

import (
	"net/http"
	"sync"
	"time"
)

var (
	httpClient     *http.Client
	httpClientOnce sync.Once
)

// HTTPClient returns the shared client used for unauthenticated calls
func HTTPClient() *http.Client {
	httpClientOnce.Do(func() {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	})
	return httpClient
}
