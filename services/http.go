package services

import (
	"net/http"
	"sync"
	"time"
)

// DefaultHttpClient lazily builds the shared HTTP client used for outbound
// fetches. One client so connections are pooled across tools.
var DefaultHttpClient = sync.OnceValue(func() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
	}
})
