package config

import (
	"strings"
	"time"
)

const (
	apiURLVar      = "API_URL"
	httpTimeoutVar = "HTTP_TIMEOUT"
)

type Backend struct {
	source
}

var _ BackendConfig = Backend{}

// GetAPIURL returns the REST backend base URL without a trailing slash
func (b Backend) GetAPIURL() string {
	return strings.TrimRight(b.v.GetString(apiURLVar), "/")
}

func (b Backend) GetHTTPTimeout() time.Duration {
	return b.v.GetDuration(httpTimeoutVar)
}
