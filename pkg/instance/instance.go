package instance

import (
	"os"

	"github.com/angelmondragon/storefront-fulfillment/pkg/env"
)

// GetID identifies the running process for logs and lock ownership. It
// prefers an explicit id, then the platform dyno name, then the hostname.
func GetID(kind string) string {
	if id := env.First("", "STOREFRONT_INSTANCE_ID", "DYNO"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	if kind == "" {
		kind = "worker"
	}
	return kind + "-0"
}
