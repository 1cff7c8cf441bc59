// Package instance names the running worker process in logs.
package instance

import (
	"os"
	"strings"
)

const defaultID = "worker-0"

// GetID prefers SUPERMARKET_INSTANCE_ID, then the host name.
func GetID() string {
	if id := strings.TrimSpace(os.Getenv("SUPERMARKET_INSTANCE_ID")); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return defaultID
}
