// Package env reads process-level overrides that live outside the CARTENGINE_ namespace.
package env

import (
	"os"
	"strings"
)

// PlatformPortKey is set by hosting platforms that assign the listen port.
const PlatformPortKey = "PORT"

// Get returns the value of the given environment variable or a fallback.
func Get(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

// ListenAddr builds the server address, preferring a platform-assigned port
// over the configured one.
func ListenAddr(configuredPort string) string {
	return ":" + Get(PlatformPortKey, configuredPort)
}
