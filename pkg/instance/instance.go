package instance

import (
	"os"
	"strings"
)

const envInstanceID = "MARKETPLACE_INSTANCE_ID"

// GetID identifies this process in logs: the explicit instance id, then the
// hostname (the pod name on Kubernetes), then "<kind>-0".
func GetID(kind string) string {
	if id := strings.TrimSpace(os.Getenv(envInstanceID)); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return kind + "-0"
}
