package osutils

import (
	"context"
	"os"
	"strings"

	"github.com/shirou/gopsutil/v4/host"
)

// DeviceName returns the name a receiver advertises when none is configured:
// the host name without any ".local" suffix.
func DeviceName(ctx context.Context) string {
	name := ""
	if info, err := host.InfoWithContext(ctx); err == nil {
		name = info.Hostname
	} else if h, err := os.Hostname(); err == nil {
		name = h
	}
	return trimHostName(name)
}

func trimHostName(name string) string {
	name = strings.TrimSuffix(strings.TrimSpace(name), ".")
	name = strings.TrimSuffix(name, ".local")
	if name == "" {
		return "remotepad"
	}
	return name
}
