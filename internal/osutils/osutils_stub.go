//go:build !windows

package osutils

import "remotepad/internal/logger"

var log = logger.For("osutils")

// IsAdmin is a stub for non-Windows platforms
func IsAdmin() bool {
	return false
}

// EnsureFirewallRule is a stub for non-Windows platforms
func EnsureFirewallRule(program string) error {
	log.Debug("Firewall: automatic rule management is only supported on Windows")
	return nil
}
