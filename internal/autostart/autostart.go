// Package autostart provides auto-start functionality.
package autostart

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"text/template"
)

const label = "com.remotepad.agent"

const macLaunchAgentPlist = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{.ExecutablePath}}</string>
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <false/>
</dict>
</plist>
`

const xdgDesktopEntry = `[Desktop Entry]
Type=Application
Name=remotepad
Comment=LAN keyboard and mouse receiver
Exec="{{.ExecutablePath}}"
Terminal=false
X-GNOME-Autostart-enabled=true
`

type entry struct {
	Label          string
	ExecutablePath string
}

// Enable enables auto-start on login
func Enable() error {
	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}
	if runtime.GOOS == "windows" {
		return enableWindows(execPath)
	}
	path, tmpl, err := entryFile(runtime.GOOS)
	if err != nil {
		return err
	}
	return writeEntry(path, tmpl, execPath)
}

// Disable disables auto-start on login
func Disable() error {
	if runtime.GOOS == "windows" {
		return disableWindows()
	}
	path, _, err := entryFile(runtime.GOOS)
	if err != nil {
		return err
	}
	return removeEntry(path)
}

// IsEnabled checks if auto-start is enabled
func IsEnabled() bool {
	if runtime.GOOS == "windows" {
		return isEnabledWindows()
	}
	path, _, err := entryFile(runtime.GOOS)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// entryFile returns where the login entry lives and what goes in it.
func entryFile(goos string) (string, string, error) {
	switch goos {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", err
		}
		return filepath.Join(home, "Library", "LaunchAgents", label+".plist"), macLaunchAgentPlist, nil
	case "linux", "freebsd", "openbsd", "netbsd":
		dir, err := os.UserConfigDir()
		if err != nil {
			return "", "", err
		}
		return filepath.Join(dir, "autostart", "remotepad.desktop"), xdgDesktopEntry, nil
	default:
		return "", "", fmt.Errorf("unsupported platform: %s", goos)
	}
}

func writeEntry(path, text, execPath string) error {
	tmpl, err := template.New(filepath.Base(path)).Parse(text)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return tmpl.Execute(f, entry{Label: label, ExecutablePath: execPath})
}

func removeEntry(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
