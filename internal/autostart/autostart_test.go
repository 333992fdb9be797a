package autostart

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteAndRemoveEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "autostart", "remotepad.desktop")

	if err := writeEntry(path, xdgDesktopEntry, "/opt/remotepad/remotepad"); err != nil {
		t.Fatalf("writeEntry: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read entry: %v", err)
	}
	if !strings.Contains(string(data), `Exec="/opt/remotepad/remotepad"`) {
		t.Errorf("entry missing Exec line:\n%s", data)
	}

	if err := removeEntry(path); err != nil {
		t.Fatalf("removeEntry: %v", err)
	}
	if err := removeEntry(path); err != nil {
		t.Errorf("second removeEntry: %v", err)
	}
}

func TestPlistCarriesLabel(t *testing.T) {
	path := filepath.Join(t.TempDir(), label+".plist")
	if err := writeEntry(path, macLaunchAgentPlist, "/Applications/remotepad"); err != nil {
		t.Fatalf("writeEntry: %v", err)
	}
	data, _ := os.ReadFile(path)
	for _, want := range []string{"<string>" + label + "</string>", "<string>/Applications/remotepad</string>"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("plist missing %s", want)
		}
	}
}

func TestEntryFileUnsupported(t *testing.T) {
	if _, _, err := entryFile("plan9"); err == nil {
		t.Error("expected an error for an unsupported platform")
	}
}
