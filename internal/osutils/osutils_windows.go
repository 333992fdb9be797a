//go:build windows

package osutils

import (
	"fmt"
	"os/exec"
	"strings"
	"syscall"

	"golang.org/x/sys/windows"

	"remotepad/internal/logger"
)

var log = logger.For("osutils")

// IsAdmin checks if the current process has administrative privileges
func IsAdmin() bool {
	var token windows.Token
	h, _ := windows.GetCurrentProcess()
	err := windows.OpenProcessToken(h, windows.TOKEN_QUERY, &token)
	if err != nil {
		return false
	}
	defer token.Close()

	var sid *windows.SID
	err = windows.AllocateAndInitializeSid(
		&windows.SECURITY_NT_AUTHORITY,
		2,
		windows.SECURITY_BUILTIN_DOMAIN_RID,
		windows.DOMAIN_ALIAS_RID_ADMINS,
		0, 0, 0, 0, 0, 0,
		&sid,
	)
	if err != nil {
		return false
	}
	defer windows.FreeSid(sid)

	member, err := token.IsMember(sid)
	if err != nil {
		return false
	}

	return member
}

// EnsureFirewallRule makes sure inbound TCP is allowed for program. The
// receiver listens on a port chosen at startup, so the rule is tied to the
// executable instead of a port. Without elevation the rule is created through
// a UAC prompt.
func EnsureFirewallRule(program string) error {
	ruleName := "remotepad receiver"

	log.Debugf("Firewall: checking rule '%s' for %s", ruleName, program)

	checkCmd := exec.Command("netsh", "advfirewall", "firewall", "show", "rule", "name="+ruleName, "verbose")
	output, err := checkCmd.CombinedOutput()
	outputStr := string(output)

	if err == nil && strings.Contains(outputStr, ruleName) {
		if strings.Contains(strings.ToLower(outputStr), strings.ToLower(program)) && strings.Contains(outputStr, "Allow") {
			log.Debugf("Firewall: rule '%s' already allows %s", ruleName, program)
			return nil
		}
		log.Infof("Firewall: rule '%s' points at another program, updating", ruleName)
	} else {
		log.Infof("Firewall: rule '%s' not found, creating", ruleName)
	}

	psCommand := fmt.Sprintf(
		"Remove-NetFirewallRule -DisplayName '%s' -ErrorAction SilentlyContinue; New-NetFirewallRule -DisplayName '%s' -Direction Inbound -Program '%s' -Protocol TCP -Action Allow -Profile Private,Domain",
		ruleName, ruleName, program,
	)

	if !IsAdmin() {
		log.Info("Firewall: process is not elevated, requesting UAC elevation")

		verbPtr, _ := syscall.UTF16PtrFromString("runas")
		exePtr, _ := syscall.UTF16PtrFromString("powershell.exe")
		argPtr, _ := syscall.UTF16PtrFromString(fmt.Sprintf("-NoProfile -WindowStyle Hidden -Command \"%s\"", psCommand))

		var showCmd int32 = 0 // SW_HIDE

		if err := windows.ShellExecute(0, verbPtr, exePtr, argPtr, nil, showCmd); err != nil {
			return fmt.Errorf("failed to launch elevated powershell: %w", err)
		}
		return nil
	}

	cmd := exec.Command("powershell", "-NoProfile", "-Command", psCommand)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("failed to create firewall rule: %w (output: %s)", err, string(output))
	}
	log.Infof("Firewall: rule '%s' now allows %s", ruleName, program)
	return nil
}
