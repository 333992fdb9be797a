// Package ui provides the settings page served next to the status API.
package ui

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"net/url"
	"os/exec"
	"runtime"
	"strings"

	"remotepad/internal/autostart"
	"remotepad/internal/config"
	"remotepad/internal/logger"
)

var log = logger.For("ui")

// ModeSwitcher restarts the network role after a settings change.
type ModeSwitcher interface {
	SetMode(ctx context.Context, mode config.Mode) error
}

// Settings are the user-facing fields of the configuration.
type Settings struct {
	Mode        config.Mode `json:"mode"`
	DeviceName  string      `json:"device_name"`
	ServiceType string      `json:"service_type"`
	Pro         bool        `json:"pro"`
	StartOnBoot bool        `json:"start_on_boot"`
}

func settingsOf(cfg config.Config) Settings {
	return Settings{
		Mode:        cfg.General.Mode,
		DeviceName:  cfg.General.DeviceName,
		ServiceType: cfg.Discovery.ServiceType,
		Pro:         cfg.General.Pro,
		StartOnBoot: cfg.General.StartOnBoot,
	}
}

// Server provides the settings page and its JSON endpoint
type Server struct {
	configMgr *config.Manager
	modes     ModeSwitcher
	token     string
	mux       *http.ServeMux

	// SetAutostart applies start_on_boot changes
	SetAutostart func(enabled bool) error
}

// NewServer creates a settings server. token is embedded in the page so its
// requests pass the API's bearer check.
func NewServer(cfgMgr *config.Manager, modes ModeSwitcher, token string) *Server {
	s := &Server{
		configMgr:    cfgMgr,
		modes:        modes,
		token:        token,
		mux:          http.NewServeMux(),
		SetAutostart: toggleAutostart,
	}
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/api/settings", s.handleSettings)
	return s
}

// Patterns lists the paths the server answers, for mounting on another mux.
func (s *Server) Patterns() []string {
	return []string{"/", "/api/settings"}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func toggleAutostart(enabled bool) error {
	if enabled {
		return autostart.Enable()
	}
	return autostart.Disable()
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, map[string]string{"Token": s.token}); err != nil {
		log.Warnf("Render settings page: %v", err)
	}
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodGet:
		json.NewEncoder(w).Encode(settingsOf(s.configMgr.Get()))
	case http.MethodPost:
		var in Settings
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.apply(r.Context(), in); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// apply validates in, saves it and restarts the role when a field the role
// depends on changed.
func (s *Server) apply(ctx context.Context, in Settings) error {
	if !in.Mode.Valid() {
		return fmt.Errorf("unknown mode %q", in.Mode)
	}
	if in.ServiceType != config.ServiceAirType && in.ServiceType != config.ServiceControlla {
		return fmt.Errorf("service type must be %s or %s", config.ServiceAirType, config.ServiceControlla)
	}
	in.DeviceName = strings.TrimSpace(in.DeviceName)

	cfg := s.configMgr.Get()
	old := settingsOf(cfg)
	cfg.General.DeviceName = in.DeviceName
	cfg.General.Pro = in.Pro
	cfg.General.StartOnBoot = in.StartOnBoot
	cfg.Discovery.ServiceType = in.ServiceType
	s.configMgr.Set(cfg)
	if err := s.configMgr.Save(); err != nil {
		return err
	}
	log.Infof("Settings saved: %+v", in)

	if in.StartOnBoot != old.StartOnBoot && s.SetAutostart != nil {
		if err := s.SetAutostart(in.StartOnBoot); err != nil {
			log.Warnf("Autostart: %v", err)
		}
	}
	if in.Mode != old.Mode || in.DeviceName != old.DeviceName || in.ServiceType != old.ServiceType {
		return s.modes.SetMode(ctx, in.Mode)
	}
	return nil
}

// PageURL is the address of the settings page for an API bound to addr.
// Wildcard hosts are replaced by the loopback address.
func PageURL(addr, token string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		host, port = addr, ""
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	if port != "" {
		host = net.JoinHostPort(host, port)
	}
	u := url.URL{Scheme: "http", Host: host, Path: "/"}
	if token != "" {
		u.RawQuery = url.Values{"token": {token}}.Encode()
	}
	return u.String()
}

// OpenBrowser shows url in the default browser.
func OpenBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

var tmpl = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>remotepad Settings</title>
    <style>
        * { box-sizing: border-box; margin: 0; padding: 0; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            background: linear-gradient(135deg, #1a1a2e 0%, #16213e 100%);
            color: #e2e8f0;
            min-height: 100vh;
            padding: 2rem;
        }
        .container { max-width: 640px; margin: 0 auto; }
        h1 { font-size: 1.75rem; margin-bottom: 1.5rem; color: #a5b4fc; }
        .card {
            background: rgba(255,255,255,0.05);
            border: 1px solid rgba(255,255,255,0.1);
            border-radius: 16px;
            padding: 1.5rem;
            margin-bottom: 1.5rem;
        }
        label { display: block; margin: 0.75rem 0 0.25rem; color: #94a3b8; }
        input[type=text], select {
            width: 100%;
            padding: 0.5rem;
            border-radius: 8px;
            border: 1px solid rgba(255,255,255,0.2);
            background: rgba(0,0,0,0.2);
            color: #e2e8f0;
        }
        .check { display: flex; gap: 0.5rem; align-items: center; margin-top: 0.75rem; }
        button {
            margin-top: 1.25rem;
            padding: 0.6rem 1.5rem;
            border: none;
            border-radius: 8px;
            background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
            color: white;
            cursor: pointer;
        }
        #status { margin-top: 1rem; color: #94a3b8; min-height: 1.2em; }
    </style>
</head>
<body>
<div class="container">
    <h1>remotepad</h1>
    <div class="card">
        <p id="state">Loading...</p>
    </div>
    <div class="card">
        <label for="mode">Mode</label>
        <select id="mode">
            <option value="receiver">Receiver</option>
            <option value="controller">Controller</option>
        </select>
        <label for="device_name">Device name (empty uses the host name)</label>
        <input type="text" id="device_name">
        <label for="service_type">Service type</label>
        <select id="service_type">
            <option value="_airtype._tcp">_airtype._tcp</option>
            <option value="_controlla._tcp">_controlla._tcp</option>
        </select>
        <div class="check"><input type="checkbox" id="pro"><span>Pro (text and key presses)</span></div>
        <div class="check"><input type="checkbox" id="start_on_boot"><span>Start on login</span></div>
        <button onclick="save()">Save</button>
        <div id="status"></div>
    </div>
</div>
<script>
const token = {{.Token}};
const headers = token ? { 'Authorization': 'Bearer ' + token } : {};

async function load() {
    const s = await (await fetch('/api/settings', { headers })).json();
    document.getElementById('mode').value = s.mode;
    document.getElementById('device_name').value = s.device_name || '';
    document.getElementById('service_type').value = s.service_type;
    document.getElementById('pro').checked = s.pro;
    document.getElementById('start_on_boot').checked = s.start_on_boot;
}

async function refreshState() {
    const s = await (await fetch('/api/status', { headers })).json();
    document.getElementById('state').textContent = '[' + s.mode + '] ' + s.status;
}

async function save() {
    const body = {
        mode: document.getElementById('mode').value,
        device_name: document.getElementById('device_name').value,
        service_type: document.getElementById('service_type').value,
        pro: document.getElementById('pro').checked,
        start_on_boot: document.getElementById('start_on_boot').checked,
    };
    const res = await fetch('/api/settings', {
        method: 'POST',
        headers: Object.assign({ 'Content-Type': 'application/json' }, headers),
        body: JSON.stringify(body),
    });
    document.getElementById('status').textContent = res.ok ? 'Saved' : await res.text();
    refreshState();
}

load();
refreshState();
setInterval(refreshState, 2000);
</script>
</body>
</html>
`))
