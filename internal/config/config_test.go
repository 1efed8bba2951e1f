package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zalando/go-keyring"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, "tsbrowse.yaml", `
hosts:
  - name: plant-a
    address: 10.0.0.1
    database: robots
    ssh:
      user: ops
      local_port: 16041
  - name: local
    address: ./events.db
    driver: sqlite
browse:
  page_size: 50
  query_timeout: 5s
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if len(cfg.Hosts) != 3 {
		t.Fatalf("len(Hosts) = %d, want 3", len(cfg.Hosts))
	}

	a := cfg.Hosts[0]
	if a.Driver != DriverTDengine {
		t.Errorf("default driver = %q, want %q", a.Driver, DriverTDengine)
	}
	if a.Port != 6041 {
		t.Errorf("default port = %d, want 6041", a.Port)
	}
	if a.SSH.Port != 22 {
		t.Errorf("default ssh port = %d, want 22", a.SSH.Port)
	}
	if a.Catalog != "stables" {
		t.Errorf("default catalog = %q, want stables", a.Catalog)
	}
	if !a.Tunneled() {
		t.Error("expected plant-a to be tunneled")
	}

	if cfg.Hosts[1].Tunneled() {
		t.Error("expected local to be direct")
	}

	b := cfg.GetBrowse()
	if b.PageSize != 50 {
		t.Errorf("PageSize = %d, want 50", b.PageSize)
	}
	if b.FilterColumn != "robot_id" || b.TimeColumn != "ts" {
		t.Errorf("browse defaults not applied: %+v", b)
	}
	if got := cfg.GetQueryTimeout(); got != 5*time.Second {
		t.Errorf("GetQueryTimeout() = %v, want 5s", got)
	}
}

func TestLoad_LegacyTOMLSources(t *testing.T) {
	path := writeConfig(t, "config.toml", `
[[sources]]
ip = "192.168.1.20"
port = 6030
ssh_user = "robot"
ssh_password = "secret"
local_port = 16042
db = "fleet"

[[sources]]
ip = "192.168.1.21"
port = 6030
db = "fleet"

[[sources]]
ip = "192.168.1.22"
port = 6030
adapter_port = 16041
db = "fleet"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if len(cfg.Hosts) != 3 {
		t.Fatalf("len(Hosts) = %d, want 3", len(cfg.Hosts))
	}

	h := cfg.Hosts[0]
	if h.ID() != "192.168.1.20" {
		t.Errorf("ID() = %q, want address", h.ID())
	}
	if h.Database != "fleet" || h.SSH.User != "robot" || h.SSH.Password != "secret" || h.SSH.LocalPort != 16042 {
		t.Errorf("legacy source not folded correctly: %+v", h)
	}
	if h.User != "root" || h.Password != "taosdata" {
		t.Errorf("tdengine credentials not defaulted: %q/%q", h.User, h.Password)
	}
	if cfg.Hosts[1].Tunneled() {
		t.Error("second source has no ssh_user and should be direct")
	}

	// The native port 6030 is never dialed by the websocket driver.
	wantPorts := []int{6041, 6041, 16041}
	for i, want := range wantPorts {
		h := cfg.Hosts[i]
		if h.Driver != DriverTDengine || h.Port != want {
			t.Errorf("Hosts[%d] = %s port %d, want %s port %d", i, h.Driver, h.Port, DriverTDengine, want)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		hosts   []Host
		wantErr string
	}{
		{
			name:  "valid",
			hosts: []Host{{Name: "a", Address: "10.0.0.1", Driver: DriverTDengine}},
		},
		{
			name:    "missing address",
			hosts:   []Host{{Name: "a", Driver: DriverTDengine}},
			wantErr: "address is required",
		},
		{
			name:    "unknown driver",
			hosts:   []Host{{Address: "10.0.0.1", Driver: "influx"}},
			wantErr: "unknown driver",
		},
		{
			name: "duplicate id",
			hosts: []Host{
				{Name: "a", Address: "10.0.0.1", Driver: DriverTDengine},
				{Name: "a", Address: "10.0.0.2", Driver: DriverTDengine},
			},
			wantErr: "duplicate host",
		},
		{
			name:    "sqlite tunnel",
			hosts:   []Host{{Address: "x.db", Driver: DriverSQLite, SSH: SSHTunnel{User: "ops"}}},
			wantErr: "cannot use an ssh tunnel",
		},
		{
			name:    "negative local port",
			hosts:   []Host{{Address: "10.0.0.1", Driver: DriverTDengine, SSH: SSHTunnel{User: "ops", LocalPort: -1}}},
			wantErr: "local_port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Hosts = tt.hosts
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestReload_KeepsHosts(t *testing.T) {
	path := writeConfig(t, "tsbrowse.yaml", `
hosts:
  - name: a
    address: 10.0.0.1
browse:
  page_size: 10
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	updated := `
hosts:
  - name: b
    address: 10.0.0.2
browse:
  page_size: 30
`
	if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}

	if err := cfg.Reload(); err != nil {
		t.Fatalf("Reload() error: %v", err)
	}

	if got := cfg.GetBrowse().PageSize; got != 30 {
		t.Errorf("PageSize after reload = %d, want 30", got)
	}
	if cfg.Hosts[0].ID() != "a" {
		t.Errorf("hosts changed on reload: %q", cfg.Hosts[0].ID())
	}
}

func TestResolveSecrets(t *testing.T) {
	keyring.MockInit()
	if err := keyring.Set(KeyringService, "db:plant-a", "dbpass"); err != nil {
		t.Fatalf("keyring.Set: %v", err)
	}
	if err := keyring.Set(KeyringService, "ssh:plant-a", "sshpass"); err != nil {
		t.Fatalf("keyring.Set: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Hosts = []Host{{
		Name:    "plant-a",
		Address: "10.0.0.1",
		Driver:  DriverPostgres,
		Keyring: true,
		SSH:     SSHTunnel{User: "ops", Keyring: true},
	}}

	if err := cfg.ResolveSecrets(); err != nil {
		t.Fatalf("ResolveSecrets() error: %v", err)
	}
	if cfg.Hosts[0].Password != "dbpass" || cfg.Hosts[0].SSH.Password != "sshpass" {
		t.Errorf("secrets not resolved: %+v", cfg.Hosts[0])
	}

	cfg.Hosts = []Host{{Name: "missing", Address: "x", Driver: DriverPostgres, Keyring: true}}
	if err := cfg.ResolveSecrets(); err == nil {
		t.Error("expected error for missing keyring entry")
	}
}

func TestBuildResolver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AnonymousAccess = "read-only"
	cfg.Users = []User{
		{Name: "ops", Admin: true},
		{Name: "field", Access: []AccessRule{{Pattern: "plant-*", Level: "read-only"}}},
	}

	r := cfg.BuildResolver()
	if !r.Admins["ops"] {
		t.Error("ops should be admin")
	}
	if len(r.UserRules["field"]) != 1 {
		t.Errorf("field rules = %v, want 1", r.UserRules["field"])
	}
	if !r.AnonymousAccess.CanRead() {
		t.Error("anonymous access should be read-only")
	}
}

func TestLoad_DemoConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "testdata", "fixtures", "demo.yaml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	var ids []string
	for _, h := range cfg.Hosts {
		ids = append(ids, h.ID())
	}
	if strings.Join(ids, ",") != "plant-a,plant-b,empty" {
		t.Errorf("host ids = %v", ids)
	}
	if got := cfg.GetBrowse().FilterColumn; got != "robot_id" {
		t.Errorf("filter column = %q, want robot_id", got)
	}

	r := cfg.BuildResolver()
	if r.AnonymousAccess.String() != "read-only" {
		t.Errorf("anonymous access = %s, want read-only", r.AnonymousAccess)
	}
}
