package server

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"strings"
	"testing"

	"github.com/charmbracelet/ssh"
	gossh "golang.org/x/crypto/ssh"

	"github.com/johan-st/tsbrowse/internal/access"
	"github.com/johan-st/tsbrowse/internal/browse"
	"github.com/johan-st/tsbrowse/internal/config"
	"github.com/johan-st/tsbrowse/internal/database"
	"github.com/johan-st/tsbrowse/internal/testutil"
)

func newKey(t *testing.T) ssh.PublicKey {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	key, err := gossh.NewPublicKey(pub)
	if err != nil {
		t.Fatalf("NewPublicKey() error: %v", err)
	}
	return key
}

func TestFingerprintKey(t *testing.T) {
	key := newKey(t)
	fp := FingerprintKey(key)

	if !strings.HasPrefix(fp, "SHA256:") {
		t.Errorf("FingerprintKey() = %q, want SHA256: prefix", fp)
	}
	if fp != gossh.FingerprintSHA256(key) {
		t.Errorf("FingerprintKey() = %q, want %q", fp, gossh.FingerprintSHA256(key))
	}
	if FingerprintKey(newKey(t)) == fp {
		t.Error("different keys produced the same fingerprint")
	}
}

func TestFindUserByKey(t *testing.T) {
	alice := newKey(t)
	bob := newKey(t)
	stranger := newKey(t)

	cfg := config.DefaultConfig()
	cfg.Users = []config.User{
		{Name: "alice", Admin: true, PublicKeys: []string{string(gossh.MarshalAuthorizedKey(alice))}},
		{Name: "bob", PublicKeys: []string{FingerprintKey(bob)}},
	}
	auth := NewAuthenticator(cfg, nil)

	tests := []struct {
		name      string
		key       ssh.PublicKey
		wantUser  string
		wantAdmin bool
	}{
		{"authorized_keys entry", alice, "alice", true},
		{"fingerprint entry", bob, "bob", false},
		{"unknown key", stranger, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := auth.findUserByKey(FingerprintKey(tt.key), tt.key)
			if tt.wantUser == "" {
				if user != nil {
					t.Fatalf("findUserByKey() = %+v, want nil", user)
				}
				return
			}
			if user == nil {
				t.Fatal("findUserByKey() = nil")
			}
			if user.Name != tt.wantUser || user.IsAdmin != tt.wantAdmin {
				t.Errorf("findUserByKey() = %s admin=%v, want %s admin=%v", user.Name, user.IsAdmin, tt.wantUser, tt.wantAdmin)
			}
		})
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	hosts := []config.Host{
		testutil.Host("plant-a", testutil.EventsDB(t)),
		testutil.Host("plant-b", testutil.EventsDB(t)),
		testutil.Host("lab", testutil.EventsDB(t)),
	}
	reg, err := database.ConnectAll(context.Background(), hosts)
	if err != nil {
		t.Fatalf("ConnectAll() error: %v", err)
	}
	t.Cleanup(func() { reg.Close() })

	cfg := config.DefaultConfig()
	cfg.AnonymousAccess = "none"
	cfg.Users = []config.User{
		{Name: "ops", Access: []config.AccessRule{{Pattern: "plant-*", Level: "read-only"}}},
		{Name: "root", Admin: true},
	}
	return NewServer(cfg, reg, nil)
}

func hostIDs(reg *database.Registry) []string {
	var ids []string
	for _, s := range reg.Sessions() {
		ids = append(ids, s.ID())
	}
	return ids
}

func TestServer_Bind(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name      string
		user      *access.UserInfo
		wantHosts []string
		wantAdmin bool
	}{
		{"rule pattern", &access.UserInfo{Name: "ops"}, []string{"plant-a", "plant-b"}, false},
		{"admin sees all", &access.UserInfo{Name: "root"}, []string{"plant-a", "plant-b", "lab"}, true},
		{"anonymous denied", &access.UserInfo{IsAnonymous: true, AnonymousName: "x"}, nil, false},
		{"unknown user", &access.UserInfo{Name: "eve"}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := NewSession(tt.user, "127.0.0.1:5000")
			srv.Bind(sess, 100)

			got := hostIDs(sess.Registry)
			if strings.Join(got, ",") != strings.Join(tt.wantHosts, ",") {
				t.Errorf("visible hosts = %v, want %v", got, tt.wantHosts)
			}
			if sess.IsAdmin() != tt.wantAdmin {
				t.Errorf("IsAdmin() = %v, want %v", sess.IsAdmin(), tt.wantAdmin)
			}
			if sess.Controller == nil {
				t.Fatal("Controller not set")
			}
		})
	}
}

func TestServer_BindControllerIsolated(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	one := NewSession(&access.UserInfo{Name: "root"}, "a")
	two := NewSession(&access.UserInfo{Name: "root"}, "b")
	srv.Bind(one, 80)
	srv.Bind(two, 80)

	if _, err := one.Controller.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if _, err := two.Controller.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	snap, err := one.Controller.Dispatch(ctx, browse.SwitchHost{ID: "lab"})
	if err != nil {
		t.Fatalf("SwitchHost error: %v", err)
	}
	if snap.Selection.Host != "lab" {
		t.Errorf("session one host = %q, want lab", snap.Selection.Host)
	}
	if got := two.Controller.Snapshot().Selection.Host; got != "plant-a" {
		t.Errorf("session two host = %q, want plant-a", got)
	}
	if got := srv.registry.ActiveID(); got != "plant-a" {
		t.Errorf("server active host = %q, want plant-a", got)
	}
}

func TestServer_UpdateResolver(t *testing.T) {
	srv := newTestServer(t)

	r := access.NewResolver()
	r.SetAnonymousAccess(access.ReadOnly)
	srv.UpdateResolver(r)

	sess := NewSession(&access.UserInfo{IsAnonymous: true, AnonymousName: "guest"}, "a")
	srv.Bind(sess, 80)
	if got := sess.Registry.Len(); got != 3 {
		t.Errorf("anonymous hosts after update = %d, want 3", got)
	}
}

func TestSessionManager(t *testing.T) {
	sm := NewSessionManager(nil)
	ctx := context.Background()

	a := sm.CreateSession(ctx, &access.UserInfo{Name: "a"}, "1")
	b := sm.CreateSession(ctx, &access.UserInfo{Name: "b"}, "2")
	if a.ID == b.ID {
		t.Fatal("session ids collide")
	}
	if sm.Count() != 2 {
		t.Errorf("Count() = %d, want 2", sm.Count())
	}
	if sm.GetSession(a.ID) != a {
		t.Error("GetSession() did not return the created session")
	}

	sm.EndSession(ctx, a.ID)
	if sm.Count() != 1 || sm.GetSession(a.ID) != nil {
		t.Error("EndSession() did not remove the session")
	}
}
