package server

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/charmbracelet/ssh"
	gossh "golang.org/x/crypto/ssh"

	"github.com/johan-st/tsbrowse/internal/access"
	"github.com/johan-st/tsbrowse/internal/config"
	"github.com/johan-st/tsbrowse/internal/history"
)

// Authenticator handles SSH authentication.
type Authenticator struct {
	config  *config.Config
	history *history.Store
	names   *history.NameGenerator
}

// NewAuthenticator creates a new authenticator. store may be nil.
func NewAuthenticator(cfg *config.Config, store *history.Store) *Authenticator {
	return &Authenticator{
		config:  cfg,
		history: store,
		names:   history.NewNameGenerator(),
	}
}

func (a *Authenticator) anonymousName() string {
	if a.history != nil {
		return a.history.GenerateAnonymousName()
	}
	return a.names.Generate()
}

func (a *Authenticator) anonymousAllowed() bool {
	return a.config.AllowsKeyless() || access.ParseLevel(a.config.AnonymousAccess).CanRead()
}

// PublicKeyHandler returns a handler for public key authentication.
func (a *Authenticator) PublicKeyHandler() ssh.PublicKeyHandler {
	return func(ctx ssh.Context, key ssh.PublicKey) bool {
		fingerprint := FingerprintKey(key)

		if user := a.findUserByKey(fingerprint, key); user != nil {
			user.RemoteAddr = ctx.RemoteAddr().String()
			ctx.SetValue(ctxKeyUser, user)
			log.Info("authenticated", "user", user.Name, "remote", ctx.RemoteAddr())
			return true
		}

		if a.anonymousAllowed() {
			anon := &access.UserInfo{
				IsAnonymous:   true,
				AnonymousName: a.anonymousName(),
				PublicKeyFP:   fingerprint,
				RemoteAddr:    ctx.RemoteAddr().String(),
			}
			ctx.SetValue(ctxKeyUser, anon)
			log.Info("anonymous access", "name", anon.AnonymousName, "remote", ctx.RemoteAddr())
			return true
		}

		log.Warn("authentication failed", "fingerprint", fingerprint, "remote", ctx.RemoteAddr())
		return false
	}
}

// KeyboardInteractiveHandler admits keyless clients as anonymous users.
func (a *Authenticator) KeyboardInteractiveHandler() ssh.KeyboardInteractiveHandler {
	return func(ctx ssh.Context, _ gossh.KeyboardInteractiveChallenge) bool {
		if !a.config.AllowsKeyless() {
			return false
		}
		anon := &access.UserInfo{
			IsAnonymous:   true,
			AnonymousName: a.anonymousName(),
			RemoteAddr:    ctx.RemoteAddr().String(),
		}
		ctx.SetValue(ctxKeyUser, anon)
		log.Info("anonymous keyboard-interactive access", "name", anon.AnonymousName, "remote", ctx.RemoteAddr())
		return true
	}
}

// findUserByKey matches key against the configured users. Entries may be
// authorized_keys lines or bare SHA256 fingerprints.
func (a *Authenticator) findUserByKey(fingerprint string, key ssh.PublicKey) *access.UserInfo {
	for _, user := range a.config.GetUsers() {
		for _, entry := range user.PublicKeys {
			parsed, _, _, _, err := ssh.ParseAuthorizedKey([]byte(entry))
			matched := false
			if err != nil {
				matched = strings.TrimSpace(entry) == fingerprint
			} else {
				matched = ssh.KeysEqual(parsed, key)
			}
			if matched {
				return &access.UserInfo{
					Name:        user.Name,
					IsAdmin:     user.Admin,
					PublicKeyFP: fingerprint,
				}
			}
		}
	}
	return nil
}

// GetUserFromContext retrieves user info from the SSH context.
func GetUserFromContext(ctx ssh.Context) *access.UserInfo {
	if user, ok := ctx.Value(ctxKeyUser).(*access.UserInfo); ok {
		return user
	}
	return nil
}

// FingerprintKey returns the SHA256 fingerprint of a public key.
func FingerprintKey(key ssh.PublicKey) string {
	hash := sha256.Sum256(key.Marshal())
	return fmt.Sprintf("SHA256:%s", base64.RawStdEncoding.EncodeToString(hash[:]))
}
