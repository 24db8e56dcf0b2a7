package world

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 20
	minPasswordLen = 8

	passwordPepper = "mmo_server_secret_salt"
	saltKey        = "salt_generation_key"
)

func hashPassword(password, salt string) string {
	h := sha256.New()
	io.WriteString(h, password)
	io.WriteString(h, salt)
	io.WriteString(h, passwordPepper)
	return hex.EncodeToString(h.Sum(nil))
}

func generateSalt(id Identity, now time.Time) string {
	h := sha256.New()
	io.WriteString(h, string(id))
	io.WriteString(h, strconv.FormatInt(now.UnixNano(), 10))
	io.WriteString(h, saltKey)
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func validateUsername(username string) error {
	trimmed := strings.TrimSpace(username)
	if trimmed == "" {
		return Validationf("Username cannot be empty")
	}
	if len(trimmed) < minUsernameLen {
		return Validationf("Username must be at least %d characters", minUsernameLen)
	}
	if len(trimmed) > maxUsernameLen {
		return Validationf("Username cannot exceed %d characters", maxUsernameLen)
	}
	for _, r := range trimmed {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return Validationf("Username can only contain letters, numbers, and underscores")
		}
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLen {
		return Validationf("Password must be at least %d characters", minPasswordLen)
	}
	return nil
}

func validateEmail(email string) error {
	if !strings.Contains(email, "@") || !strings.Contains(email, ".") {
		return Validationf("Invalid email format")
	}
	return nil
}

// Register creates an account bound to the caller's identity. The username is
// stored trimmed, and lookups elsewhere use the stored form.
func (w *World) Register(ctx Ctx, username, password, email string) error {
	if err := validateUsername(username); err != nil {
		return err
	}
	if err := validatePassword(password); err != nil {
		return err
	}
	if email != "" {
		if err := validateEmail(email); err != nil {
			return err
		}
	}
	username = strings.TrimSpace(username)
	if _, exists := w.users[ctx.Caller]; exists {
		return Statef("Account already registered")
	}
	if _, taken := w.byName[username]; taken {
		return Statef("Username is already taken")
	}

	salt := generateSalt(ctx.Caller, ctx.Now)
	w.users[ctx.Caller] = &User{
		Identity:     ctx.Caller,
		Username:     username,
		PasswordHash: hashPassword(password, salt),
		PasswordSalt: salt,
		Email:        email,
		CreatedAt:    ctx.Now,
		LastLogin:    ctx.Now,
		Active:       true,
	}
	w.byName[username] = ctx.Caller
	return nil
}

// Login verifies credentials and opens the caller's session, or re-binds an
// existing one to the new connection. Credential failures are reported with a
// single message so callers cannot probe which usernames exist.
func (w *World) Login(ctx Ctx, username, password, clientVersion, connectionID, remoteAddr string) error {
	id, ok := w.byName[username]
	if !ok {
		return Permissionf("Invalid username or password")
	}
	u := w.users[id]
	if !u.Active {
		return Permissionf("Account is suspended")
	}
	if hashPassword(password, u.PasswordSalt) != u.PasswordHash {
		return Permissionf("Invalid username or password")
	}
	if id != ctx.Caller {
		return Permissionf("Account belongs to a different identity")
	}

	u.LastLogin = ctx.Now
	if s, live := w.sessions[id]; live {
		s.ConnectionID = connectionID
		s.ClientVersion = clientVersion
		s.RemoteAddr = remoteAddr
		s.LastActivity = ctx.Now
		return nil
	}
	w.sessions[id] = &GameSession{
		Identity:      id,
		ConnectionID:  connectionID,
		LoginTime:     ctx.Now,
		LastActivity:  ctx.Now,
		ClientVersion: clientVersion,
		RemoteAddr:    remoteAddr,
	}
	return nil
}

// Logout ends the caller's session and marks their character offline. It is
// safe to call without a session.
func (w *World) Logout(ctx Ctx) error {
	delete(w.sessions, ctx.Caller)
	if p, ok := w.players[ctx.Caller]; ok {
		p.Online = false
		p.LastSeen = ctx.Now
	}
	return nil
}
