// Package identity provides session identifiers for anonymous reflection sessions.
package identity

import (
	"context"
	"net"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ashureev/gita-reflect/internal/shared"
)

// SessionHeaderName carries a client-chosen session id on create requests.
const SessionHeaderName = "X-Session-ID"

type contextKey int

const sessionIDKey contextKey = iota

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// NewSessionID generates a fresh session id.
func NewSessionID() string {
	return uuid.NewString()
}

// IsValidSessionID reports whether id is usable as a session key.
func IsValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

// NormalizeSessionID trims id and validates it. An empty id is replaced by a
// generated one.
func NormalizeSessionID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return NewSessionID(), nil
	}
	if !IsValidSessionID(id) {
		return "", shared.InvalidInput("invalid session id %q", truncate(id, 32))
	}
	return id, nil
}

// SessionIDFromRequest reads the session id header.
func SessionIDFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(SessionHeaderName))
}

// WithSessionID stores the session id in ctx.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// SessionIDFromContext extracts the session id from ctx.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return ""
}

// IPFromRequest returns the remote IP without its port. Behind chi's RealIP
// middleware this is the forwarded client address.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// truncate keeps at most n runes of s.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
