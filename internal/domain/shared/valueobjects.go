package shared

import (
	"regexp"
	"strings"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// UserToken is the secret token a player exports from the game client. It is
// never sent to the leaderboard service and never logged; only its hash
// leaves the process.
type UserToken string

// IsValid checks that the token is non-empty after trimming.
func (t UserToken) IsValid() bool {
	return strings.TrimSpace(string(t)) != ""
}

// Normalize returns the token with surrounding whitespace removed.
func (t UserToken) Normalize() UserToken {
	return UserToken(strings.TrimSpace(string(t)))
}

// NewUserToken creates a UserToken with validation.
func NewUserToken(raw string) (UserToken, error) {
	t := UserToken(raw).Normalize()
	if !t.IsValid() {
		return "", ErrEmptyToken
	}
	return t, nil
}

// TokenHash is the lowercase hex SHA-256 digest of a user token. This is the
// public identity the leaderboard service keys entries by.
type TokenHash string

var tokenHashRegex = regexp.MustCompile(`^[0-9a-f]{64}$`)

// IsValid checks the 64-character lowercase hex shape.
func (h TokenHash) IsValid() bool {
	return tokenHashRegex.MatchString(string(h))
}

// String returns the string representation.
func (h TokenHash) String() string {
	return string(h)
}

// NewTokenHash creates a TokenHash with validation.
func NewTokenHash(hex string) (TokenHash, error) {
	h := TokenHash(strings.ToLower(strings.TrimSpace(hex)))
	if !h.IsValid() {
		return "", NewDomainError("shared", "NewTokenHash", ErrInvalidFormat, "token hash must be 64 hex characters")
	}
	return h, nil
}

// SessionID identifies one resolution session (UUID format).
type SessionID string

var uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// IsValid checks if the session ID is a valid UUID.
func (s SessionID) IsValid() bool {
	return uuidRegex.MatchString(string(s))
}

// String returns the string representation.
func (s SessionID) String() string {
	return string(s)
}

// IsEmpty checks if the ID is empty.
func (s SessionID) IsEmpty() bool {
	return s == ""
}

// NewSessionID creates a SessionID with validation.
func NewSessionID(id string) (SessionID, error) {
	sid := SessionID(strings.ToLower(strings.TrimSpace(id)))
	if !sid.IsValid() {
		return "", NewDomainError("shared", "NewSessionID", ErrInvalidFormat, "invalid session ID format")
	}
	return sid, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Generation Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Generation is a monotonically increasing token attached to every in-flight
// resolution. Responses carrying a generation older than the current one are
// discarded, which keeps a superseded search from overwriting fresh state.
type Generation uint64

// IsZero reports whether the generation has never been advanced.
func (g Generation) IsZero() bool {
	return g == 0
}

// Supersedes reports whether g is newer than other.
func (g Generation) Supersedes(other Generation) bool {
	return g > other
}

// ═══════════════════════════════════════════════════════════════════════════
// Timestamp Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Timestamp wraps a UTC time for session bookkeeping.
type Timestamp struct {
	t time.Time
}

// Now returns the current UTC timestamp.
func Now() Timestamp {
	return Timestamp{t: time.Now().UTC()}
}

// NewTimestamp creates a timestamp from a time value, normalized to UTC.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{t: t.UTC()}
}

// Time returns the underlying time value.
func (ts Timestamp) Time() time.Time {
	return ts.t
}

// IsZero reports whether the timestamp is unset.
func (ts Timestamp) IsZero() bool {
	return ts.t.IsZero()
}

// Before reports whether ts is earlier than other.
func (ts Timestamp) Before(other Timestamp) bool {
	return ts.t.Before(other.t)
}

// Age returns the elapsed time since the timestamp.
func (ts Timestamp) Age() time.Duration {
	return time.Since(ts.t)
}
