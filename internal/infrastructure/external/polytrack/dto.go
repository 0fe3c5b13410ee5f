// Package polytrack implements the Polytrack leaderboard API client.
// All requests are relayed through a CORS proxy; the upstream endpoint is
// passed to the proxy as a single URL-encoded query parameter. This package
// handles leaderboard pages, user identity lookups and recording ghosts.
package polytrack

import (
	"fmt"
	"net/http"
)

// ══════════════════════════════════════════════════════════════════════════════
// DATA TRANSFER OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// EntryDTO is one leaderboard record as the service reports it. Times arrive
// in milliseconds under the "frames" key.
type EntryDTO struct {
	ID            int64  `json:"id"`
	UserID        string `json:"userId"`
	Name          string `json:"name"`
	CarColors     string `json:"carColors"`
	Frames        int64  `json:"frames"`
	VerifiedState int    `json:"verifiedState"`
	Position      int    `json:"position"`
}

// PageDTO is the leaderboard query response: the total entry count, the
// requested window, and the standing of the query subject when a token hash
// was supplied. UserEntry is null when the subject has no record on the
// track, even on a 200 response.
type PageDTO struct {
	Total     int        `json:"total"`
	Entries   []EntryDTO `json:"entries"`
	UserEntry *EntryDTO  `json:"userEntry"`
}

// UserInfoDTO is the identity lookup response for a raw user token.
type UserInfoDTO struct {
	Name       string `json:"name"`
	CarColors  string `json:"carColors"`
	IsVerifier bool   `json:"isVerifier"`
}

// RecordingDTO is one replay ghost. The recordings endpoint returns a
// positional array with nulls for unavailable entries.
type RecordingDTO struct {
	Recording     string `json:"recording"`
	Frames        int64  `json:"frames"`
	VerifiedState int    `json:"verifiedState"`
	CarColors     string `json:"carColors"`
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// FetchError is a non-2xx response from the service or the proxy in front
// of it.
type FetchError struct {
	StatusCode int
	Endpoint   string
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return fmt.Sprintf("polytrack %s: http status %d", e.Endpoint, e.StatusCode)
}

// IsNotFound reports whether the service answered 404. For user-entry
// queries this means the user has no record, not that the request failed.
func (e *FetchError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsRetryable reports whether the request is worth repeating: server errors
// and throttling qualify, client errors do not.
func (e *FetchError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}
