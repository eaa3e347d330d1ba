// Package model defines the data structures used throughout the application.
package model

import "time"

// Run is one recorded code execution: what was submitted, which isolation
// tier ran it, and what came back. Stored so users can review their history
// and so operators can see which tiers are actually being exercised.
//
// The `json:"..."` struct tags control how encoding/json serializes the
// struct for API responses.
type Run struct {
	ID       string `json:"id"`
	UserID   string `json:"userId,omitempty"` // empty for anonymous runs
	Code     string `json:"code"`
	Language string `json:"language"`

	// Result fields, copied from the sandbox outcome.
	Output     string `json:"output"`
	Tier       string `json:"tier"`      // which isolation tier ran the code
	ErrorKind  string `json:"errorKind"` // none, timeout, resource_limit, ...
	ExitCode   int    `json:"exitCode"`
	DurationMS int64  `json:"durationMs"`

	CreatedAt time.Time `json:"createdAt"`
}
