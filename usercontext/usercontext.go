// Package usercontext carries the per-request caller context: timezone,
// wall-clock reference, and provider credentials. A Context is constructed
// from RPC params, threaded read-only through the pipeline, and discarded
// when the request completes. It is never persisted.
package usercontext

import (
	"fmt"
	"time"
)

// Credential keys the agent understands. These match the manifest served
// at /.well-known/a2a-credentials.json.
const (
	CredentialReclaimAPIKey = "RECLAIM_API_KEY"
	CredentialNylasAPIKey   = "NYLAS_API_KEY"
	CredentialNylasGrantID  = "NYLAS_GRANT_ID"
)

// Params is the wire form of the user context as it arrives in RPC params.
type Params struct {
	Timezone    string            `json:"timezone"`
	CurrentDate string            `json:"current_date"` // YYYY-MM-DD
	CurrentTime string            `json:"current_time"` // HH:MM:SS
	UserName    string            `json:"user_name,omitempty"`
	UserEmail   string            `json:"user_email,omitempty"`
	Credentials map[string]string `json:"credentials,omitempty"`
}

// Context is the resolved, immutable per-request user context.
type Context struct {
	Timezone    string
	Location    *time.Location
	CurrentDate string
	CurrentTime string
	Now         time.Time
	UserName    string
	UserEmail   string

	credentials map[string]string
}

// Resolve builds a Context from wire params, filling defaults for any
// missing field. The zero Params resolves to UTC with the real clock.
func Resolve(p Params, clock func() time.Time) (*Context, error) {
	if clock == nil {
		clock = time.Now
	}

	tz := p.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}

	now := clock().In(loc)
	date := p.CurrentDate
	if date == "" {
		date = now.Format("2006-01-02")
	}
	clockTime := p.CurrentTime
	if clockTime == "" {
		clockTime = now.Format("15:04:05")
	}

	// Derive "now" from the supplied date and time so interpreters and
	// safety checks agree with the caller's view of the clock.
	derived, err := time.ParseInLocation("2006-01-02 15:04:05", date+" "+clockTime, loc)
	if err != nil {
		return nil, fmt.Errorf("invalid current_date/current_time %q %q: %w", date, clockTime, err)
	}

	creds := make(map[string]string, len(p.Credentials))
	for k, v := range p.Credentials {
		creds[k] = v
	}

	return &Context{
		Timezone:    tz,
		Location:    loc,
		CurrentDate: date,
		CurrentTime: clockTime,
		Now:         derived,
		UserName:    p.UserName,
		UserEmail:   p.UserEmail,
		credentials: creds,
	}, nil
}

// Credential returns the named credential, or "" when absent.
func (c *Context) Credential(key string) string {
	return c.credentials[key]
}

// HasTaskProvider reports whether the task provider is configured.
func (c *Context) HasTaskProvider() bool {
	return c.credentials[CredentialReclaimAPIKey] != ""
}

// HasCalendarProvider reports whether the calendar provider is configured.
func (c *Context) HasCalendarProvider() bool {
	return c.credentials[CredentialNylasAPIKey] != "" && c.credentials[CredentialNylasGrantID] != ""
}

// MissingCredentials lists the credential keys absent from this context,
// restricted to the keys the given capabilities need.
func (c *Context) MissingCredentials(needTasks, needCalendar bool) []string {
	var missing []string
	if needTasks && c.credentials[CredentialReclaimAPIKey] == "" {
		missing = append(missing, CredentialReclaimAPIKey)
	}
	if needCalendar {
		if c.credentials[CredentialNylasAPIKey] == "" {
			missing = append(missing, CredentialNylasAPIKey)
		}
		if c.credentials[CredentialNylasGrantID] == "" {
			missing = append(missing, CredentialNylasGrantID)
		}
	}
	return missing
}

// LogValue implements slog.LogValuer semantics by hand: the context is
// loggable without ever exposing credential material.
func (c *Context) String() string {
	return fmt.Sprintf("usercontext{tz=%s date=%s time=%s}", c.Timezone, c.CurrentDate, c.CurrentTime)
}
