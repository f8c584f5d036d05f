// Package agent wires the interpreters, safety checks, approval policy,
// and provider adapters into the four capability handlers, and exposes
// them through a Dispatcher the RPC layer calls. A handler invocation is
// one stateless pipeline: parse, check credentials, interpret, run
// safety checks, gate on approval, execute.
package agent

import (
	"encoding/json"
	"fmt"

	"github.com/chronoplan/chronoplan/approval"
)

// Error codes surfaced in failure responses.
const (
	CodeInterpreterFailed = "INTERPRETER_FAILED"
	CodeNotFound          = "NOT_FOUND"
	CodeAmbiguous         = "AMBIGUOUS"
	CodeProviderError     = "PROVIDER_ERROR"
	CodeSyncFailure       = "SYNC_FAILURE"
	CodeInvalidAction     = "INVALID_ACTION"
)

// Response is the single reply shape every capability returns. Exactly
// one of the four variants is populated: success, needs_approval,
// needs_setup, or error.
type Response struct {
	Success  *bool  `json:"success,omitempty"`
	Provider string `json:"provider,omitempty"`
	Action   string `json:"action,omitempty"`
	Data     any    `json:"data,omitempty"`
	Message  string `json:"message,omitempty"`

	NeedsApproval bool              `json:"needs_approval,omitempty"`
	ActionType    approval.Kind     `json:"action_type,omitempty"`
	ActionData    json.RawMessage   `json:"action_data,omitempty"`
	Preview       *approval.Preview `json:"preview,omitempty"`

	NeedsSetup bool `json:"needs_setup,omitempty"`

	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

func boolPtr(b bool) *bool { return &b }

// Succeed builds a success response.
func Succeed(provider, action string, data any, message string) *Response {
	return &Response{
		Success:  boolPtr(true),
		Provider: provider,
		Action:   action,
		Data:     data,
		Message:  message,
	}
}

// ApprovalNeeded serializes the record into an approval response. The
// record rides back to the caller in full; the server keeps nothing.
func ApprovalNeeded(rec *approval.Record) (*Response, error) {
	data, err := rec.Encode()
	if err != nil {
		return nil, err
	}
	return &Response{
		NeedsApproval: true,
		ActionType:    rec.Kind,
		ActionData:    data,
		Preview:       &rec.Preview,
	}, nil
}

// SetupNeeded builds a needs_setup response naming the missing keys.
func SetupNeeded(missing []string) *Response {
	msg := "Provider credentials are not configured."
	if len(missing) > 0 {
		msg = fmt.Sprintf("Missing credentials: %v. Configure them to use this capability.", missing)
	}
	return &Response{NeedsSetup: true, Message: msg}
}

// Fail builds an error response.
func Fail(provider, code string, err error) *Response {
	return &Response{
		Success:  boolPtr(false),
		Provider: provider,
		Error:    err.Error(),
		Code:     code,
	}
}

// Failf builds an error response from a format string.
func Failf(provider, code, format string, args ...any) *Response {
	return Fail(provider, code, fmt.Errorf(format, args...))
}
