package flow

import (
	"encoding/json"
	"time"

	"trid/internal/gateway"
)

// Status is the tag of a form's state.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusSubmitting Status = "submitting"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
)

// Cause says where an error state came from.
type Cause string

const (
	CauseNone        Cause = ""
	CauseValidation  Cause = "validation"
	CauseTransport   Cause = "transport"
	CauseApplication Cause = "application"
)

// RedirectDelay is how long a success state is shown before the redirect.
const RedirectDelay = 2 * time.Second

// State is one form's status plus the message that goes with it. The zero value is idle.
// States are only built through Idle, Submitting, Succeeded and Failed, which keep the
// message consistent with the status.
type State struct {
	status     Status
	message    string
	cause      Cause
	redirectTo string
}

// Idle is the state of a form nobody has submitted yet.
func Idle() State {
	return State{status: StatusIdle}
}

// Submitting is the state while the single in-flight request runs.
func Submitting(message string) State {
	return State{status: StatusSubmitting, message: message}
}

// Succeeded is terminal; the browser is sent to redirectTo after RedirectDelay.
func Succeeded(message, redirectTo string) State {
	return State{status: StatusSuccess, message: message, redirectTo: redirectTo}
}

// Failed builds an error state. An empty message is replaced with the generic one.
func Failed(cause Cause, message string) State {
	if message == "" {
		message = gateway.GenericMessage
	}
	if cause == CauseNone {
		cause = CauseApplication
	}
	return State{status: StatusError, message: message, cause: cause}
}

// FromFailure converts a normalized gateway failure into an error state.
func FromFailure(f gateway.Failure) State {
	cause := CauseApplication
	if f.Kind == gateway.KindTransport {
		cause = CauseTransport
	}
	return Failed(cause, f.Message)
}

func (s State) Status() Status {
	if s.status == "" {
		return StatusIdle
	}
	return s.status
}

func (s State) Message() string {
	return s.message
}

func (s State) Cause() Cause {
	return s.cause
}

func (s State) RedirectTo() string {
	return s.redirectTo
}

// RedirectAfter is the delay before following RedirectTo; zero unless the state is success.
func (s State) RedirectAfter() time.Duration {
	if s.status == StatusSuccess && s.redirectTo != "" {
		return RedirectDelay
	}
	return 0
}

type stateJSON struct {
	Status          Status `json:"status"`
	Message         string `json:"message,omitempty"`
	Cause           Cause  `json:"cause,omitempty"`
	RedirectTo      string `json:"redirectTo,omitempty"`
	RedirectAfterMS int64  `json:"redirectAfterMs,omitempty"`
}

// MarshalJSON renders the state for the browser.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(stateJSON{
		Status:          s.Status(),
		Message:         s.message,
		Cause:           s.cause,
		RedirectTo:      s.redirectTo,
		RedirectAfterMS: s.RedirectAfter().Milliseconds(),
	})
}
