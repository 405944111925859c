package flow

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrInFlight is returned when a form is submitted while its previous submission is pending.
	ErrInFlight = errors.New("a submission is already in progress")
	// ErrCompleted is returned when a form that already succeeded is submitted again.
	ErrCompleted = errors.New("this form has already been completed")
	// ErrClosed is returned once the form has been torn down.
	ErrClosed = errors.New("this form is no longer active")
)

// Submission is one attempt to complete a form.
type Submission struct {
	// Validate runs synchronously before the call; a non-nil error ends in the error state without a call.
	Validate func() error
	// Pending is the message shown while submitting.
	Pending string
	// Call performs the backend request and returns a success or error state.
	Call func(ctx context.Context) State
}

type event int

const (
	eventSubmit event = iota
	eventInvalid
	eventSettle
)

// next is the transition table; every status is handled explicitly.
func next(from Status, ev event, settled State) (State, error) {
	switch from {
	case StatusIdle, StatusError:
		switch ev {
		case eventSubmit:
			return Submitting(""), nil
		case eventInvalid:
			return settled, nil
		}
	case StatusSubmitting:
		switch ev {
		case eventSubmit, eventInvalid:
			return State{}, ErrInFlight
		case eventSettle:
			if st := settled.Status(); st == StatusSuccess || st == StatusError {
				return settled, nil
			}
			return Failed(CauseApplication, ""), nil
		}
	case StatusSuccess:
		return State{}, ErrCompleted
	}
	return State{}, errors.New("flow: invalid transition from " + string(from))
}

// Machine drives one form through idle → submitting → success|error, allowing at most one
// submission in flight.
type Machine struct {
	kind    Kind
	observe func(Kind, Status)
	now     func() time.Time

	mu        sync.Mutex
	state     State
	settledAt time.Time
	closed    bool
	cancel    context.CancelFunc
	claimed   map[string]struct{}
}

// NewMachine creates an idle machine for kind.
func NewMachine(kind Kind) *Machine {
	return &Machine{kind: kind, now: time.Now, state: Idle(), claimed: make(map[string]struct{})}
}

// Kind returns the form this machine belongs to.
func (m *Machine) Kind() Kind {
	return m.kind
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Run submits the form. It returns ErrInFlight, ErrCompleted or ErrClosed without side effects
// when the submission is not allowed; otherwise it returns the settled state.
func (m *Machine) Run(ctx context.Context, sub Submission) (State, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return State{}, ErrClosed
	}

	if sub.Validate != nil {
		if err := sub.Validate(); err != nil {
			failed := Failed(CauseValidation, validationMessage(err))
			st, terr := next(m.state.Status(), eventInvalid, failed)
			if terr != nil {
				current := m.state
				m.mu.Unlock()
				return current, terr
			}
			m.setLocked(st)
			m.mu.Unlock()
			return st, nil
		}
	}

	if _, err := next(m.state.Status(), eventSubmit, State{}); err != nil {
		current := m.state
		m.mu.Unlock()
		return current, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.setLocked(Submitting(sub.Pending))
	m.mu.Unlock()

	settled := sub.Call(runCtx)
	cancel()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancel = nil
	if m.closed {
		return State{}, ErrClosed
	}

	st, err := next(StatusSubmitting, eventSettle, settled)
	if err != nil {
		return m.state, err
	}
	m.setLocked(st)
	return st, nil
}

// RunOnce runs sub only the first time it sees key; later calls report ran=false and the current state.
func (m *Machine) RunOnce(ctx context.Context, key string, sub Submission) (State, bool, error) {
	m.mu.Lock()
	if _, seen := m.claimed[key]; seen {
		current := m.state
		m.mu.Unlock()
		return current, false, nil
	}
	m.claimed[key] = struct{}{}
	m.mu.Unlock()

	st, err := m.Run(ctx, sub)
	if errors.Is(err, ErrInFlight) {
		m.mu.Lock()
		delete(m.claimed, key)
		m.mu.Unlock()
		return st, false, err
	}
	return st, true, err
}

// Close tears the machine down. An in-flight call is cancelled and its result discarded.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

// Busy reports whether a submission is in flight.
func (m *Machine) Busy() bool {
	return m.State().Status() == StatusSubmitting
}

// finished reports whether the machine succeeded and its redirect has had time to happen.
func (m *Machine) finished(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Status() != StatusSuccess {
		return false
	}
	return now.Sub(m.settledAt) >= m.state.RedirectAfter()
}

// claimedKeys carries RunOnce keys over to a replacement machine.
func (m *Machine) claimedKeys() map[string]struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]struct{}, len(m.claimed))
	for k := range m.claimed {
		out[k] = struct{}{}
	}
	return out
}

func (m *Machine) setLocked(st State) {
	m.state = st
	if st.Status() == StatusSuccess || st.Status() == StatusError {
		m.settledAt = m.now()
	}
	if m.observe != nil {
		m.observe(m.kind, st.Status())
	}
}

func validationMessage(err error) string {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Message
	}
	return err.Error()
}
