package fsm

import (
	"context"
	"errors"
	"slices"

	loopfsm "github.com/looplab/fsm"

	"github.com/neomorfeo/rosterlink/internal/domain"
)

var _ domain.TransitionValidator = (*Validator)(nil)

// Validator checks connection status changes against a transition table
// using looplab/fsm. Machines are built per call from the stored status,
// so one Validator is safe for concurrent use.
type Validator struct {
	events loopfsm.Events
}

// New returns a Validator for the connection lifecycle in domain.Transitions.
func New() *Validator {
	return NewFor(domain.Transitions)
}

// NewFor returns a Validator for an arbitrary transition table. Rows sharing
// an event and a destination collapse into one looplab event with several
// sources, e.g. disconnect from ACTIVE or ERROR.
func NewFor(table []domain.Transition) *Validator {
	var events loopfsm.Events
	for _, tr := range table {
		i := slices.IndexFunc(events, func(e loopfsm.EventDesc) bool {
			return e.Name == string(tr.Event) && e.Dst == string(tr.Dst)
		})
		if i < 0 {
			events = append(events, loopfsm.EventDesc{Name: string(tr.Event), Dst: string(tr.Dst)})
			i = len(events) - 1
		}
		events[i].Src = append(events[i].Src, string(tr.Src))
	}
	return &Validator{events: events}
}

// Apply returns the status a connection in current moves to on event.
// Declared self-loops (reconnecting an ACTIVE connection, a failing test on
// an ERROR one) return current unchanged. Anything undeclared yields a
// *domain.TransitionError.
func (v *Validator) Apply(ctx context.Context, current domain.ConnectionStatus, event domain.ConnectionEvent) (domain.ConnectionStatus, error) {
	machine := loopfsm.NewFSM(string(current), v.events, nil)

	err := machine.Event(ctx, string(event))
	switch {
	case err == nil:
		return domain.ConnectionStatus(machine.Current()), nil
	case errors.As(err, new(loopfsm.NoTransitionError)):
		return current, nil
	case errors.As(err, new(loopfsm.InvalidEventError)), errors.As(err, new(loopfsm.UnknownEventError)):
		return "", &domain.TransitionError{Event: event, Current: current}
	default:
		return "", err
	}
}
