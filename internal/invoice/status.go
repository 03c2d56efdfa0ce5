package invoice

import (
	"errors"
	"fmt"
)

// Status enumerates the invoice document lifecycle.
type Status string

const (
	StatusDraft       Status = "draft"
	StatusPending     Status = "pending"
	StatusPartialPaid Status = "partial_paid"
	StatusPaid        Status = "paid"
	StatusCancelled   Status = "cancelled"
	StatusRefunded    Status = "refunded"
	StatusVoid        Status = "void"
	StatusWrittenOff  Status = "written_off"
)

// Action enumerates lifecycle operations a caller can request.
type Action string

const (
	ActionFinalize Action = "finalize"
	ActionPay      Action = "pay"
	ActionCancel   Action = "cancel"
	ActionRefund   Action = "refund"
	ActionVoid     Action = "void"
	ActionWriteOff Action = "write_off"
)

// ErrTransitionNotAllowed is returned when the requested action is not valid
// for the invoice's current status.
var ErrTransitionNotAllowed = errors.New("invoice: transition not allowed")

// transitions is the single authority for lifecycle moves. Statuses without
// an entry are terminal. ActionPay maps to the partial-paid state here; the
// payment path promotes to paid once the outstanding balance reaches zero
// (see NextOnPayment).
var transitions = map[Status]map[Action]Status{
	StatusDraft: {
		ActionFinalize: StatusPending,
		ActionCancel:   StatusCancelled,
	},
	StatusPending: {
		ActionPay:    StatusPartialPaid,
		ActionCancel: StatusCancelled,
		ActionVoid:   StatusVoid,
	},
	StatusPartialPaid: {
		ActionPay:      StatusPartialPaid,
		ActionWriteOff: StatusWrittenOff,
	},
	StatusPaid: {
		ActionRefund: StatusRefunded,
	},
}

// actionOrder fixes a stable ordering for AllowedActions output.
var actionOrder = []Action{ActionFinalize, ActionPay, ActionCancel, ActionRefund, ActionVoid, ActionWriteOff}

// AllowedActions returns the lifecycle actions valid for the given status in
// a stable order. Terminal statuses return an empty slice.
func AllowedActions(s Status) []Action {
	row := transitions[s]
	if len(row) == 0 {
		return nil
	}
	out := make([]Action, 0, len(row))
	for _, a := range actionOrder {
		if _, ok := row[a]; ok {
			out = append(out, a)
		}
	}
	return out
}

// Next resolves the status reached by applying action to the current status.
func Next(s Status, a Action) (Status, error) {
	if next, ok := transitions[s][a]; ok {
		return next, nil
	}
	return s, fmt.Errorf("%w: %s from %s", ErrTransitionNotAllowed, a, s)
}

// NextOnPayment resolves the status after recording a payment: paid when the
// document is fully settled, partial_paid otherwise. Payment must be allowed
// from the current status.
func NextOnPayment(s Status, settled bool) (Status, error) {
	if _, err := Next(s, ActionPay); err != nil {
		return s, err
	}
	if settled {
		return StatusPaid, nil
	}
	return StatusPartialPaid, nil
}

// Terminal reports whether no further lifecycle action is possible.
func Terminal(s Status) bool {
	return len(transitions[s]) == 0
}

// ValidStatus reports whether s is a known lifecycle status.
func ValidStatus(s Status) bool {
	switch s {
	case StatusDraft, StatusPending, StatusPartialPaid, StatusPaid,
		StatusCancelled, StatusRefunded, StatusVoid, StatusWrittenOff:
		return true
	}
	return false
}
