package invoice

import (
	"errors"
	"testing"
)

func TestAllowedActions(t *testing.T) {
	tests := []struct {
		status Status
		want   []Action
	}{
		{StatusDraft, []Action{ActionFinalize, ActionCancel}},
		{StatusPending, []Action{ActionPay, ActionCancel, ActionVoid}},
		{StatusPartialPaid, []Action{ActionPay, ActionWriteOff}},
		{StatusPaid, []Action{ActionRefund}},
		{StatusCancelled, nil},
		{StatusRefunded, nil},
		{StatusVoid, nil},
		{StatusWrittenOff, nil},
	}
	for _, tc := range tests {
		got := AllowedActions(tc.status)
		if len(got) != len(tc.want) {
			t.Fatalf("AllowedActions(%s) = %v, want %v", tc.status, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("AllowedActions(%s) = %v, want %v", tc.status, got, tc.want)
			}
		}
	}
}

func TestNextRejectsInvalidTransitions(t *testing.T) {
	cases := []struct {
		status Status
		action Action
	}{
		{StatusDraft, ActionRefund},
		{StatusPending, ActionFinalize},
		{StatusPaid, ActionCancel},
		{StatusCancelled, ActionPay},
		{StatusWrittenOff, ActionWriteOff},
	}
	for _, tc := range cases {
		if _, err := Next(tc.status, tc.action); !errors.Is(err, ErrTransitionNotAllowed) {
			t.Fatalf("Next(%s, %s) should be rejected, got err=%v", tc.status, tc.action, err)
		}
	}
}

func TestLifecycleHappyPath(t *testing.T) {
	s, err := Next(StatusDraft, ActionFinalize)
	if err != nil || s != StatusPending {
		t.Fatalf("finalize: got (%s, %v)", s, err)
	}
	s, err = NextOnPayment(s, false)
	if err != nil || s != StatusPartialPaid {
		t.Fatalf("partial payment: got (%s, %v)", s, err)
	}
	s, err = NextOnPayment(s, true)
	if err != nil || s != StatusPaid {
		t.Fatalf("settling payment: got (%s, %v)", s, err)
	}
	s, err = Next(s, ActionRefund)
	if err != nil || s != StatusRefunded {
		t.Fatalf("refund: got (%s, %v)", s, err)
	}
	if !Terminal(s) {
		t.Fatalf("refunded should be terminal")
	}
}

func TestNextOnPaymentRejectedForDraft(t *testing.T) {
	if _, err := NextOnPayment(StatusDraft, true); !errors.Is(err, ErrTransitionNotAllowed) {
		t.Fatalf("payment on draft should be rejected, got %v", err)
	}
}
