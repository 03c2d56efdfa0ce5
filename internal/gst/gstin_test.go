package gst

import (
	"errors"
	"testing"
)

func TestValidateGSTIN(t *testing.T) {
	tests := []struct {
		name    string
		gstin   string
		wantErr error
	}{
		{name: "valid maharashtra partnership", gstin: "27AAPFU0939F1ZV", wantErr: nil},
		{name: "lowercase input accepted", gstin: "27aapfu0939f1zv", wantErr: nil},
		{name: "bad checksum", gstin: "27AAPFU0939F1ZW", wantErr: ErrInvalidGSTIN},
		{name: "unknown state code", gstin: "99AAPFU0939F1ZV", wantErr: ErrUnknownStateCode},
		{name: "wrong length", gstin: "27AAPFU0939F1Z", wantErr: ErrInvalidGSTIN},
		{name: "missing Z marker", gstin: "27AAPFU0939F1XV", wantErr: ErrInvalidGSTIN},
		{name: "empty", gstin: "", wantErr: ErrInvalidGSTIN},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateGSTIN(tc.gstin)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("ValidateGSTIN(%q) = %v, want %v", tc.gstin, err, tc.wantErr)
			}
		})
	}
}

func TestValidatePAN(t *testing.T) {
	if err := ValidatePAN("AAPFU0939F"); err != nil {
		t.Fatalf("valid PAN rejected: %v", err)
	}
	for _, pan := range []string{"AAPFU0939", "1APFU0939F", "AAPFU09391", ""} {
		if err := ValidatePAN(pan); !errors.Is(err, ErrInvalidPAN) {
			t.Fatalf("ValidatePAN(%q) = %v, want ErrInvalidPAN", pan, err)
		}
	}
}

func TestStateCodeFromGSTIN(t *testing.T) {
	code, err := StateCodeFromGSTIN("27AAPFU0939F1ZV")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if code != "27" {
		t.Fatalf("state code = %q, want 27", code)
	}
	if StateName(code) != "Maharashtra" {
		t.Fatalf("state name = %q, want Maharashtra", StateName(code))
	}
	if _, err := StateCodeFromGSTIN("99XXXXX"); !errors.Is(err, ErrUnknownStateCode) {
		t.Fatalf("expected ErrUnknownStateCode, got %v", err)
	}
}

func TestRateValid(t *testing.T) {
	for _, r := range []float64{0, 5, 12, 18, 28} {
		if !RateValid(r) {
			t.Fatalf("rate %v should be valid", r)
		}
	}
	for _, r := range []float64{3, 10, -5, 18.5} {
		if RateValid(r) {
			t.Fatalf("rate %v should be invalid", r)
		}
	}
}
