package gst

import (
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrInvalidGSTIN is returned for malformed or checksum-failing GSTINs.
	ErrInvalidGSTIN = errors.New("gst: invalid gstin")
	// ErrInvalidPAN is returned for malformed PAN numbers.
	ErrInvalidPAN = errors.New("gst: invalid pan")
	// ErrUnknownStateCode is returned when a state code is not in the directory.
	ErrUnknownStateCode = errors.New("gst: unknown state code")
)

var (
	gstinPattern = regexp.MustCompile(`^[0-9]{2}[A-Z]{5}[0-9]{4}[A-Z][1-9A-Z]Z[0-9A-Z]$`)
	panPattern   = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)
)

const checksumAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// ValidateGSTIN checks format, embedded state code, and the mod-36 checksum
// digit of a GSTIN.
func ValidateGSTIN(gstin string) error {
	gstin = strings.ToUpper(strings.TrimSpace(gstin))
	if !gstinPattern.MatchString(gstin) {
		return ErrInvalidGSTIN
	}
	if _, ok := stateNames[gstin[:2]]; !ok {
		return ErrUnknownStateCode
	}
	if checksumChar(gstin[:14]) != gstin[14] {
		return ErrInvalidGSTIN
	}
	return nil
}

// ValidatePAN checks the PAN format.
func ValidatePAN(pan string) error {
	if !panPattern.MatchString(strings.ToUpper(strings.TrimSpace(pan))) {
		return ErrInvalidPAN
	}
	return nil
}

// StateCodeFromGSTIN extracts the two-digit state code carried by a GSTIN.
// It does not verify the checksum; pair it with ValidateGSTIN when the caller
// needs a fully valid number.
func StateCodeFromGSTIN(gstin string) (string, error) {
	gstin = strings.TrimSpace(gstin)
	if len(gstin) < 2 {
		return "", ErrInvalidGSTIN
	}
	code := gstin[:2]
	if _, ok := stateNames[code]; !ok {
		return "", ErrUnknownStateCode
	}
	return code, nil
}

// checksumChar computes the GSTIN check digit over the first 14 characters.
// Characters are mapped into base 36, multiplied by alternating weights 1 and
// 2, and the digit sums of the products are accumulated mod 36.
func checksumChar(prefix string) byte {
	var sum int
	for i := 0; i < len(prefix); i++ {
		value := strings.IndexByte(checksumAlphabet, prefix[i])
		factor := 1
		if i%2 == 1 {
			factor = 2
		}
		product := value * factor
		sum += product/36 + product%36
	}
	return checksumAlphabet[(36-sum%36)%36]
}
