package types

import (
	"fmt"
	"regexp"
)

// MRN represents a patient medical record number (10 digits)
// Format: FFDDDDDDDK where:
// - FF: issuing facility prefix
// - DDDDDDD: sequence number
// - K: checksum digit (Luhn)
type MRN string

var mrnRegex = regexp.MustCompile(`^\d{10}$`)

// ParseMRN validates and parses a medical record number
func ParseMRN(s string) (MRN, error) {
	if !mrnRegex.MatchString(s) {
		return "", fmt.Errorf("MRN must be exactly 10 digits")
	}

	mrn := MRN(s)
	if !mrn.IsValid() {
		return "", fmt.Errorf("invalid MRN checksum")
	}

	return mrn, nil
}

// String returns the string representation
func (m MRN) String() string {
	return string(m)
}

// Masked returns a masked version for display (facility prefix visible)
func (m MRN) Masked() string {
	if len(m) < 10 {
		return "**********"
	}
	return string(m)[:2] + "*******" + string(m)[9:]
}

// IsValid validates the MRN checksum using the Luhn algorithm
func (m MRN) IsValid() bool {
	if len(m) != 10 {
		return false
	}

	sum := 0
	double := false
	for i := len(m) - 1; i >= 0; i-- {
		d := int(m[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}

	return sum%10 == 0
}

// IsZero checks if the MRN is empty
func (m MRN) IsZero() bool {
	return m == ""
}
