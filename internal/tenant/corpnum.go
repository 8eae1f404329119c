package tenant

import (
	"errors"
	"strings"

	"golang.org/x/text/width"
)

var (
	ErrCorporateNumberLength   = errors.New("corporate number must be 13 digits")
	ErrCorporateNumberDigit    = errors.New("corporate number must contain digits only")
	ErrCorporateNumberChecksum = errors.New("corporate number check digit mismatch")
)

// NormalizeCorporateNumber folds full-width digits, drops hyphens and
// spaces, and validates the leading check digit of a 13-digit number.
func NormalizeCorporateNumber(s string) (string, error) {
	s = width.Narrow.String(strings.TrimSpace(s))
	s = strings.NewReplacer("-", "", " ", "").Replace(s)
	if len(s) != 13 {
		return "", ErrCorporateNumberLength
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", ErrCorporateNumberDigit
		}
	}
	if CorporateCheckDigit(s[1:]) != int(s[0]-'0') {
		return "", ErrCorporateNumberChecksum
	}
	return s, nil
}

// CorporateCheckDigit computes the check digit of the 12 base digits.
// Weights alternate 1, 2 counting from the rightmost digit.
func CorporateCheckDigit(base string) int {
	sum := 0
	for i := 0; i < len(base); i++ {
		d := int(base[len(base)-1-i] - '0')
		if i%2 == 0 {
			sum += d
		} else {
			sum += d * 2
		}
	}
	return 9 - sum%9
}
