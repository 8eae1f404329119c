package store

import (
	"strings"

	"golang.org/x/text/cases"
)

// FoldEmail is the case-insensitive comparison key of an email address.
func FoldEmail(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}
