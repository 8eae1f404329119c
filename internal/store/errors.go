package store

import (
	"errors"
	"fmt"

	"github.com/nikhilbhutani/staffcore/internal/apperr"
)

// Load maps a missing row onto apperr.NotFound and wraps anything else.
func Load(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return apperr.NotFound(what)
	}
	return fmt.Errorf("load %s: %w", what, err)
}
