package headless

import (
	"context"
	"errors"

	"github.com/hubharvest/hubharvest/internal/harvest"
)

// Noop implements rendering but always returns an error to indicate that
// headless browsing is not available in the current build.
type Noop struct{}

// NewNoop creates a new Noop renderer.
func NewNoop() *Noop {
	return &Noop{}
}

// Render returns an error since this is a stub implementation.
func (Noop) Render(_ context.Context, _ string, _ harvest.Credentials) ([]byte, error) {
	return nil, errors.New("headless renderer not configured")
}
