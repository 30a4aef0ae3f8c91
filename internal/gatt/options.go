package gatt

import (
	"time"

	"github.com/mcuadros/go-defaults"
)

// DefaultMTU is the ATT MTU ceiling the underlying stack assumes until a
// successful exchange negotiates something else.
const DefaultMTU = 517

// Options configures a Session.
type Options struct {
	// RequestTimeout bounds every pending request; real hardware can silently
	// never call back. Zero disables the per-request timer.
	RequestTimeout time.Duration `default:"30s"`

	// CleanupGrace is how long the session stays in the cleaning-up state
	// after a terminal transition, absorbing duplicate terminal callbacks
	// from the same hardware event.
	CleanupGrace time.Duration `default:"300ms"`

	// MTU is the assumed ATT MTU before any exchange completes.
	MTU int `default:"517"`
}

// DefaultOptions returns Options populated from the struct tags.
func DefaultOptions() *Options {
	opts := &Options{}
	defaults.SetDefaults(opts)
	return opts
}
