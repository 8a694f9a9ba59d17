package hotlib

import (
	"log/slog"
	"time"
)

const (
	// defaultDebounce coalesces raw filesystem events per change signal.
	defaultDebounce = 500 * time.Millisecond
	// rearmDelay paces watch retries after the watched file was removed.
	rearmDelay = 500 * time.Millisecond
	// lockRetryDelay paces exclusive access attempts during a swap.
	lockRetryDelay = time.Millisecond
)

type config struct {
	debounce time.Duration
	template string
	opener   Opener
	log      *slog.Logger
}

func defaultConfig() config {
	return config{
		debounce: defaultDebounce,
		opener:   NativeOpener,
		log:      slog.Default(),
	}
}

// Option configures a Reloader or Module at construction.
type Option func(*config)

// WithDebounce overrides the window coalescing raw filesystem events,
// default 500ms.
func WithDebounce(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.debounce = d
		}
	}
}

// WithTemplate names the private loaded copy. Placeholders {lib_name},
// {load_counter} and {pid} are substituted, the platform extension is
// appended. Default is "{lib_name}-hot-{counter}".
func WithTemplate(template string) Option {
	return func(c *config) { c.template = template }
}

// WithOpener swaps the backend that opens library files, default is the
// platform dynamic library loader.
func WithOpener(o Opener) Option {
	return func(c *config) {
		if o != nil {
			c.opener = o
		}
	}
}

// WithLogger injects a structured logger, default slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.log = l
		}
	}
}
