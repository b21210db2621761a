package shutdown

import (
	"context"
	"errors"
	"time"
)

// Phases used by the binaries.
const (
	PhaseConnection = 10
	PhaseMetrics    = 20
)

// DefaultTimeout bounds the whole sequence when none is given.
const DefaultTimeout = 10 * time.Second

// Common errors.
var (
	// ErrTimeout indicates shutdown did not complete within the timeout.
	ErrTimeout = errors.New("shutdown timeout exceeded")

	// ErrHandlerFailed indicates one or more handlers failed.
	ErrHandlerFailed = errors.New("one or more shutdown handlers failed")
)

// Handler is implemented by components that need to be stopped.
// The context is cancelled when the timeout is reached.
type Handler interface {
	OnShutdown(ctx context.Context) error
}

// Func adapts a function to Handler.
type Func func(ctx context.Context) error

// OnShutdown implements Handler.
func (f Func) OnShutdown(ctx context.Context) error {
	return f(ctx)
}

// HandlerResult is the outcome of one handler.
type HandlerResult struct {
	Name     string
	Phase    int
	Duration time.Duration
	Err      error
}

// Result is the outcome of a shutdown.
type Result struct {
	Duration time.Duration
	Handlers []HandlerResult
	Err      error
}

// Failed returns the names of handlers that returned an error.
func (r *Result) Failed() []string {
	var failed []string
	for _, hr := range r.Handlers {
		if hr.Err != nil {
			failed = append(failed, hr.Name)
		}
	}
	return failed
}

type registration struct {
	name    string
	handler Handler
	phase   int
}
