package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/vinayprograms/hostwatch/logging"
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Coordinator) { c.log = l.WithComponent("shutdown") }
}

// Coordinator runs registered handlers once, phase by phase.
type Coordinator struct {
	timeout time.Duration
	log     *logging.Logger

	signals chan os.Signal

	mu       sync.Mutex
	handlers []registration
	once     sync.Once
	done     chan struct{}
	result   *Result
}

// New creates a coordinator. A non-positive timeout selects DefaultTimeout.
func New(timeout time.Duration, opts ...Option) *Coordinator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Coordinator{
		timeout: timeout,
		log:     logging.New().WithComponent("shutdown"),
		signals: make(chan os.Signal, 1),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds a handler to phase.
func (c *Coordinator) Register(name string, phase int, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, registration{name: name, handler: h, phase: phase})
}

// RegisterFunc adds a function to phase.
func (c *Coordinator) RegisterFunc(name string, phase int, fn func(ctx context.Context) error) {
	c.Register(name, phase, Func(fn))
}

// Shutdown runs every handler within the coordinator's timeout. Only the
// first call does work; later calls wait for it and return its error.
func (c *Coordinator) Shutdown(reason string) error {
	c.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()

		c.log.Info("shutting down", map[string]interface{}{
			"reason":  reason,
			"timeout": c.timeout.String(),
		})
		c.result = c.run(ctx)
		if c.result.Err != nil {
			c.log.Warn("shutdown incomplete", map[string]interface{}{
				"error":  c.result.Err.Error(),
				"failed": c.result.Failed(),
			})
		}
		close(c.done)
	})
	<-c.done
	return c.result.Err
}

// HandleSignals starts Shutdown on SIGINT or SIGTERM. The returned function
// stops listening.
func (c *Coordinator) HandleSignals() (stop func()) {
	signal.Notify(c.signals, syscall.SIGINT, syscall.SIGTERM)
	quit := make(chan struct{})

	go func() {
		select {
		case sig := <-c.signals:
			_ = c.Shutdown(sig.String())
		case <-quit:
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(c.signals)
			close(quit)
		})
	}
}

// Done is closed when shutdown has finished.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Result returns the shutdown outcome, or nil before Done is closed.
func (c *Coordinator) Result() *Result {
	select {
	case <-c.done:
		return c.result
	default:
		return nil
	}
}

func (c *Coordinator) run(ctx context.Context) *Result {
	start := time.Now()

	c.mu.Lock()
	handlers := make([]registration, len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.Unlock()

	sort.SliceStable(handlers, func(i, j int) bool {
		return handlers[i].phase < handlers[j].phase
	})

	result := &Result{}
	for _, group := range groupByPhase(handlers) {
		if ctx.Err() != nil {
			result.Err = ErrTimeout
			break
		}
		for _, hr := range c.runPhase(ctx, group) {
			result.Handlers = append(result.Handlers, hr)
			if hr.Err != nil && result.Err == nil {
				result.Err = ErrHandlerFailed
			}
		}
	}
	result.Duration = time.Since(start)
	return result
}

// runPhase runs the handlers of one phase concurrently.
func (c *Coordinator) runPhase(ctx context.Context, group []registration) []HandlerResult {
	results := make([]HandlerResult, len(group))
	var wg sync.WaitGroup
	for i, r := range group {
		wg.Add(1)
		go func(i int, r registration) {
			defer wg.Done()
			start := time.Now()
			err := r.handler.OnShutdown(ctx)
			results[i] = HandlerResult{
				Name:     r.name,
				Phase:    r.phase,
				Duration: time.Since(start),
				Err:      err,
			}
		}(i, r)
	}
	wg.Wait()

	for _, hr := range results {
		fields := map[string]interface{}{
			"handler":  hr.Name,
			"phase":    hr.Phase,
			"duration": hr.Duration.Round(time.Millisecond).String(),
		}
		if hr.Err != nil {
			fields["error"] = hr.Err.Error()
			c.log.Warn("shutdown handler failed", fields)
			continue
		}
		c.log.Debug("stopped", fields)
	}
	return results
}

// groupByPhase splits handlers, already sorted by phase, into runs of
// equal phase.
func groupByPhase(handlers []registration) [][]registration {
	var groups [][]registration
	for i, h := range handlers {
		if i == 0 || h.phase != handlers[i-1].phase {
			groups = append(groups, nil)
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], h)
	}
	return groups
}
