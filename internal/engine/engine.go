package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/seikosantana/modbus-sim/internal/registers"
	"github.com/seikosantana/modbus-sim/internal/rules"
)

// Default transport endpoint.
const (
	DefaultBindAddress = "0.0.0.0"
	DefaultPort        = 502
)

// ErrAlreadyStarted is returned when Run is called a second time.
var ErrAlreadyStarted = errors.New("scheduler already started")

// Transport is the Modbus server the scheduler drives.
type Transport interface {
	// Start binds the listener and begins serving clients.
	Start(bindAddress string, port int) error
	// Stop releases the listener and every client connection.
	Stop() error
	// Registers returns the synchronized view of the served bank.
	Registers() RegisterView
}

// Terminator asks the host to shut the whole application down.
// The scheduler calls it only on bind failure and on invalid rules.
type Terminator interface {
	Terminate(reason error)
}

// TerminatorFunc adapts a function to Terminator.
type TerminatorFunc func(reason error)

// Terminate calls f(reason).
func (f TerminatorFunc) Terminate(reason error) { f(reason) }

// Execution is one application of one rule.
type Execution struct {
	Seq      int64              `json:"seq"`
	Position int                `json:"position"` // 1-based rule position
	At       time.Time          `json:"at"`
	Changes  []registers.Change `json:"changes"`
}

// Recorder receives every execution after its mutation is applied.
// Record errors are logged and do not stop the loop.
type Recorder interface {
	Record(ctx context.Context, exec Execution) error
}

// Stats is a snapshot of loop progress.
type Stats struct {
	State         State     `json:"state"`
	Executions    int64     `json:"executions"`
	Cycles        int64     `json:"cycles"`
	LastPosition  int       `json:"last_position,omitempty"`
	LastExecution time.Time `json:"last_execution,omitempty"`
	StartedAt     time.Time `json:"started_at,omitempty"`
}

// Scheduler runs the rule loop against a transport's register bank.
//
// Lifecycle: Starting -> Validating -> Running -> Stopping -> Stopped, or
// Starting/Validating -> Aborted. Run is one-shot.
//
// Rules run one at a time in declaration order. After each rule the loop
// sleeps for that rule's delay before moving to the next one, so the
// period of any single rule is the sum of all delays in the set.
//
// Thread-safety model:
//   - Run(): must be called from exactly one goroutine
//   - State(), Stats(), Rules(): safe from any goroutine
type Scheduler struct {
	transport   Transport
	rules       rules.RuleSet
	clock       Clock
	seq         *Sequence
	terminator  Terminator
	recorder    Recorder
	logger      *slog.Logger
	bindAddress string
	port        int

	state stateBox

	mu    sync.Mutex
	stats Stats
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock (tests use a virtual one).
func WithClock(c Clock) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

// WithTerminator sets the host termination capability.
func WithTerminator(t Terminator) Option {
	return func(s *Scheduler) {
		s.terminator = t
	}
}

// WithRecorder sets the execution recorder (e.g. the SQLite journal).
func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) {
		s.recorder = r
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// WithEndpoint sets the address and port handed to Transport.Start.
func WithEndpoint(bindAddress string, port int) Option {
	return func(s *Scheduler) {
		s.bindAddress = bindAddress
		s.port = port
	}
}

// WithSequence sets the execution sequence, e.g. to continue numbering.
func WithSequence(seq *Sequence) Option {
	return func(s *Scheduler) {
		s.seq = seq
	}
}

// New creates a Scheduler. The rule set is copied so later changes by the
// caller cannot alter execution order.
func New(t Transport, rs rules.RuleSet, opts ...Option) *Scheduler {
	s := &Scheduler{
		transport:   t,
		rules:       rs.Clone(),
		clock:       WallClock{},
		seq:         NewSequence(),
		logger:      slog.Default(),
		bindAddress: DefaultBindAddress,
		port:        DefaultPort,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	return s.state.load()
}

// Stats returns a snapshot of loop progress.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.State = s.State()
	return st
}

// Rules returns a copy of the scheduled rule set.
func (s *Scheduler) Rules() rules.RuleSet {
	return s.rules.Clone()
}

// Run starts the transport, validates the rules and runs the loop until
// ctx is cancelled. Blocks for the lifetime of the simulation.
//
// Returns:
//   - ctx.Err() after a clean stop
//   - *RuntimeError BIND_FAILED or INVALID_RULES when startup aborts
//     (the Terminator has been called)
//   - *RuntimeError OUT_OF_RANGE or ZERO_MODULUS when a rule fails while
//     running (the transport is stopped, the Terminator is not called)
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.state.v.CompareAndSwap(int32(StateIdle), int32(StateStarting)) {
		return ErrAlreadyStarted
	}

	if err := s.transport.Start(s.bindAddress, s.port); err != nil {
		s.logger.Error("unable to start modbus server", "address", s.bindAddress, "port", s.port, "error", err)
		return s.abort(NewBindError(s.bindAddress, s.port, err))
	}
	s.logger.Info("modbus server started", "address", s.bindAddress, "port", s.port)

	s.state.store(StateValidating)
	if len(s.rules) == 0 {
		s.logger.Warn("no rules specified, serving registers as a plain modbus tcp server simulator")
		s.enterRunning()
		<-ctx.Done()
		return s.shutdown(ctx.Err())
	}

	s.logger.Info("rules found", "count", len(s.rules))
	s.logger.Info("checking rules")
	if err := rules.Check(s.rules); err != nil {
		var verr *rules.ValidationError
		if errors.As(err, &verr) {
			for _, v := range verr.Violations {
				s.logger.Error(fmt.Sprintf("at rule %d: %s", v.Position, v.Message), "code", v.Code)
			}
		}
		s.stopTransport()
		return s.abort(NewInvalidRulesError(err))
	}
	s.logger.Info("rule checking passed")

	s.enterRunning()
	return s.shutdown(s.loop(ctx))
}

// loop executes rules in order until ctx is done or a rule fails.
func (s *Scheduler) loop(ctx context.Context) error {
	exec := NewExecutor(s.transport.Registers())

	for {
		for i, rule := range s.rules {
			// No mutation may start once cancellation is observed.
			if err := ctx.Err(); err != nil {
				return err
			}

			pos := i + 1
			changes, err := exec.Apply(rule)
			if err != nil {
				return s.fail(pos, rule, err)
			}
			s.record(ctx, pos, changes)

			if err := s.clock.Sleep(ctx, rule.Delay()); err != nil {
				return err
			}
		}

		s.mu.Lock()
		s.stats.Cycles++
		s.mu.Unlock()
	}
}

func (s *Scheduler) record(ctx context.Context, pos int, changes []registers.Change) {
	e := Execution{
		Seq:      s.seq.Next(),
		Position: pos,
		At:       s.clock.Now(),
		Changes:  changes,
	}

	s.mu.Lock()
	s.stats.Executions++
	s.stats.LastPosition = pos
	s.stats.LastExecution = e.At
	s.mu.Unlock()

	if s.logger.Enabled(ctx, slog.LevelDebug) {
		for _, ch := range changes {
			s.logger.Debug("register updated", "rule", pos, "register", ch.Register, "old", ch.Old, "new", ch.New, "seq", e.Seq)
		}
	}

	if s.recorder == nil {
		return
	}
	// The mutation is already visible; record it even if ctx was
	// cancelled in the meantime.
	if err := s.recorder.Record(context.WithoutCancel(ctx), e); err != nil {
		s.logger.Warn("failed to record execution", "rule", pos, "seq", e.Seq, "error", err)
	}
}

func (s *Scheduler) fail(pos int, rule rules.Rule, err error) error {
	var rerr *RuntimeError
	switch {
	case errors.Is(err, registers.ErrOutOfRange):
		rerr = NewOutOfRangeError(pos, err)
	case errors.Is(err, ErrZeroModulus):
		rerr = NewZeroModulusError(pos)
	default:
		rerr = &RuntimeError{Code: ErrCodeOutOfRange, Message: "rule execution failed", Position: pos, Err: err}
	}
	s.logger.Error("rule execution failed", "rule", pos, "definition", rule.String(), "error", rerr)
	return rerr
}

func (s *Scheduler) enterRunning() {
	s.mu.Lock()
	s.stats.StartedAt = s.clock.Now()
	s.mu.Unlock()
	s.state.store(StateRunning)
}

// abort ends startup without ever running rules and asks the host to
// terminate.
func (s *Scheduler) abort(err *RuntimeError) error {
	s.state.store(StateAborted)
	s.logger.Error("stopping application", "reason", err.Code, "error", err)
	if s.terminator != nil {
		s.terminator.Terminate(err)
	}
	return err
}

func (s *Scheduler) shutdown(err error) error {
	s.state.store(StateStopping)
	s.logger.Warn("stopping modbus server")
	s.stopTransport()
	s.state.store(StateStopped)
	return err
}

func (s *Scheduler) stopTransport() {
	if err := s.transport.Stop(); err != nil {
		s.logger.Error("error stopping modbus server", "error", err)
	}
}
