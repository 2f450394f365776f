package bacss

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/jmoiron/sqlx"
	"go.brendoncarroll.net/stdctx/logctx"
	"go.brendoncarroll.net/tai64"
	"go.uber.org/zap"

	"nsbaci.org/nsbaci"
	"nsbaci.org/nsbaci/bacimg"
	"nsbaci.org/nsbaci/bacrt"
	"nsbaci.org/nsbaci/bvm"
)

// MaxOutput is the amount of console output a session retains.
// Older output is discarded first.
const MaxOutput = 1 << 20

// Session is a runtime executing one image.
// Sessions are safe for concurrent use.
type Session struct {
	id SessionID
	fp nsbaci.Fingerprint
	db *sqlx.DB

	mu     sync.Mutex
	rt     *bacrt.Runtime
	output []byte
	steps  int
	// recorded is set once this execution has been written to the runs table
	recorded bool
	// closed is set when the session is dropped
	closed atomic.Bool
}

func newSession(ctx context.Context, db *sqlx.DB, id SessionID, fp nsbaci.Fingerprint, img *bacimg.Image, cfg bacrt.Config) *Session {
	rt := bacrt.New(cfg)
	rt.Load(ctx, img.Program())
	return &Session{
		id: id,
		fp: fp,
		db: db,
		rt: rt,
	}
}

func (s *Session) ID() SessionID {
	return s.id
}

// Fingerprint identifies the session's image.
func (s *Session) Fingerprint() nsbaci.Fingerprint {
	return s.fp
}

func (s *Session) Step(ctx context.Context) (bacrt.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return bacrt.Result{}, ErrSessionClosed{s.id}
	}
	res := s.rt.Step(ctx)
	return res, s.observe(ctx, res)
}

func (s *Session) StepThread(ctx context.Context, tid bvm.ThreadID) (bacrt.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return bacrt.Result{}, ErrSessionClosed{s.id}
	}
	res := s.rt.StepThread(ctx, tid)
	return res, s.observe(ctx, res)
}

// Run executes up to maxSteps instructions.
// If maxSteps is not positive, the configured limit is used.
func (s *Session) Run(ctx context.Context, maxSteps int) (bacrt.Result, error) {
	if maxSteps <= 0 {
		maxSteps = s.rt.Config().MaxSteps
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return bacrt.Result{}, ErrSessionClosed{s.id}
	}
	res := s.rt.Run(ctx, maxSteps)
	return res, s.observe(ctx, res)
}

// Pause interrupts a Run in progress.
func (s *Session) Pause() {
	s.rt.Pause()
}

// close marks the session as dropped and stops any Run in progress.
// Every later call which would execute or change the program fails with ErrSessionClosed.
func (s *Session) close() {
	s.closed.Store(true)
	s.rt.Pause()
}

// Input supplies a line of console input.
func (s *Session) Input(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return ErrSessionClosed{s.id}
	}
	logctx.Debug(ctx, "session input", zap.Int64("session", int64(s.id)), zap.Int("len", len(text)))
	s.rt.ProvideInput(text)
	return nil
}

// Reset restarts the program and clears the console.
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return ErrSessionClosed{s.id}
	}
	s.rt.Reset(ctx)
	s.output = s.output[:0]
	s.steps = 0
	s.recorded = false
	return nil
}

// SessionSnapshot is a Snapshot of the runtime, plus the state kept by the session.
type SessionSnapshot struct {
	ID          SessionID          `json:"id"`
	Fingerprint nsbaci.Fingerprint `json:"fingerprint"`
	Output      string             `json:"output"`
	Steps       int                `json:"steps"`
	bacrt.Snapshot
}

func (s *Session) Snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionSnapshot{
		ID:          s.id,
		Fingerprint: s.fp,
		Output:      string(s.output),
		Steps:       s.steps,
		Snapshot:    s.rt.Snapshot(),
	}
}

// observe accumulates the result, and records the run once it has finished.
// It must be called with s.mu held.
func (s *Session) observe(ctx context.Context, res bacrt.Result) error {
	s.output = append(s.output, res.Output...)
	if over := len(s.output) - MaxOutput; over > 0 {
		s.output = append(s.output[:0], s.output[over:]...)
	}
	s.steps += res.Steps

	var fatal *bvm.Fault
	for _, f := range res.Errors {
		if f.IsFatal() {
			fatal = f
			break
		}
	}
	// a dropped session has no row to record against
	if s.recorded || s.closed.Load() || (!res.Halted && fatal == nil) {
		return nil
	}
	var faultMsg string
	if fatal != nil {
		faultMsg = fatal.Error()
	}
	now := tai64.Now()
	if _, err := s.db.ExecContext(ctx, `INSERT INTO runs (session_id, image_id, steps, halted, fault, output, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, s.id, s.fp[:], s.steps, res.Halted, faultMsg, string(s.output), int64(now.Seconds)); err != nil {
		return err
	}
	s.recorded = true
	logctx.Info(ctx, "run recorded",
		zap.Int64("session", int64(s.id)),
		zap.Int("steps", s.steps),
		zap.Bool("halted", res.Halted),
	)
	return nil
}
