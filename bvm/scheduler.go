package bvm

import (
	"cmp"
	"math/rand/v2"
	"slices"
)

// Scheduler decides which thread runs next.
// All of the threads it holds are in exactly one of its queues,
// or in the running slot.
type Scheduler interface {
	// AddThread makes t ready.
	AddThread(t *Thread)
	// PickNext requeues the current thread and promotes a ready thread to running.
	// It returns nil if no thread is ready.
	PickNext() *Thread
	// PickThread is PickNext, but only promotes the thread with the given id.
	PickThread(id ThreadID) *Thread
	// Current returns the thread in the running slot or nil.
	Current() *Thread

	// BlockCurrent moves the current thread to the blocked queue.
	BlockCurrent()
	// Unblock moves the blocked thread with the given id to the ready queue.
	Unblock(id ThreadID) bool
	// UnblockIO moves every thread waiting for input to the ready queue.
	UnblockIO()
	// Yield puts the current thread back into the ready queue.
	Yield()
	// TerminateCurrent removes the current thread.
	TerminateCurrent()

	// HasThreads is true if a thread is running or ready.
	HasThreads() bool
	// Stuck is true if no thread can run but some are blocked or waiting for input.
	Stuck() bool
	// WaitingIO is true if some thread is waiting for input.
	WaitingIO() bool
	// Threads returns every live thread, ordered by id.
	Threads() []*Thread
	// Clear drops every thread.
	Clear()
}

var _ Scheduler = &RandomScheduler{}

// RandomScheduler picks uniformly at random from the ready queue.
type RandomScheduler struct {
	rng     *rand.Rand
	running *Thread
	ready   []*Thread
	blocked []*Thread
	io      []*Thread
}

// NewRandomScheduler creates a scheduler drawing from rng.
// If rng is nil, the scheduler is seeded randomly.
func NewRandomScheduler(rng *rand.Rand) *RandomScheduler {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &RandomScheduler{rng: rng}
}

// NewSeededScheduler creates a scheduler whose picks are determined by seed.
func NewSeededScheduler(seed uint64) *RandomScheduler {
	return NewRandomScheduler(rand.New(rand.NewPCG(seed, seed)))
}

func (s *RandomScheduler) AddThread(t *Thread) {
	t.SetState(Ready)
	s.ready = append(s.ready, t)
}

func (s *RandomScheduler) PickNext() *Thread {
	s.requeue()
	if len(s.ready) == 0 {
		return nil
	}
	i := s.rng.IntN(len(s.ready))
	return s.promote(i)
}

func (s *RandomScheduler) PickThread(id ThreadID) *Thread {
	s.requeue()
	i := slices.IndexFunc(s.ready, func(t *Thread) bool { return t.ID() == id })
	if i < 0 {
		return nil
	}
	return s.promote(i)
}

// promote swap-removes the ready thread at i and makes it current.
func (s *RandomScheduler) promote(i int) *Thread {
	t := s.ready[i]
	last := len(s.ready) - 1
	s.ready[i] = s.ready[last]
	s.ready[last] = nil
	s.ready = s.ready[:last]

	t.SetState(Running)
	s.running = t
	return t
}

// requeue moves the current thread to the queue matching its state.
func (s *RandomScheduler) requeue() {
	t := s.running
	if t == nil {
		return
	}
	s.running = nil
	switch t.State() {
	case Running, Ready:
		t.SetState(Ready)
		s.ready = append(s.ready, t)
	case Blocked:
		s.blocked = append(s.blocked, t)
	case WaitingIO:
		s.io = append(s.io, t)
	case Terminated:
	}
}

func (s *RandomScheduler) Current() *Thread {
	return s.running
}

func (s *RandomScheduler) BlockCurrent() {
	t := s.running
	if t == nil {
		return
	}
	s.running = nil
	t.SetState(Blocked)
	s.blocked = append(s.blocked, t)
}

func (s *RandomScheduler) Unblock(id ThreadID) bool {
	i := slices.IndexFunc(s.blocked, func(t *Thread) bool { return t.ID() == id })
	if i < 0 {
		return false
	}
	t := s.blocked[i]
	s.blocked = slices.Delete(s.blocked, i, i+1)
	s.AddThread(t)
	return true
}

func (s *RandomScheduler) UnblockIO() {
	if s.running != nil && s.running.State() == WaitingIO {
		s.requeue()
	}
	for _, t := range s.io {
		s.AddThread(t)
	}
	clear(s.io)
	s.io = s.io[:0]
}

func (s *RandomScheduler) Yield() {
	if t := s.running; t != nil {
		t.SetState(Ready)
		s.requeue()
	}
}

func (s *RandomScheduler) TerminateCurrent() {
	if t := s.running; t != nil {
		t.SetState(Terminated)
		s.running = nil
	}
}

func (s *RandomScheduler) HasThreads() bool {
	return s.running != nil || len(s.ready) > 0
}

func (s *RandomScheduler) Stuck() bool {
	return !s.HasThreads() && (len(s.blocked) > 0 || len(s.io) > 0)
}

func (s *RandomScheduler) WaitingIO() bool {
	if s.running != nil && s.running.State() == WaitingIO {
		return true
	}
	return len(s.io) > 0
}

// Ready returns the number of ready threads.
func (s *RandomScheduler) Ready() int {
	return len(s.ready)
}

func (s *RandomScheduler) Threads() []*Thread {
	var ret []*Thread
	if s.running != nil {
		ret = append(ret, s.running)
	}
	ret = append(ret, s.ready...)
	ret = append(ret, s.blocked...)
	ret = append(ret, s.io...)
	slices.SortFunc(ret, func(a, b *Thread) int {
		return cmp.Compare(a.ID(), b.ID())
	})
	return ret
}

func (s *RandomScheduler) Clear() {
	s.running = nil
	s.ready = nil
	s.blocked = nil
	s.io = nil
}

// Apply performs the scheduling effects of res, which came from executing t.
// t must be the scheduler's current thread.
func Apply(s Scheduler, t *Thread, res Result) {
	if res.Err != nil {
		return
	}
	for _, child := range res.Spawn {
		s.AddThread(child)
	}
	switch {
	case t.State() == Terminated:
		s.TerminateCurrent()
	case res.Block:
		s.BlockCurrent()
	case res.Yield:
		s.Yield()
	}
	for _, id := range res.Wake {
		s.Unblock(id)
	}
}
