package bvm

import (
	"slices"

	"nsbaci.org/nsbaci/pcode"
)

// syncState is everything the interpreter tracks for the concurrency instructions.
// Waiters are always woken in the order they started waiting, unless a
// condition wait gave an explicit priority.
type syncState struct {
	sems      map[uint32]*semaphore
	monitors  map[uint32]*monitor
	conds     map[uint32]*condition
	groups    map[ThreadID]*group
	members   map[ThreadID]*group
	suspended map[ThreadID]struct{}
	// held is the stack of monitors each thread is inside
	held map[ThreadID][]uint32
}

func (ss *syncState) init() {
	*ss = syncState{
		sems:      map[uint32]*semaphore{},
		monitors:  map[uint32]*monitor{},
		conds:     map[uint32]*condition{},
		groups:    map[ThreadID]*group{},
		members:   map[ThreadID]*group{},
		suspended: map[ThreadID]struct{}{},
		held:      map[ThreadID][]uint32{},
	}
}

type semaphore struct {
	binary  bool
	waiters []ThreadID
}

type monitor struct {
	owner  ThreadID
	busy   bool
	entry  []ThreadID
	urgent []ThreadID
}

type condition struct {
	monitor uint32
	bound   bool
	waiters []condWaiter
}

type condWaiter struct {
	id   ThreadID
	prio int32
}

// group is the set of threads created between a Cobegin and its Coend.
type group struct {
	owner   ThreadID
	live    int
	joining bool
}

func (ss *syncState) sem(addr uint32) *semaphore {
	sem, ok := ss.sems[addr]
	if !ok {
		sem = &semaphore{}
		ss.sems[addr] = sem
	}
	return sem
}

func (ss *syncState) mon(addr uint32) *monitor {
	m, ok := ss.monitors[addr]
	if !ok {
		m = &monitor{}
		ss.monitors[addr] = m
	}
	return m
}

func (ss *syncState) cond(addr uint32) *condition {
	c, ok := ss.conds[addr]
	if !ok {
		c = &condition{}
		ss.conds[addr] = c
	}
	return c
}

// inside returns the innermost monitor the thread is inside and owns.
func (ss *syncState) inside(id ThreadID) (uint32, *monitor, bool) {
	stack := ss.held[id]
	if len(stack) == 0 {
		return 0, nil, false
	}
	addr := stack[len(stack)-1]
	m := ss.mon(addr)
	if !m.busy || m.owner != id {
		return 0, nil, false
	}
	return addr, m, true
}

// handoff passes m to the next thread waiting for it, or frees it.
func (ss *syncState) handoff(s *step, m *monitor) {
	var next ThreadID
	switch {
	case len(m.urgent) > 0:
		next, m.urgent = m.urgent[0], m.urgent[1:]
	case len(m.entry) > 0:
		next, m.entry = m.entry[0], m.entry[1:]
	default:
		m.busy = false
		return
	}
	m.owner = next
	s.wake(next)
}

// release is called when a thread terminates.
func (ss *syncState) release(s *step) {
	id := s.t.ID()
	stack := ss.held[id]
	for i := len(stack) - 1; i >= 0; i-- {
		m := ss.mon(stack[i])
		if m.busy && m.owner == id {
			ss.handoff(s, m)
		}
	}
	delete(ss.held, id)
	delete(ss.suspended, id)
	delete(ss.groups, id)
	if g, ok := ss.members[id]; ok {
		delete(ss.members, id)
		g.live--
		if g.live == 0 && g.joining {
			g.joining = false
			s.wake(g.owner)
		}
	}
}

// Cobegin: () -> ()
func (s *step) cobegin() error {
	ss := &s.in.sync
	id := s.t.ID()
	if _, exists := ss.groups[id]; exists {
		return newFault(KindProcessViolation, "cobegin inside cobegin")
	}
	ss.groups[id] = &group{owner: id}
	return nil
}

// Coend: () -> ()
func (s *step) coend() error {
	ss := &s.in.sync
	id := s.t.ID()
	g, exists := ss.groups[id]
	if !exists {
		return newFault(KindProcessViolation, "coend without cobegin")
	}
	delete(ss.groups, id)
	if g.live > 0 {
		g.joining = true
		s.block()
	}
	return nil
}

// Create: (args...) -> ()
func (s *step) create() error {
	target, err := s.intA()
	if err != nil {
		return err
	}
	nargs, err := s.intB()
	if err != nil {
		return err
	}
	if target < 0 {
		return newFault(KindBadOperand, "negative process entry %d", target)
	}
	if nargs < 0 {
		return newFault(KindBadOperand, "negative argument count %d", nargs)
	}
	args, err := s.t.PopN(int(nargs))
	if err != nil {
		return err
	}
	child := s.in.ids.NewThread(uint32(target))
	child.SetPriority(s.t.Priority())
	for _, x := range args {
		child.Push(x)
	}
	ss := &s.in.sync
	if g, ok := ss.groups[s.t.ID()]; ok {
		g.live++
		ss.members[child.ID()] = g
	}
	s.res.Spawn = append(s.res.Spawn, child)
	return nil
}

// Suspend: () -> ()
func (s *step) suspend() error {
	s.in.sync.suspended[s.t.ID()] = struct{}{}
	s.block()
	return nil
}

// Revive: (id) -> ()
func (s *step) revive() error {
	x, err := s.t.Pop()
	if err != nil {
		return err
	}
	if x < 0 {
		return nil
	}
	id := ThreadID(x)
	ss := &s.in.sync
	if _, ok := ss.suspended[id]; ok {
		delete(ss.suspended, id)
		s.wake(id)
	}
	return nil
}

// peekSemaphore reads the semaphore address on top of the stack.
func (s *step) peekSemaphore() (uint32, error) {
	x, err := s.t.Top()
	if err != nil {
		return 0, err
	}
	a, err := addrOf(x)
	if err != nil {
		return 0, newFault(KindInvalidSemaphore, "semaphore address %d", x)
	}
	return a, nil
}

// Wait: (addr) -> ()
func (s *step) semWait() error {
	a, err := s.peekSemaphore()
	if err != nil {
		return err
	}
	v := s.p.Read(a) - 1
	if err := s.p.Write(a, v); err != nil {
		return err
	}
	s.t.Pop()
	if v < 0 {
		sem := s.in.sync.sem(a)
		sem.waiters = append(sem.waiters, s.t.ID())
		s.block()
	}
	return nil
}

// Signal: (addr) -> ()
func (s *step) semSignal() error {
	a, err := s.peekSemaphore()
	if err != nil {
		return err
	}
	sem := s.in.sync.sem(a)
	v := s.p.Read(a) + 1
	if sem.binary && len(sem.waiters) == 0 && v > 1 {
		v = 1
	}
	if err := s.p.Write(a, v); err != nil {
		return err
	}
	s.t.Pop()
	if len(sem.waiters) > 0 {
		var next ThreadID
		next, sem.waiters = sem.waiters[0], sem.waiters[1:]
		s.wake(next)
	}
	return nil
}

// StoreSemaphore: (addr n) -> ()
func (s *step) storeSemaphore(binary bool) error {
	n, err := s.t.Peek(0)
	if err != nil {
		return err
	}
	y, err := s.t.Peek(1)
	if err != nil {
		return err
	}
	a, err := addrOf(y)
	if err != nil {
		return newFault(KindInvalidSemaphore, "semaphore address %d", y)
	}
	if n < 0 || (binary && n > 1) {
		return newFault(KindInvalidSemaphore, "initial value %d", n)
	}
	if err := s.p.Write(a, n); err != nil {
		return err
	}
	s.t.PopN(2)
	s.in.sync.sem(a).binary = binary
	return nil
}

// EnterMonitor: () -> ()
func (s *step) enterMonitor() error {
	a, err := s.addrA()
	if err != nil {
		return err
	}
	ss := &s.in.sync
	id := s.t.ID()
	if slices.Contains(ss.held[id], a) {
		return newFault(KindMonitorViolation, "monitor @%d entered twice", a)
	}
	m := ss.mon(a)
	ss.held[id] = append(ss.held[id], a)
	if !m.busy {
		m.busy = true
		m.owner = id
		return nil
	}
	m.entry = append(m.entry, id)
	s.block()
	return nil
}

// ExitMonitor: () -> ()
func (s *step) exitMonitor() error {
	a, err := s.addrA()
	if err != nil {
		return err
	}
	ss := &s.in.sync
	id := s.t.ID()
	cur, m, ok := ss.inside(id)
	if !ok || cur != a {
		return newFault(KindMonitorViolation, "exit from monitor @%d which is not held", a)
	}
	stack := ss.held[id]
	ss.held[id] = stack[:len(stack)-1]
	if len(ss.held[id]) == 0 {
		delete(ss.held, id)
	}
	ss.handoff(s, m)
	return nil
}

// WaitCondition: () -> ()
func (s *step) waitCondition() error {
	a, err := s.addrA()
	if err != nil {
		return err
	}
	prio, err := pcode.IntOr(1, s.ix.B, 0)
	if err != nil {
		return err
	}
	ss := &s.in.sync
	id := s.t.ID()
	ma, m, ok := ss.inside(id)
	if !ok {
		return newFault(KindMonitorViolation, "wait on condition @%d outside a monitor", a)
	}
	c := ss.cond(a)
	if c.bound && c.monitor != ma {
		return newFault(KindMonitorViolation, "condition @%d belongs to monitor @%d", a, c.monitor)
	}
	c.monitor, c.bound = ma, true
	// insert after every waiter with the same or smaller priority
	i := slices.IndexFunc(c.waiters, func(w condWaiter) bool { return w.prio > prio })
	if i < 0 {
		i = len(c.waiters)
	}
	c.waiters = slices.Insert(c.waiters, i, condWaiter{id: id, prio: prio})
	ss.handoff(s, m)
	s.block()
	return nil
}

// SignalCondition: () -> ()
func (s *step) signalCondition() error {
	a, err := s.addrA()
	if err != nil {
		return err
	}
	ss := &s.in.sync
	id := s.t.ID()
	ma, m, ok := ss.inside(id)
	if !ok {
		return newFault(KindMonitorViolation, "signal on condition @%d outside a monitor", a)
	}
	c := ss.cond(a)
	if c.bound && c.monitor != ma {
		return newFault(KindMonitorViolation, "condition @%d belongs to monitor @%d", a, c.monitor)
	}
	if len(c.waiters) == 0 {
		return nil
	}
	w := c.waiters[0]
	c.waiters = c.waiters[1:]
	m.owner = w.id
	m.urgent = append(m.urgent, id)
	s.wake(w.id)
	s.block()
	return nil
}

// EmptyCondition: () -> (empty)
func (s *step) emptyCondition() error {
	a, err := s.addrA()
	if err != nil {
		return err
	}
	c := s.in.sync.cond(a)
	s.t.Push(boolInt(len(c.waiters) == 0))
	return nil
}
