package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pdmflow/pkg/lock"
	"pdmflow/pkg/logger"
)

// Job ages out runs. Every cycle the manager computes cutoff = now - MaxAge
// and hands it to Apply, which returns how many runs it touched.
type Job struct {
	Name     string
	Interval time.Duration
	MaxAge   time.Duration
	// Aligned jobs wait for the next Interval boundary before their first cycle
	Aligned bool
	Apply   func(ctx context.Context, cutoff time.Time) (int, error)
	// Verb describes Apply in the cycle log, e.g. "marked failed"
	Verb string
}

// LockFactory returns the lock guarding a job's cycle. maxHold bounds how
// long a crashed holder can block other replicas.
type LockFactory func(job string, maxHold time.Duration) lock.DistributedLock

// Manager runs maintenance jobs on their intervals. A cycle only runs while
// its job lock is held, so replicas sharing redis do not repeat it.
type Manager struct {
	ctx     context.Context
	cancel  context.CancelFunc
	newLock LockFactory
	log     *logger.Logger
	now     func() time.Time

	mu      sync.Mutex
	jobs    []*scheduled
	started bool
	wg      sync.WaitGroup
}

type scheduled struct {
	Job
	lock lock.DistributedLock
}

// NewManager creates a job manager bound to parent. A nil factory runs
// cycles without locking.
func NewManager(parent context.Context, newLock LockFactory, log *logger.Logger) *Manager {
	ctx, cancel := context.WithCancel(parent)
	return &Manager{
		ctx:     ctx,
		cancel:  cancel,
		newLock: newLock,
		log:     log,
		now:     time.Now,
	}
}

// Register adds a job. Jobs without Apply are ignored; a non-positive
// interval becomes one minute.
func (m *Manager) Register(job Job) {
	if job.Apply == nil {
		return
	}
	if job.Interval <= 0 {
		job.Interval = time.Minute
	}
	s := &scheduled{Job: job}
	if m.newLock != nil {
		s.lock = m.newLock(job.Name, job.Interval)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = append(m.jobs, s)
}

// Start launches all registered jobs. Later calls do nothing.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	jobs := append([]*scheduled(nil), m.jobs...)
	m.mu.Unlock()

	for _, s := range jobs {
		m.wg.Add(1)
		go m.loop(s)
	}
}

// Stop signals all jobs to stop.
func (m *Manager) Stop() {
	m.cancel()
}

// Wait blocks until all jobs exit.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// RunOnce runs one cycle of the named job now and returns how many runs it
// touched. A cycle skipped because another instance holds the lock reports 0.
func (m *Manager) RunOnce(ctx context.Context, name string) (int, error) {
	m.mu.Lock()
	var target *scheduled
	for _, s := range m.jobs {
		if s.Name == name {
			target = s
			break
		}
	}
	m.mu.Unlock()
	if target == nil {
		return 0, fmt.Errorf("unknown job %q", name)
	}
	return m.cycle(ctx, target)
}

func (m *Manager) loop(s *scheduled) {
	defer m.wg.Done()

	if s.Aligned {
		now := m.now()
		next := now.Truncate(s.Interval).Add(s.Interval)
		m.log.InfoCtx(m.ctx, "job %s will start at %s (in %v)", s.Name, next.Format("15:04:05"), next.Sub(now))
		select {
		case <-m.ctx.Done():
			return
		case <-time.After(next.Sub(now)):
		}
	}
	m.runCycle(s)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.runCycle(s)
		}
	}
}

func (m *Manager) runCycle(s *scheduled) {
	if _, err := m.cycle(m.ctx, s); err != nil {
		m.log.WarnCtx(m.ctx, "background job %s failed: %v", s.Name, err)
	}
}

func (m *Manager) cycle(ctx context.Context, s *scheduled) (int, error) {
	if s.lock != nil {
		acquired, err := s.lock.TryLock(ctx)
		if err != nil || !acquired {
			m.log.DebugCtx(ctx, "another instance is running %s, skipping this cycle", s.Name)
			return 0, nil
		}
		defer func() {
			if err := s.lock.Unlock(context.WithoutCancel(ctx)); err != nil {
				m.log.WarnCtx(ctx, "failed to release lock of job %s: %v", s.Name, err)
			}
		}()
	}

	cutoff := m.now().Add(-s.MaxAge)
	n, err := s.Apply(ctx, cutoff)
	if err != nil {
		return n, err
	}
	if n > 0 {
		m.log.InfoCtx(ctx, "job %s %s %d runs older than %s", s.Name, s.Verb, n, cutoff.Format(time.RFC3339))
	}
	return n, nil
}
