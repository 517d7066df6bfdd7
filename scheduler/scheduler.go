package scheduler

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// TaskFn is a scheduled unit of work. It must not block for long; slow
// work should spawn its own goroutine.
type TaskFn func()

// Scheduler runs named periodic and one-shot maintenance tasks, such as
// session cleanup and combat reference sweeps. A panicking task is
// recovered and logged without killing its ticker.
type Scheduler struct {
	mu      sync.Mutex
	tickers map[string]*tickerEntry
	timers  map[string]*time.Timer
	logger  *zap.Logger
	stopCh  chan struct{}
}

type tickerEntry struct {
	ticker *time.Ticker
	stopCh chan struct{}
}

// New creates a Scheduler with no tasks registered.
func New(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		tickers: make(map[string]*tickerEntry),
		timers:  make(map[string]*time.Timer),
		stopCh:  make(chan struct{}),
		logger:  logger,
	}
}

// AddTicker registers fn to run every interval under the given name.
// Registering the same name again replaces the previous task.
func (s *Scheduler) AddTicker(name string, interval time.Duration, fn TaskFn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.tickers[name]; ok {
		close(old.stopCh)
		delete(s.tickers, name)
	}

	entry := &tickerEntry{
		ticker: time.NewTicker(interval),
		stopCh: make(chan struct{}),
	}
	s.tickers[name] = entry

	go s.runTicker(name, entry, fn)
	s.logger.Info("periodic task registered",
		zap.String("name", name), zap.Duration("interval", interval))
}

func (s *Scheduler) runTicker(name string, entry *tickerEntry, fn TaskFn) {
	for {
		select {
		case <-entry.ticker.C:
			s.invoke(name, fn)
		case <-entry.stopCh:
			entry.ticker.Stop()
			return
		case <-s.stopCh:
			entry.ticker.Stop()
			return
		}
	}
}

func (s *Scheduler) invoke(name string, fn TaskFn) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled task panicked",
				zap.String("task", name), zap.Any("recover", r))
		}
	}()
	fn()
}

// AddDelay runs fn once after delay. Registering the same name again
// cancels the pending run and schedules the new one.
func (s *Scheduler) AddDelay(name string, delay time.Duration, fn TaskFn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.timers[name]; ok {
		old.Stop()
	}
	s.timers[name] = time.AfterFunc(delay, func() {
		defer func() {
			s.mu.Lock()
			delete(s.timers, name)
			s.mu.Unlock()
		}()
		s.invoke(name, fn)
	})
}

// Remove stops and drops the named ticker or pending delay.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.tickers[name]; ok {
		close(entry.stopCh)
		delete(s.tickers, name)
	}
	if t, ok := s.timers[name]; ok {
		t.Stop()
		delete(s.timers, name)
	}
}

// Stop halts every registered task. Safe to call more than once.
func (s *Scheduler) Stop() {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
}

// ListTickers returns the names of the registered periodic tasks.
func (s *Scheduler) ListTickers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tickers))
	for name := range s.tickers {
		names = append(names, name)
	}
	return names
}
