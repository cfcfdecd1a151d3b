package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/berfenger/sensorhub/internal/core/domain"
	"github.com/berfenger/sensorhub/internal/core/port"

	"go.uber.org/zap"
)

type taskEntry struct {
	name        string
	period      time.Duration
	callback    port.TaskFunc
	accumulated time.Duration
}

// TaskScheduler runs named periodic callbacks from a single cooperative Tick.
// Every registered task is called on every tick with its accumulated time; the
// period is only passed along, callbacks gate themselves.
type TaskScheduler struct {
	mu     sync.Mutex
	tasks  []*taskEntry
	logger *zap.Logger
}

func NewTaskScheduler(logger *zap.Logger) *TaskScheduler {
	return &TaskScheduler{
		logger: logger.With(zap.String("component", "scheduler")),
	}
}

// AddTask registers a task. A name that is already registered returns ErrDuplicate.
func (s *TaskScheduler) AddTask(name string, period time.Duration, callback port.TaskFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexOf(name) >= 0 {
		return fmt.Errorf("task %q: %w", name, domain.ErrDuplicate)
	}
	s.tasks = append(s.tasks, &taskEntry{
		name:     name,
		period:   period,
		callback: callback,
	})
	s.logger.Debug("scheduler@add", zap.String("task", name), zap.Duration("period", period))
	return nil
}

// RemoveTask reports whether a task with that name was registered.
func (s *TaskScheduler) RemoveTask(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(name)
	if i < 0 {
		return false
	}
	s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
	s.logger.Debug("scheduler@remove", zap.String("task", name))
	return true
}

func (s *TaskScheduler) TaskExists(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexOf(name) >= 0
}

func (s *TaskScheduler) TaskNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.tasks))
	for i, t := range s.tasks {
		names[i] = t.name
	}
	return names
}

// Tick adds elapsed to every task and calls each one. Callbacks run without the lock
// held, so they may add or remove tasks; changes apply from the next tick.
func (s *TaskScheduler) Tick(elapsed time.Duration) {
	s.mu.Lock()
	type pending struct {
		entry *taskEntry
		tick  port.Tick
	}
	calls := make([]pending, len(s.tasks))
	for i, t := range s.tasks {
		t.accumulated += elapsed
		calls[i] = pending{entry: t, tick: port.Tick{Elapsed: elapsed, Accumulated: t.accumulated, Period: t.period}}
	}
	s.mu.Unlock()

	for i := range calls {
		c := &calls[i]
		if err := s.run(c.entry, &c.tick); err != nil {
			s.logger.Error("scheduler@tick task failed", zap.String("task", c.entry.name), zap.Error(err))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range calls {
		if calls[i].tick.ResetRequested() {
			calls[i].entry.accumulated = 0
		}
	}
}

func (s *TaskScheduler) run(entry *taskEntry, tick *port.Tick) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return entry.callback(tick)
}

func (s *TaskScheduler) indexOf(name string) int {
	for i, t := range s.tasks {
		if t.name == name {
			return i
		}
	}
	return -1
}

// ensure interface compliance
var _ port.TaskRegistrar = (*TaskScheduler)(nil)
