package designer

import (
	"sync"
	"time"

	"github.com/zoobzio/clockz"
)

// scheduler runs cancellable one-shot tasks keyed by element id. Scheduling
// a key again replaces its pending task.
type scheduler struct {
	clock clockz.Clock
	mu    sync.Mutex
	seq   uint64
	tasks map[string]scheduledTask
}

type scheduledTask struct {
	seq   uint64
	timer clockz.Timer
}

func newScheduler(clock clockz.Clock) *scheduler {
	if clock == nil {
		clock = clockz.RealClock
	}
	return &scheduler{clock: clock, tasks: make(map[string]scheduledTask)}
}

func (s *scheduler) schedule(key string, delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.tasks[key]; ok {
		prev.timer.Stop()
	}
	s.seq++
	seq := s.seq
	timer := s.clock.AfterFunc(delay, func() {
		s.mu.Lock()
		cur, ok := s.tasks[key]
		if !ok || cur.seq != seq {
			s.mu.Unlock()
			return
		}
		delete(s.tasks, key)
		s.mu.Unlock()
		fn()
	})
	s.tasks[key] = scheduledTask{seq: seq, timer: timer}
}

func (s *scheduler) cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[key]; ok {
		t.timer.Stop()
		delete(s.tasks, key)
	}
}

func (s *scheduler) cancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, t := range s.tasks {
		t.timer.Stop()
		delete(s.tasks, key)
	}
}

func (s *scheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}
