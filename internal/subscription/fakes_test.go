package subscription

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"meal-subscription/internal/storage"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// memKV is an in-memory storage.Store with injectable failures.
type memKV struct {
	mu      sync.Mutex
	data    map[string][]byte
	getErr  map[string]error
	setErr  map[string]error
	setCall map[string]int
}

func newMemKV() *memKV {
	return &memKV{
		data:    make(map[string][]byte),
		getErr:  make(map[string]error),
		setErr:  make(map[string]error),
		setCall: make(map[string]int),
	}
}

func (m *memKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.getErr[key]; err != nil {
		return nil, err
	}
	v, ok := m.data[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *memKV) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCall[key]++
	if err := m.setErr[key]; err != nil {
		return err
	}
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *memKV) raw(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return string(v), ok
}

func (m *memKV) writes(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setCall[key]
}

var errBoom = errors.New("boom")

// manualScheduler fires callbacks only when Advance moves its clock past them.
type manualScheduler struct {
	mu         sync.Mutex
	now        time.Duration
	tasks      []*manualTimer
	ignoreStop bool
}

type manualTimer struct {
	s       *manualScheduler
	due     time.Duration
	seq     int
	f       func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.s.ignoreStop || t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTimer{s: s, due: s.now + d, seq: len(s.tasks), f: f}
	s.tasks = append(s.tasks, t)
	return t
}

// Advance moves the clock forward by d, running due callbacks in time order.
func (s *manualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now + d
	s.mu.Unlock()

	for {
		s.mu.Lock()
		var due []*manualTimer
		for _, t := range s.tasks {
			if !t.fired && !t.stopped && t.due <= target {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			s.now = target
			s.mu.Unlock()
			return
		}
		sort.Slice(due, func(i, j int) bool {
			if due[i].due == due[j].due {
				return due[i].seq < due[j].seq
			}
			return due[i].due < due[j].due
		})
		next := due[0]
		next.fired = true
		s.now = next.due
		s.mu.Unlock()

		next.f()
	}
}

func (s *manualScheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tasks {
		if !t.fired && !t.stopped {
			n++
		}
	}
	return n
}

type stubMenuSource struct {
	menu []DailyMenu
	err  error
}

func (s stubMenuSource) WeeklyMenu(context.Context) ([]DailyMenu, error) {
	return s.menu, s.err
}

type recordingRecorder struct {
	mu     sync.Mutex
	events []ImpactEvent
	err    error
}

func (r *recordingRecorder) RecordImpact(_ context.Context, ev ImpactEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}
