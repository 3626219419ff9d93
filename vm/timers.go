package vm

import (
	"sort"
	"time"
)

// Tick is the AFTER/EVERY time unit.
const Tick = time.Second / 50

const timerCount = 4

type timerEntry struct {
	id     int
	period time.Duration
	next   time.Time
	repeat bool
	fn     func() error
}

// timerTable holds the AFTER/EVERY timers 0-3. Timers are only fired from
// frame, on the interpreter goroutine.
type timerTable struct {
	entries map[int]*timerEntry
	firing  bool
}

func newTimerTable() *timerTable {
	return &timerTable{entries: make(map[int]*timerEntry)}
}

func (t *timerTable) set(now time.Time, ticks float64, id int, repeat bool, fn func() error) error {
	if id < 0 || id >= timerCount || ticks < 0 {
		return NewBasicError(ErrCodeImproperArgument, "timer")
	}
	period := time.Duration(ticks) * Tick
	t.entries[id] = &timerEntry{id: id, period: period, next: now.Add(period), repeat: repeat, fn: fn}
	return nil
}

// remain disables a timer and returns the ticks it had left, or 0.
func (t *timerTable) remain(now time.Time, id int) (int, error) {
	if id < 0 || id >= timerCount {
		return 0, NewBasicError(ErrCodeImproperArgument, "REMAIN")
	}
	e, ok := t.entries[id]
	if !ok {
		return 0, nil
	}
	delete(t.entries, id)
	left := e.next.Sub(now)
	if left < 0 {
		return 0, nil
	}
	return int(left / Tick), nil
}

// due removes or reschedules the expired timers and returns them in
// priority order (higher id first).
func (t *timerTable) due(now time.Time) []*timerEntry {
	var out []*timerEntry
	for id, e := range t.entries {
		if e.next.After(now) {
			continue
		}
		out = append(out, e)
		if e.repeat && e.period > 0 {
			e.next = now.Add(e.period)
		} else {
			delete(t.entries, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id > out[j].id })
	return out
}

// fire runs the due timers. Nested frames inside a timer body do not fire
// timers again.
func (t *timerTable) fire(now time.Time) error {
	if t.firing {
		return nil
	}
	t.firing = true
	defer func() { t.firing = false }()
	for _, e := range t.due(now) {
		if err := e.fn(); err != nil {
			return err
		}
	}
	return nil
}

func (t *timerTable) clear() {
	t.entries = make(map[int]*timerEntry)
	t.firing = false
}

func (t *timerTable) len() int { return len(t.entries) }
