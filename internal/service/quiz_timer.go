package service

import (
	"sync"
	"sync/atomic"
	"time"
)

// QuizTimerConfig describes one attempt's countdown.
type QuizTimerConfig struct {
	// TimeLimitMinutes of nil or zero makes the timer inert.
	TimeLimitMinutes *int
	StartedAt        time.Time
	Interval         time.Duration
	Now              func() time.Time
	OnTick           func(remaining time.Duration)
	OnExpire         func()
}

// QuizTimer counts down to an attempt's deadline and fires OnExpire exactly once.
// Remaining time is recomputed from the clock on every tick so a suspended process
// catches up on the next tick instead of drifting.
type QuizTimer struct {
	deadline time.Time
	limited  bool
	interval time.Duration
	now      func() time.Time
	onTick   func(time.Duration)
	onExpire func()

	lowest    atomic.Int64
	fired     atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// NewQuizTimer builds a stopped timer. Call Start to begin ticking.
func NewQuizTimer(cfg QuizTimerConfig) *QuizTimer {
	timer := &QuizTimer{
		interval: cfg.Interval,
		now:      cfg.Now,
		onTick:   cfg.OnTick,
		onExpire: cfg.OnExpire,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	if timer.interval <= 0 {
		timer.interval = time.Second
	}
	if timer.now == nil {
		timer.now = time.Now
	}
	if cfg.TimeLimitMinutes != nil && *cfg.TimeLimitMinutes > 0 {
		timer.limited = true
		timer.deadline = cfg.StartedAt.Add(time.Duration(*cfg.TimeLimitMinutes) * time.Minute)
		timer.lowest.Store(int64(time.Duration(*cfg.TimeLimitMinutes) * time.Minute))
	}
	return timer
}

// Limited reports whether the timer has a deadline at all.
func (t *QuizTimer) Limited() bool {
	return t.limited
}

// Deadline returns the expiry moment of a limited timer.
func (t *QuizTimer) Deadline() time.Time {
	return t.deadline
}

// Remaining recomputes the time left. It never increases, even if the clock moves backwards,
// and is clamped at zero. An inert timer reports zero.
func (t *QuizTimer) Remaining() time.Duration {
	if !t.limited {
		return 0
	}

	current := t.deadline.Sub(t.now())
	if current < 0 {
		current = 0
	}
	for {
		lowest := t.lowest.Load()
		if int64(current) >= lowest {
			return time.Duration(lowest)
		}
		if t.lowest.CompareAndSwap(lowest, int64(current)) {
			return current
		}
	}
}

// Start begins ticking. An inert timer finishes immediately without firing.
func (t *QuizTimer) Start() {
	t.startOnce.Do(func() {
		if !t.limited {
			close(t.done)
			return
		}
		go t.run()
	})
}

// Stop tears the timer down without firing. It does not wait for a running OnExpire.
func (t *QuizTimer) Stop() {
	t.stopOnce.Do(func() {
		close(t.stop)
	})
	t.startOnce.Do(func() {
		close(t.done)
	})
}

// Done is closed once the timer stopped or fired.
func (t *QuizTimer) Done() <-chan struct{} {
	return t.done
}

// Fired reports whether OnExpire was triggered.
func (t *QuizTimer) Fired() bool {
	return t.fired.Load()
}

func (t *QuizTimer) run() {
	defer close(t.done)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		default:
		}

		if t.tick() {
			return
		}

		select {
		case <-t.stop:
			return
		case <-ticker.C:
		}
	}
}

func (t *QuizTimer) tick() bool {
	remaining := t.Remaining()
	if t.onTick != nil {
		t.onTick(remaining)
	}
	if remaining > 0 {
		return false
	}
	if t.fired.CompareAndSwap(false, true) && t.onExpire != nil {
		t.onExpire()
	}
	return true
}
