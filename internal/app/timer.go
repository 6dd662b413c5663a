package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"live-trivia-service/internal/domain"
)

// questionTimer is the cancellation handle for one open question's countdown.
type questionTimer struct {
	code     string
	index    int
	stop     chan struct{}
	stopOnce sync.Once
}

func (t *questionTimer) cancel() {
	t.stopOnce.Do(func() { close(t.stop) })
}

// timerRegistry tracks at most one live countdown per session. Its lock is
// independent of the per-session snapshot locks so cancellation never waits
// on a snapshot operation.
type timerRegistry struct {
	mu     sync.Mutex
	timers map[string]*questionTimer
}

func (r *timerRegistry) replace(t *questionTimer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timers == nil {
		r.timers = make(map[string]*questionTimer)
	}
	if old, ok := r.timers[t.code]; ok {
		old.cancel()
	}
	r.timers[t.code] = t
}

func (r *timerRegistry) cancel(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.timers[code]; ok {
		t.cancel()
		delete(r.timers, code)
	}
}

func (r *timerRegistry) remove(t *questionTimer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.timers[t.code]; ok && cur == t {
		delete(r.timers, t.code)
	}
}

// spawnTimer starts the countdown for a freshly opened question.
func (c *Controller) spawnTimer(code string, index, seconds int) {
	t := &questionTimer{code: code, index: index, stop: make(chan struct{})}
	c.timers.replace(t)
	go c.runTimer(t, seconds)
}

// runTimer ticks once per second, broadcasting the remaining time, and closes
// the question at zero. No lock is held between ticks; each tick revalidates
// the open-question state under the session lock, so a cancelled or already
// closed question is never mutated.
func (c *Controller) runTimer(t *questionTimer, seconds int) {
	ticker := c.clock.NewTicker(time.Second)
	defer ticker.Stop()

	left := seconds
	for left > 0 {
		select {
		case <-t.stop:
			return
		case <-ticker.Chan():
			left--
			c.tickQuestion(t.code, t.index, left)
		}
	}

	c.timers.remove(t)
	select {
	case <-t.stop:
		return
	default:
	}

	err := c.EndQuestion(context.Background(), t.code, t.index)
	if err != nil && !errors.Is(err, domain.ErrQuestionClosed) && !errors.Is(err, domain.ErrSessionFinished) {
		c.log.Error().Err(err).Str("session", t.code).Int("question", t.index).Msg("timer-driven question end failed")
	}
}

// tickQuestion records the remaining time and broadcasts a timer_update,
// unless the question has moved on underneath the timer.
func (c *Controller) tickQuestion(code string, index, left int) {
	ctx := context.Background()
	unlock := c.locks.lock(code)
	defer unlock()

	snap, err := c.snaps.Get(ctx, code)
	if err != nil {
		return
	}
	if !snap.QuestionOpen || snap.CurrentQuestionIndex != index || snap.CurrentQuestion == nil {
		return
	}
	snap.CurrentQuestion.TimeLeft = left
	if err := c.snaps.Put(ctx, code, snap); err != nil {
		c.log.Warn().Err(err).Str("session", code).Msg("failed to store timer tick")
	}

	c.bus.BroadcastToSession(code, domain.EventTimerUpdate, domain.TimerUpdatePayload{
		QuestionIndex: index,
		TimeLeft:      left,
	})
}
