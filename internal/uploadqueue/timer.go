package uploadqueue

import (
	"context"
	"errors"
	"time"
)

// armRetryTimer schedules a pass for the earliest pending retry. While
// offline no timer is armed; the reconnect trigger starts the next pass.
func (p *Processor) armRetryTimer(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	at, err := p.store.NextRetryAt(ctx)
	if err != nil {
		p.logg.Error(ctx, "failed to read next retry time", err)
		return
	}

	p.timerMu.Lock()
	defer p.timerMu.Unlock()
	if p.closed {
		return
	}
	if p.stopTimer != nil {
		p.stopTimer()
		p.stopTimer = nil
		p.timerAt = time.Time{}
	}
	if at == nil || !p.online() {
		return
	}

	delay := at.Sub(p.now())
	if delay < minRetryTimerDelay {
		delay = minRetryTimerDelay
	}
	p.timerAt = *at
	p.stopTimer = p.afterFunc(delay, p.retryTimerFired)
}

func (p *Processor) retryTimerFired() {
	ctx := p.logg.WithComponent(context.Background(), "retry-timer")
	if _, err := p.ProcessQueue(ctx); err != nil && !errors.Is(err, ErrAlreadyProcessing) {
		p.logg.Error(ctx, "scheduled upload pass failed", err)
	}
}

// ScheduledRetry returns when the retry timer will next fire a pass.
func (p *Processor) ScheduledRetry() (time.Time, bool) {
	p.timerMu.Lock()
	defer p.timerMu.Unlock()
	if p.stopTimer == nil {
		return time.Time{}, false
	}
	return p.timerAt, true
}
