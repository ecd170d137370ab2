package game

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// timerKind names the engine's single-slot deadline timers.
type timerKind int

const (
	timerWait timerKind = iota
	timerQuestion
	timerResolve
	timerKinds
)

func (k timerKind) String() string {
	switch k {
	case timerWait:
		return "wait"
	case timerQuestion:
		return "question"
	case timerResolve:
		return "resolve"
	}
	return "unknown"
}

// slot is one cancelable deadline timer. At most one slot per kind is live;
// scheduling a replacement cancels the previous one first, so no orphan timer
// can fire against stale round state.
type slot struct {
	timer  clockwork.Timer
	cancel chan struct{}
}

// schedule arms the timer of the given kind. The round number is carried on
// the fired command and re-validated by the handler, which no-ops when the
// round has already moved on.
func (e *Engine) schedule(kind timerKind, round int64) {
	d := e.durationFor(kind)
	e.cancelTimer(kind)

	s := &slot{
		timer:  e.clock.NewTimer(d),
		cancel: make(chan struct{}),
	}
	e.slots[kind] = s

	go func() {
		select {
		case <-s.timer.Chan():
			e.enqueue(command{kind: cmdTimerFired, timerKind: kind, round: round})
		case <-s.cancel:
			stopAndDrainTimer(s.timer)
		}
	}()

	log.Debug().
		Str("timer", kind.String()).
		Int64("round", round).
		Dur("duration", d).
		Msg("scheduled timer")
}

func (e *Engine) durationFor(kind timerKind) time.Duration {
	switch kind {
	case timerWait:
		return e.cfg.WaitPeriod
	case timerQuestion:
		return e.cfg.QuestionPeriod
	case timerResolve:
		return e.cfg.ResolveDelay
	}
	return 0
}

// cancelTimer stops and clears the slot of the given kind.
func (e *Engine) cancelTimer(kind timerKind) {
	if s := e.slots[kind]; s != nil {
		close(s.cancel)
		e.slots[kind] = nil
		log.Debug().Str("timer", kind.String()).Msg("cancelled timer")
	}
}

// cancelAllTimers clears every deadline and grace timer; used on shutdown.
func (e *Engine) cancelAllTimers() {
	for kind := timerKind(0); kind < timerKinds; kind++ {
		e.cancelTimer(kind)
	}
	for identity := range e.grace {
		e.cancelGrace(identity)
	}
}

// stopAndDrainTimer safely stops a timer and drains its channel to prevent
// goroutine leaks. This follows the pattern recommended in the
// time.Timer.Stop() documentation.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}

// graceSlot is a pending disconnect removal. The generation counter makes a
// reconnect-then-redisconnect sequence distinguishable from a stale firing.
type graceSlot struct {
	gen    int
	timer  clockwork.Timer
	cancel chan struct{}
}

// scheduleGrace arms (or re-arms) the removal timer for an identity.
func (e *Engine) scheduleGrace(identity string) {
	e.cancelGrace(identity)
	e.graceGen[identity]++

	s := &graceSlot{
		gen:    e.graceGen[identity],
		timer:  e.clock.NewTimer(e.cfg.GracePeriod),
		cancel: make(chan struct{}),
	}
	e.grace[identity] = s

	go func() {
		select {
		case <-s.timer.Chan():
			e.enqueue(command{kind: cmdGraceElapsed, identity: identity, gen: s.gen})
		case <-s.cancel:
			stopAndDrainTimer(s.timer)
		}
	}()

	log.Debug().
		Str("identity", identity).
		Dur("grace", e.cfg.GracePeriod).
		Msg("scheduled removal grace timer")
}

// cancelGrace stops a pending removal, restoring the participant's prior
// standing.
func (e *Engine) cancelGrace(identity string) {
	if s, ok := e.grace[identity]; ok {
		close(s.cancel)
		delete(e.grace, identity)
		log.Debug().Str("identity", identity).Msg("cancelled removal grace timer")
	}
}
