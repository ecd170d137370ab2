package game

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcurtis22/triviarena/go/internal/game/events"
	"github.com/mcurtis22/triviarena/go/internal/ledger"
	"github.com/mcurtis22/triviarena/go/internal/models"
	"github.com/mcurtis22/triviarena/go/internal/relay"
)

// Phase is the round state machine's current state.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseWaiting   Phase = "waiting"
	PhaseQuestion  Phase = "question"
	PhaseResolving Phase = "resolving"
)

// Ledger defines what the engine needs from the ledger service. Every call is
// individually atomic; the engine never holds state across calls that the
// ledger also owns.
type Ledger interface {
	GetUser(ctx context.Context, username string) (*models.User, error)
	DeductToken(ctx context.Context, username string) (*models.User, error)
	CreditBalance(ctx context.Context, username string, amount int) (*models.User, error)
	IncrementExperience(ctx context.Context, username string) (int, error)
	ReserveQuestion(ctx context.Context) (*models.Question, error)
	MarkQuestionAnswered(ctx context.Context, id uuid.UUID, username string) error
}

// round is the state scoped to one question-and-answer cycle. It is cleared
// at round boundaries and never outlives them.
type round struct {
	Number       int64
	Question     *models.Question
	StartedAt    time.Time
	Submissions  map[string]string // identity -> raw submitted text
	FirstCorrect string
}

type cmdKind int

const (
	cmdJoin cmdKind = iota
	cmdRoomJoin
	cmdRoomLeave
	cmdSubmitAnswer
	cmdDisconnect
	cmdTimerFired
	cmdGraceElapsed
)

// command is one unit of work on the engine's serialized queue. Handlers for
// a given participant run in arrival order; nothing interleaves mid-handler.
type command struct {
	kind        cmdKind
	identity    string
	displayName string
	room        string
	answer      string
	connID      string
	round       int64
	timerKind   timerKind
	gen         int
}

// Engine drives one trivia room: presence, the round state machine, deadline
// timers, and reward resolution. All mutable state is owned by the goroutine
// running Run; external callers only enqueue commands.
type Engine struct {
	cfg          Config
	clock        clockwork.Clock
	ledger       Ledger
	pub          relay.Publisher
	reg          *Registry
	selectWinner SelectWinnerFunc

	cmdCh chan command

	phase        Phase
	roundNum     int64 // last assigned round number; first question is round 1
	cur          *round
	waitDeadline time.Time
	slots        [timerKinds]*slot
	grace        map[string]*graceSlot
	graceGen     map[string]int
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock; tests pass a clockwork fake.
func WithClock(c clockwork.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithSelectWinner overrides the winner selection strategy.
func WithSelectWinner(fn SelectWinnerFunc) Option {
	return func(e *Engine) { e.selectWinner = fn }
}

// NewEngine creates an engine for the configured room. If cfg.ForcedWinners
// is set the forced-winner override policy is installed, otherwise the first
// correct responder wins.
func NewEngine(cfg Config, lgr Ledger, pub relay.Publisher, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		clock:    clockwork.NewRealClock(),
		ledger:   lgr,
		pub:      pub,
		reg:      NewRegistry(cfg.Rooms),
		cmdCh:    make(chan command, 256),
		phase:    PhaseIdle,
		grace:    make(map[string]*graceSlot),
		graceGen: make(map[string]int),
	}
	if len(cfg.ForcedWinners) > 0 {
		e.selectWinner = ForcedWinnerPolicy(cfg.ForcedWinners, rand.New(rand.NewSource(time.Now().UnixNano())))
	} else {
		e.selectWinner = FirstCorrectWinner
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run consumes the command queue until ctx is cancelled. It must be called
// exactly once.
func (e *Engine) Run(ctx context.Context) error {
	log.Info().Str("room", e.cfg.Room).Msg("game engine started")
	defer e.cancelAllTimers()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("room", e.cfg.Room).Msg("game engine shutting down")
			return nil
		case cmd := <-e.cmdCh:
			e.dispatch(ctx, cmd)
		}
	}
}

// Join handles a participant connecting (or reconnecting) to the server.
func (e *Engine) Join(identity, displayName, connID string) {
	e.enqueue(command{kind: cmdJoin, identity: identity, displayName: displayName, connID: connID})
}

// JoinRoom handles a participant entering a named room.
func (e *Engine) JoinRoom(identity, displayName, room, connID string) {
	e.enqueue(command{kind: cmdRoomJoin, identity: identity, displayName: displayName, room: room, connID: connID})
}

// LeaveRoom handles a participant leaving a named room.
func (e *Engine) LeaveRoom(identity, room string) {
	e.enqueue(command{kind: cmdRoomLeave, identity: identity, room: room})
}

// SubmitAnswer handles an answer submission for a round.
func (e *Engine) SubmitAnswer(identity, displayName string, roundNum int64, answer string) {
	e.enqueue(command{kind: cmdSubmitAnswer, identity: identity, displayName: displayName, round: roundNum, answer: answer})
}

// Disconnect handles a transport-level connection loss.
func (e *Engine) Disconnect(identity, connID string) {
	e.enqueue(command{kind: cmdDisconnect, identity: identity, connID: connID})
}

func (e *Engine) enqueue(cmd command) {
	e.cmdCh <- cmd
}

func (e *Engine) dispatch(ctx context.Context, cmd command) {
	switch cmd.kind {
	case cmdJoin:
		e.handleJoin(ctx, cmd.identity, cmd.displayName, cmd.connID)
	case cmdRoomJoin:
		e.handleRoomJoin(ctx, cmd.identity, cmd.displayName, cmd.room, cmd.connID)
	case cmdRoomLeave:
		e.handleRoomLeave(ctx, cmd.identity, cmd.room)
	case cmdSubmitAnswer:
		e.handleSubmit(ctx, cmd.identity, cmd.round, cmd.answer)
	case cmdDisconnect:
		e.handleDisconnect(cmd.identity, cmd.connID)
	case cmdTimerFired:
		e.handleTimerFired(ctx, cmd.timerKind, cmd.round)
	case cmdGraceElapsed:
		e.handleGraceElapsed(ctx, cmd.identity, cmd.gen)
	}
}

// handleJoin upserts presence. A reconnect within the grace window cancels
// the pending removal and restores the participant's prior standing; no new
// join semantics apply.
func (e *Engine) handleJoin(ctx context.Context, identity, displayName, connID string) {
	if p, ok := e.reg.Get(identity); ok {
		_, pendingRemoval := e.grace[identity]
		e.cancelGrace(identity)
		p.ConnID = connID
		if displayName != "" {
			p.DisplayName = displayName
		}
		log.Info().
			Str("identity", identity).
			Bool("within_grace", pendingRemoval).
			Msg("participant reconnected")
		e.publishUser(ctx, LobbyRoom, identity, events.TypeRoomList, e.reg.RoomList())
		e.publishRoom(ctx, LobbyRoom, events.TypePresenceList, e.reg.PresenceList(LobbyRoom))
		if e.reg.InRoom(identity, e.cfg.Room) {
			e.syncRoomState(ctx, identity)
		}
		return
	}

	user, err := e.ledger.GetUser(ctx, identity)
	if err != nil {
		e.publishError(ctx, identity, err)
		return
	}

	name := displayName
	if name == "" {
		name = user.DisplayName
	}
	e.reg.Upsert(&models.Participant{
		Identity:    identity,
		DisplayName: name,
		Experience:  user.Experience,
		Bot:         user.Bot,
		ConnID:      connID,
		JoinedAt:    e.clock.Now(),
	})
	e.reg.AddToRoom(identity, LobbyRoom)

	log.Info().Str("identity", identity).Str("display_name", name).Msg("participant joined")

	e.publishUser(ctx, LobbyRoom, identity, events.TypeRoomList, e.reg.RoomList())
	e.publishRoom(ctx, LobbyRoom, events.TypePresenceList, e.reg.PresenceList(LobbyRoom))
}

// handleRoomJoin adds the participant to a named room. Joining the trivia
// room may start the waiting period or deliver a mid-round state sync.
func (e *Engine) handleRoomJoin(ctx context.Context, identity, displayName, roomName, connID string) {
	if !e.reg.HasRoom(roomName) {
		e.publishError(ctx, identity, errors.New("unknown room: "+roomName))
		return
	}
	if _, ok := e.reg.Get(identity); !ok {
		// Implicit join for participants that skipped the join message.
		e.handleJoin(ctx, identity, displayName, connID)
		if _, ok := e.reg.Get(identity); !ok {
			return
		}
	}

	if e.reg.AddToRoom(identity, roomName) {
		log.Info().Str("identity", identity).Str("room", roomName).Msg("participant entered room")
		e.publishRoom(ctx, LobbyRoom, events.TypeRoomList, e.reg.RoomList())
		e.publishRoom(ctx, roomName, events.TypePresenceList, e.reg.PresenceList(roomName))
	}

	if roomName != e.cfg.Room {
		return
	}

	switch e.phase {
	case PhaseIdle:
		if e.reg.Count(e.cfg.Room) >= e.cfg.MinPlayers {
			// Externally visible transition: announce the countdown.
			e.startWaiting(ctx, true)
		}
	default:
		e.syncRoomState(ctx, identity)
	}
}

// syncRoomState delivers the current round state to one participant with
// time-remaining recomputed as duration minus elapsed, clamped to zero —
// never a restarted clock.
func (e *Engine) syncRoomState(ctx context.Context, identity string) {
	switch e.phase {
	case PhaseQuestion:
		if e.cur == nil || e.cur.StartedAt.IsZero() {
			return
		}
		remaining := e.cfg.QuestionPeriod - e.clock.Now().Sub(e.cur.StartedAt)
		if remaining <= 0 {
			return
		}
		q := e.cur.Question
		e.publishUser(ctx, e.cfg.Room, identity, events.TypeQuestionStarted, events.QuestionStartedPayload{
			Round:       e.cur.Number,
			QuestionID:  q.ID.String(),
			Title:       q.Prompt,
			Category:    q.Category,
			Difficulty:  q.Difficulty,
			Reward:      q.Reward,
			TimeLeftSec: int(remaining.Seconds()),
		})
	case PhaseWaiting:
		remaining := e.waitDeadline.Sub(e.clock.Now())
		if remaining <= 0 {
			// The wait timer is about to fire; treat as already over rather
			// than emit a stale countdown.
			return
		}
		e.publishUser(ctx, e.cfg.Room, identity, events.TypeWaitingStarted, events.WaitingStartedPayload{
			TimeLeftSec: int(remaining.Seconds()),
		})
	}
}

// handleRoomLeave drops the participant from a room and re-evaluates the
// machine if the trivia room drained below the minimum.
func (e *Engine) handleRoomLeave(ctx context.Context, identity, roomName string) {
	if !e.reg.RemoveFromRoom(identity, roomName) {
		return
	}
	log.Info().Str("identity", identity).Str("room", roomName).Msg("participant left room")
	e.publishRoom(ctx, LobbyRoom, events.TypeRoomList, e.reg.RoomList())
	e.publishRoom(ctx, roomName, events.TypePresenceList, e.reg.PresenceList(roomName))
	if roomName == e.cfg.Room {
		e.checkDrain(ctx)
	}
}

// handleDisconnect starts the grace-period removal for the identity. A stale
// connection id (the participant already reconnected) is ignored.
func (e *Engine) handleDisconnect(identity, connID string) {
	p, ok := e.reg.Get(identity)
	if !ok || p.ConnID != connID {
		return
	}
	log.Info().Str("identity", identity).Msg("participant disconnected, starting grace period")
	e.scheduleGrace(identity)
}

// handleGraceElapsed removes a participant whose grace window expired without
// a reconnect.
func (e *Engine) handleGraceElapsed(ctx context.Context, identity string, gen int) {
	s, ok := e.grace[identity]
	if !ok || s.gen != gen {
		return
	}
	delete(e.grace, identity)

	wasInRoom := e.reg.InRoom(identity, e.cfg.Room)
	e.reg.Remove(identity)
	log.Info().Str("identity", identity).Msg("grace period expired, participant removed")

	e.publishRoom(ctx, LobbyRoom, events.TypeRoomList, e.reg.RoomList())
	e.publishRoom(ctx, LobbyRoom, events.TypePresenceList, e.reg.PresenceList(LobbyRoom))
	if wasInRoom {
		e.publishRoom(ctx, e.cfg.Room, events.TypePresenceList, e.reg.PresenceList(e.cfg.Room))
		e.checkDrain(ctx)
	}
}

// checkDrain stops a pending wait when the room no longer has enough
// players. An in-flight question is allowed to run out on its own.
func (e *Engine) checkDrain(ctx context.Context) {
	if e.phase != PhaseWaiting || e.reg.Count(e.cfg.Room) >= e.cfg.MinPlayers {
		return
	}
	e.cancelTimer(timerWait)
	e.phase = PhaseIdle
	log.Info().Str("room", e.cfg.Room).Msg("room drained below minimum, round stopped")
	e.publishRoom(ctx, e.cfg.Room, events.TypeRoundStopped, events.RoundStoppedPayload{
		Reason: "not enough players",
	})
}

// startWaiting enters the Waiting phase. The countdown broadcast is sent only
// for externally visible transitions (a join crossing the threshold), not
// after every round.
func (e *Engine) startWaiting(ctx context.Context, visible bool) {
	e.phase = PhaseWaiting
	e.waitDeadline = e.clock.Now().Add(e.cfg.WaitPeriod)
	e.schedule(timerWait, e.roundNum)
	log.Info().
		Str("room", e.cfg.Room).
		Time("deadline", e.waitDeadline).
		Msg("waiting period started")
	if visible {
		e.publishRoom(ctx, e.cfg.Room, events.TypeWaitingStarted, events.WaitingStartedPayload{
			TimeLeftSec: int(e.cfg.WaitPeriod.Seconds()),
		})
	}
}

// handleTimerFired re-validates every firing against the current phase and
// round before consuming its effect; anything stale is a no-op.
func (e *Engine) handleTimerFired(ctx context.Context, kind timerKind, roundNum int64) {
	switch kind {
	case timerWait:
		if e.phase != PhaseWaiting || roundNum != e.roundNum {
			return
		}
		e.slots[timerWait] = nil
		if e.reg.Count(e.cfg.Room) < e.cfg.MinPlayers {
			// Silent revert; the drain path already announced if it could.
			e.phase = PhaseIdle
			return
		}
		e.startQuestion(ctx)
	case timerQuestion:
		if e.phase != PhaseQuestion || e.cur == nil || e.cur.Number != roundNum || e.cur.FirstCorrect != "" {
			return
		}
		e.slots[timerQuestion] = nil
		e.resolve(ctx)
	case timerResolve:
		if e.phase != PhaseQuestion || e.cur == nil || e.cur.Number != roundNum {
			return
		}
		e.slots[timerResolve] = nil
		e.resolve(ctx)
	}
}

// startQuestion reserves a question and enters the Question phase. The round
// counter advances only on a successful reservation.
func (e *Engine) startQuestion(ctx context.Context) {
	q, err := e.ledger.ReserveQuestion(ctx)
	if err != nil {
		e.phase = PhaseIdle
		if errors.Is(err, ledger.ErrNoQuestions) {
			log.Warn().Str("room", e.cfg.Room).Msg("question pool exhausted")
			e.publishRoom(ctx, e.cfg.Room, events.TypeRoundStopped, events.RoundStoppedPayload{
				Reason: "out of questions",
			})
			return
		}
		log.Error().Err(err).Str("room", e.cfg.Room).Msg("failed to reserve question")
		e.publishRoom(ctx, e.cfg.Room, events.TypeRoundStopped, events.RoundStoppedPayload{
			Reason: "internal error",
		})
		return
	}

	e.roundNum++
	e.cur = &round{
		Number:      e.roundNum,
		Question:    q,
		StartedAt:   e.clock.Now(),
		Submissions: make(map[string]string),
	}
	e.phase = PhaseQuestion
	e.schedule(timerQuestion, e.roundNum)

	log.Info().
		Int64("round", e.roundNum).
		Str("question_id", q.ID.String()).
		Str("category", q.Category).
		Msg("question started")

	e.publishRoom(ctx, e.cfg.Room, events.TypeQuestionStarted, events.QuestionStartedPayload{
		Round:       e.cur.Number,
		QuestionID:  q.ID.String(),
		Title:       q.Prompt,
		Category:    q.Category,
		Difficulty:  q.Difficulty,
		Reward:      q.Reward,
		TimeLeftSec: int(e.cfg.QuestionPeriod.Seconds()),
	})
}

// handleSubmit runs the submission protocol: room membership, round match,
// deadline check, token deduction, recording, and the first-correct
// check-and-set. The check-and-set is not split across any suspension point;
// the serialized queue makes it atomic.
func (e *Engine) handleSubmit(ctx context.Context, identity string, roundNum int64, answer string) {
	if !e.reg.InRoom(identity, e.cfg.Room) {
		e.publishError(ctx, identity, errors.New("not in the trivia room"))
		return
	}
	// A mismatched round number or absent question means the submission
	// raced a round boundary; ignore silently.
	if e.phase != PhaseQuestion || e.cur == nil || e.cur.StartedAt.IsZero() || e.cur.Number != roundNum {
		return
	}
	// Past the deadline: ignored, no token deducted, no state change.
	if e.clock.Now().Sub(e.cur.StartedAt) >= e.cfg.QuestionPeriod {
		return
	}

	user, err := e.ledger.DeductToken(ctx, identity)
	if err != nil {
		e.publishError(ctx, identity, err)
		return
	}
	e.publishUser(ctx, e.cfg.Room, identity, events.TypeBalanceUpdate, events.BalanceUpdatePayload{
		Tokens:     user.Tokens,
		Balance:    user.Balance,
		Experience: user.Experience,
	})

	// Raw text is kept regardless of correctness for the per-user outcome
	// messages at resolution time.
	e.cur.Submissions[identity] = answer

	if normalizeAnswer(answer) == normalizeAnswer(e.cur.Question.Answer) && e.cur.FirstCorrect == "" {
		e.cur.FirstCorrect = identity
		log.Info().
			Str("identity", identity).
			Int64("round", e.cur.Number).
			Msg("first correct answer recorded")
		// The submission window stays bounded by the elapsed-time check;
		// from here on the resolution delay owns the transition.
		e.cancelTimer(timerQuestion)
		e.schedule(timerResolve, e.cur.Number)
	}
}

// resolve computes the winner, issues the reward exactly once, emits the
// personalized outcomes, clears round state, and evaluates the next
// transition.
func (e *Engine) resolve(ctx context.Context) {
	e.phase = PhaseResolving
	e.cancelTimer(timerQuestion)
	e.cancelTimer(timerResolve)

	cur := e.cur
	participants := e.reg.List(e.cfg.Room)
	winner := e.selectWinner(participants, cur.FirstCorrect)
	nextWait := int(e.cfg.WaitPeriod.Seconds())
	q := cur.Question

	var winnerExperience int
	if winner != "" {
		if _, err := e.ledger.CreditBalance(ctx, winner, q.Reward); err != nil {
			log.Error().Err(err).Str("winner", winner).Msg("failed to credit reward")
			e.publishError(ctx, winner, err)
		}
		exp, err := e.ledger.IncrementExperience(ctx, winner)
		if err != nil {
			log.Error().Err(err).Str("winner", winner).Msg("failed to increment experience")
		} else {
			winnerExperience = exp
			if p, ok := e.reg.Get(winner); ok {
				p.Experience = exp
			}
		}
		if err := e.ledger.MarkQuestionAnswered(ctx, q.ID, winner); err != nil {
			log.Error().Err(err).Str("question_id", q.ID.String()).Msg("failed to mark question answered")
		}

		winnerName := winner
		if p, ok := e.reg.Get(winner); ok {
			winnerName = p.DisplayName
		}
		log.Info().
			Int64("round", cur.Number).
			Str("winner", winner).
			Int("reward", q.Reward).
			Msg("round won")
		e.publishRoom(ctx, e.cfg.Room, events.TypeRoundWon, events.RoundWonPayload{
			Winner:        winner,
			WinnerName:    winnerName,
			Round:         cur.Number,
			CorrectAnswer: q.Answer,
			Reward:        q.Reward,
			Experience:    winnerExperience,
			NextWaitSec:   nextWait,
		})
	} else {
		log.Info().Int64("round", cur.Number).Msg("round ended without a winner")
	}

	for _, p := range participants {
		message, won := e.outcomeFor(cur, winner, p.Identity)
		e.publishUser(ctx, e.cfg.Room, p.Identity, events.TypeRoundOutcome, events.RoundOutcomePayload{
			Round:         cur.Number,
			CorrectAnswer: q.Answer,
			NextWaitSec:   nextWait,
			Message:       message,
			Winner:        won,
		})
	}

	e.publishRoom(ctx, e.cfg.Room, events.TypePresenceList, e.reg.PresenceList(e.cfg.Room))

	// Round-scoped state dies with the round.
	e.cur = nil

	if e.reg.Count(e.cfg.Room) >= e.cfg.MinPlayers {
		e.startWaiting(ctx, false)
		return
	}
	e.phase = PhaseIdle
	e.publishRoom(ctx, e.cfg.Room, events.TypeRoundStopped, events.RoundStoppedPayload{
		Reason: "not enough players",
	})
}

func (e *Engine) outcomeFor(cur *round, winner, identity string) (string, bool) {
	if identity == winner {
		return "You won this round!", true
	}
	submission, submitted := cur.Submissions[identity]
	switch {
	case !submitted:
		return "No response.", false
	case normalizeAnswer(submission) == normalizeAnswer(cur.Question.Answer):
		return "Correct, but not the fastest.", false
	default:
		return "Wrong answer.", false
	}
}

func normalizeAnswer(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (e *Engine) publishRoom(ctx context.Context, room string, typ events.Type, payload any) {
	e.publish(ctx, room, "", typ, payload)
}

func (e *Engine) publishUser(ctx context.Context, room, identity string, typ events.Type, payload any) {
	e.publish(ctx, room, identity, typ, payload)
}

// publishError surfaces a participant-facing error without touching round
// state. Errors go to the originating participant only.
func (e *Engine) publishError(ctx context.Context, identity string, err error) {
	e.publish(ctx, LobbyRoom, identity, events.TypeError, events.ErrorPayload{Message: err.Error()})
}

func (e *Engine) publish(ctx context.Context, room, identity string, typ events.Type, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(typ)).Msg("failed to marshal event payload")
		return
	}
	ev := relay.Event{
		ID:        uuid.New().String(),
		Room:      room,
		Type:      typ,
		UserID:    identity,
		Timestamp: e.clock.Now(),
		Payload:   data,
	}
	if err := e.pub.Publish(ctx, ev); err != nil {
		log.Error().Err(err).Str("event_type", string(typ)).Msg("failed to publish event")
	}
}
