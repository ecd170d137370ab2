package game

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/mcurtis22/triviarena/go/internal/game/events"
	"github.com/mcurtis22/triviarena/go/internal/ledger"
	"github.com/mcurtis22/triviarena/go/internal/models"
	"github.com/mcurtis22/triviarena/go/internal/relay"
)

type credit struct {
	Username string
	Amount   int
}

// fakeLedger is an in-memory Ledger for engine tests.
type fakeLedger struct {
	users     map[string]*models.User
	questions []*models.Question
	next      int
	deducts   []string
	credits   []credit
	answered  map[string]string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		users:    make(map[string]*models.User),
		answered: make(map[string]string),
	}
}

func (f *fakeLedger) addUser(username string, tokens int) {
	f.users[username] = &models.User{
		Username:    username,
		DisplayName: username,
		Tokens:      tokens,
	}
}

func (f *fakeLedger) addQuestion(prompt, answer string, reward int) *models.Question {
	q := &models.Question{
		ID:         uuid.New(),
		Prompt:     prompt,
		Answer:     answer,
		Category:   "general",
		Difficulty: "easy",
		Reward:     reward,
	}
	f.questions = append(f.questions, q)
	return q
}

func (f *fakeLedger) GetUser(_ context.Context, username string) (*models.User, error) {
	u, ok := f.users[username]
	if !ok {
		return nil, ledger.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeLedger) DeductToken(_ context.Context, username string) (*models.User, error) {
	u, ok := f.users[username]
	if !ok {
		return nil, ledger.ErrUserNotFound
	}
	if u.Tokens < 1 {
		return nil, ledger.ErrInsufficientTokens
	}
	u.Tokens--
	f.deducts = append(f.deducts, username)
	return u, nil
}

func (f *fakeLedger) CreditBalance(_ context.Context, username string, amount int) (*models.User, error) {
	u, ok := f.users[username]
	if !ok {
		return nil, ledger.ErrUserNotFound
	}
	u.Balance += amount
	f.credits = append(f.credits, credit{Username: username, Amount: amount})
	return u, nil
}

func (f *fakeLedger) IncrementExperience(_ context.Context, username string) (int, error) {
	u, ok := f.users[username]
	if !ok {
		return 0, ledger.ErrUserNotFound
	}
	u.Experience++
	return u.Experience, nil
}

func (f *fakeLedger) ReserveQuestion(_ context.Context) (*models.Question, error) {
	if f.next >= len(f.questions) {
		return nil, ledger.ErrNoQuestions
	}
	q := f.questions[f.next]
	f.next++
	q.Used = true
	return q, nil
}

func (f *fakeLedger) MarkQuestionAnswered(_ context.Context, id uuid.UUID, username string) error {
	f.answered[id.String()] = username
	return nil
}

// capturePublisher records published events in order.
type capturePublisher struct {
	mu     sync.Mutex
	events []relay.Event
}

func (p *capturePublisher) Publish(_ context.Context, ev relay.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *capturePublisher) ofType(typ events.Type) []relay.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []relay.Event
	for _, ev := range p.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (p *capturePublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}

func decodePayload[T any](t *testing.T, ev relay.Event) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(ev.Payload, &out); err != nil {
		t.Fatalf("unmarshal %s payload: %v", ev.Type, err)
	}
	return out
}

func testConfig() Config {
	return Config{
		Room:           "trivia",
		Rooms:          []string{LobbyRoom, "trivia"},
		MinPlayers:     2,
		WaitPeriod:     30 * time.Second,
		QuestionPeriod: 30 * time.Second,
		ResolveDelay:   15 * time.Second,
		GracePeriod:    10 * time.Second,
	}
}

type fixture struct {
	engine *Engine
	clock  *clockwork.FakeClock
	ledger *fakeLedger
	pub    *capturePublisher
	ctx    context.Context
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	fc := clockwork.NewFakeClock()
	fl := newFakeLedger()
	pub := &capturePublisher{}
	allOpts := append([]Option{WithClock(fc)}, opts...)
	e := NewEngine(testConfig(), fl, pub, allOpts...)
	return &fixture{engine: e, clock: fc, ledger: fl, pub: pub, ctx: context.Background()}
}

// joinRoom drives a full join sequence for one participant, bypassing the
// command queue so the test stays deterministic.
func (f *fixture) joinRoom(identity string) {
	f.engine.handleJoin(f.ctx, identity, "", identity+"-conn")
	f.engine.handleRoomJoin(f.ctx, identity, "", f.engine.cfg.Room, identity+"-conn")
}

// startRound joins the given players and fires the wait timer so a question
// is live when it returns.
func (f *fixture) startRound(t *testing.T, players ...string) {
	t.Helper()
	for _, p := range players {
		f.ledger.addUser(p, 10)
		f.joinRoom(p)
	}
	if f.engine.phase != PhaseWaiting {
		t.Fatalf("phase after joins = %s, want %s", f.engine.phase, PhaseWaiting)
	}
	f.engine.handleTimerFired(f.ctx, timerWait, f.engine.roundNum)
	if f.engine.phase != PhaseQuestion {
		t.Fatalf("phase after wait timer = %s, want %s", f.engine.phase, PhaseQuestion)
	}
}

func TestJoinNewParticipant(t *testing.T) {
	f := newFixture(t)
	f.ledger.addUser("alice", 10)

	f.engine.handleJoin(f.ctx, "alice", "Alice", "conn-1")

	if _, ok := f.engine.reg.Get("alice"); !ok {
		t.Fatal("alice not in registry after join")
	}
	if !f.engine.reg.InRoom("alice", LobbyRoom) {
		t.Error("alice not in lobby after join")
	}

	roomLists := f.pub.ofType(events.TypeRoomList)
	if len(roomLists) != 1 || roomLists[0].UserID != "alice" {
		t.Errorf("room_list events = %+v, want one targeted at alice", roomLists)
	}
	presence := f.pub.ofType(events.TypePresenceList)
	if len(presence) != 1 || presence[0].UserID != "" || presence[0].Room != LobbyRoom {
		t.Errorf("presence_list events = %+v, want one lobby broadcast", presence)
	}
	got := decodePayload[events.PresenceListPayload](t, presence[0])
	want := events.PresenceListPayload{Participants: []events.PresenceEntry{
		{Identity: "alice", DisplayName: "Alice"},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("presence payload mismatch (-want +got):\n%s", diff)
	}
}

func TestJoinUnknownUser(t *testing.T) {
	f := newFixture(t)

	f.engine.handleJoin(f.ctx, "ghost", "", "conn-1")

	if _, ok := f.engine.reg.Get("ghost"); ok {
		t.Error("unknown user must not be registered")
	}
	errs := f.pub.ofType(events.TypeError)
	if len(errs) != 1 || errs[0].UserID != "ghost" {
		t.Fatalf("error events = %+v, want one targeted at ghost", errs)
	}
}

func TestRoomJoinStartsWaitingAtThreshold(t *testing.T) {
	f := newFixture(t)
	f.ledger.addUser("alice", 10)
	f.ledger.addUser("bob", 10)

	f.joinRoom("alice")
	if f.engine.phase != PhaseIdle {
		t.Fatalf("phase with one player = %s, want %s", f.engine.phase, PhaseIdle)
	}
	if got := f.pub.ofType(events.TypeWaitingStarted); len(got) != 0 {
		t.Fatalf("waiting_started before threshold: %+v", got)
	}

	f.joinRoom("bob")
	if f.engine.phase != PhaseWaiting {
		t.Fatalf("phase with two players = %s, want %s", f.engine.phase, PhaseWaiting)
	}
	waits := f.pub.ofType(events.TypeWaitingStarted)
	if len(waits) != 1 || waits[0].UserID != "" || waits[0].Room != "trivia" {
		t.Fatalf("waiting_started events = %+v, want one room broadcast", waits)
	}
	payload := decodePayload[events.WaitingStartedPayload](t, waits[0])
	if payload.TimeLeftSec != 30 {
		t.Errorf("TimeLeftSec = %d, want 30", payload.TimeLeftSec)
	}
}

func TestUnknownRoomRejected(t *testing.T) {
	f := newFixture(t)
	f.ledger.addUser("alice", 10)
	f.engine.handleJoin(f.ctx, "alice", "", "conn-1")

	f.engine.handleRoomJoin(f.ctx, "alice", "", "poker", "conn-1")

	errs := f.pub.ofType(events.TypeError)
	if len(errs) != 1 || errs[0].UserID != "alice" {
		t.Fatalf("error events = %+v, want one targeted at alice", errs)
	}
}

func TestFirstCorrectWinsExactlyOnce(t *testing.T) {
	f := newFixture(t)
	q := f.ledger.addQuestion("What is 2+2?", "4", 10)
	f.startRound(t, "alice", "bob")
	f.pub.reset()

	f.engine.handleSubmit(f.ctx, "alice", 1, " 4 ")
	if f.engine.cur.FirstCorrect != "alice" {
		t.Fatalf("FirstCorrect = %q, want alice", f.engine.cur.FirstCorrect)
	}
	if f.engine.slots[timerQuestion] != nil {
		t.Error("question timer still armed after first correct answer")
	}
	if f.engine.slots[timerResolve] == nil {
		t.Error("resolve timer not armed after first correct answer")
	}

	f.engine.handleSubmit(f.ctx, "bob", 1, "4")
	if f.engine.cur.FirstCorrect != "alice" {
		t.Fatalf("FirstCorrect overwritten to %q", f.engine.cur.FirstCorrect)
	}
	if diff := cmp.Diff([]string{"alice", "bob"}, f.ledger.deducts); diff != "" {
		t.Errorf("deducts mismatch (-want +got):\n%s", diff)
	}

	f.engine.handleTimerFired(f.ctx, timerResolve, 1)

	if diff := cmp.Diff([]credit{{Username: "alice", Amount: 10}}, f.ledger.credits); diff != "" {
		t.Errorf("credits mismatch (-want +got):\n%s", diff)
	}
	if got := f.ledger.answered[q.ID.String()]; got != "alice" {
		t.Errorf("question answered_by = %q, want alice", got)
	}

	wons := f.pub.ofType(events.TypeRoundWon)
	if len(wons) != 1 || wons[0].UserID != "" {
		t.Fatalf("round_won events = %+v, want one room broadcast", wons)
	}
	won := decodePayload[events.RoundWonPayload](t, wons[0])
	if won.Winner != "alice" || won.Round != 1 || won.Reward != 10 || won.CorrectAnswer != "4" {
		t.Errorf("round_won payload = %+v", won)
	}

	outcomes := make(map[string]events.RoundOutcomePayload)
	for _, ev := range f.pub.ofType(events.TypeRoundOutcome) {
		outcomes[ev.UserID] = decodePayload[events.RoundOutcomePayload](t, ev)
	}
	if !outcomes["alice"].Winner || outcomes["alice"].Message != "You won this round!" {
		t.Errorf("alice outcome = %+v", outcomes["alice"])
	}
	if outcomes["bob"].Winner || outcomes["bob"].Message != "Correct, but not the fastest." {
		t.Errorf("bob outcome = %+v", outcomes["bob"])
	}

	if f.engine.cur != nil {
		t.Error("round state not cleared after resolution")
	}
	if f.engine.phase != PhaseWaiting {
		t.Errorf("phase after resolution = %s, want %s", f.engine.phase, PhaseWaiting)
	}
}

func TestLateSubmissionIgnored(t *testing.T) {
	f := newFixture(t)
	f.ledger.addQuestion("What is 2+2?", "4", 10)
	f.startRound(t, "alice", "bob")
	f.pub.reset()

	f.clock.Advance(f.engine.cfg.QuestionPeriod)
	f.engine.handleSubmit(f.ctx, "alice", 1, "4")

	if len(f.ledger.deducts) != 0 {
		t.Errorf("deducts = %v, want none for a late submission", f.ledger.deducts)
	}
	if f.engine.cur.FirstCorrect != "" {
		t.Errorf("FirstCorrect = %q, want empty", f.engine.cur.FirstCorrect)
	}
	if got := f.pub.ofType(events.TypeBalanceUpdate); len(got) != 0 {
		t.Errorf("balance_update after late submission: %+v", got)
	}
}

func TestSubmitOutsideRoomRejected(t *testing.T) {
	f := newFixture(t)
	f.ledger.addQuestion("What is 2+2?", "4", 10)
	f.startRound(t, "alice", "bob")
	f.ledger.addUser("carol", 10)
	f.engine.handleJoin(f.ctx, "carol", "", "carol-conn")
	f.pub.reset()

	f.engine.handleSubmit(f.ctx, "carol", 1, "4")

	if len(f.ledger.deducts) != 0 {
		t.Errorf("deducts = %v, want none", f.ledger.deducts)
	}
	errs := f.pub.ofType(events.TypeError)
	if len(errs) != 1 || errs[0].UserID != "carol" {
		t.Fatalf("error events = %+v, want one targeted at carol", errs)
	}
}

func TestWrongRoundSubmissionIgnoredSilently(t *testing.T) {
	f := newFixture(t)
	f.ledger.addQuestion("What is 2+2?", "4", 10)
	f.startRound(t, "alice", "bob")
	f.pub.reset()

	f.engine.handleSubmit(f.ctx, "alice", 99, "4")

	if len(f.ledger.deducts) != 0 {
		t.Errorf("deducts = %v, want none", f.ledger.deducts)
	}
	if len(f.pub.ofType(events.TypeError)) != 0 {
		t.Error("stale round submission must be ignored without an error event")
	}
}

func TestDeadlineWithoutWinner(t *testing.T) {
	f := newFixture(t)
	f.ledger.addQuestion("What is 2+2?", "4", 10)
	f.startRound(t, "alice", "bob")
	f.pub.reset()

	f.engine.handleSubmit(f.ctx, "alice", 1, "5")
	f.engine.handleTimerFired(f.ctx, timerQuestion, 1)

	if len(f.ledger.credits) != 0 {
		t.Errorf("credits = %v, want none", f.ledger.credits)
	}
	if got := f.pub.ofType(events.TypeRoundWon); len(got) != 0 {
		t.Errorf("round_won without a winner: %+v", got)
	}

	outcomes := make(map[string]events.RoundOutcomePayload)
	for _, ev := range f.pub.ofType(events.TypeRoundOutcome) {
		outcomes[ev.UserID] = decodePayload[events.RoundOutcomePayload](t, ev)
	}
	if outcomes["alice"].Message != "Wrong answer." {
		t.Errorf("alice outcome = %+v", outcomes["alice"])
	}
	if outcomes["bob"].Message != "No response." {
		t.Errorf("bob outcome = %+v", outcomes["bob"])
	}
	if f.engine.phase != PhaseWaiting {
		t.Errorf("phase = %s, want %s (enough players remain)", f.engine.phase, PhaseWaiting)
	}
}

func TestMidQuestionJoinGetsClampedCountdown(t *testing.T) {
	f := newFixture(t)
	f.ledger.addQuestion("What is 2+2?", "4", 10)
	f.startRound(t, "alice", "bob")
	f.clock.Advance(10 * time.Second)
	f.pub.reset()

	f.ledger.addUser("carol", 10)
	f.joinRoom("carol")

	var carolQuestions []relay.Event
	for _, ev := range f.pub.ofType(events.TypeQuestionStarted) {
		if ev.UserID == "carol" {
			carolQuestions = append(carolQuestions, ev)
		}
	}
	if len(carolQuestions) != 1 {
		t.Fatalf("question_started to carol = %d, want 1", len(carolQuestions))
	}
	payload := decodePayload[events.QuestionStartedPayload](t, carolQuestions[0])
	if payload.TimeLeftSec != 20 {
		t.Errorf("TimeLeftSec = %d, want 20 (remaining, not restarted)", payload.TimeLeftSec)
	}
	if payload.Round != 1 {
		t.Errorf("Round = %d, want 1", payload.Round)
	}
}

func TestRoundNumbersStrictlyIncrease(t *testing.T) {
	f := newFixture(t)
	f.ledger.addQuestion("q1", "a1", 5)
	f.ledger.addQuestion("q2", "a2", 5)
	f.startRound(t, "alice", "bob")

	if f.engine.roundNum != 1 {
		t.Fatalf("first round number = %d, want 1", f.engine.roundNum)
	}

	f.engine.handleTimerFired(f.ctx, timerQuestion, 1)
	if f.engine.phase != PhaseWaiting {
		t.Fatalf("phase after resolution = %s, want %s", f.engine.phase, PhaseWaiting)
	}
	f.pub.reset()
	f.engine.handleTimerFired(f.ctx, timerWait, f.engine.roundNum)

	started := f.pub.ofType(events.TypeQuestionStarted)
	if len(started) != 1 {
		t.Fatalf("question_started events = %d, want 1", len(started))
	}
	payload := decodePayload[events.QuestionStartedPayload](t, started[0])
	if payload.Round != 2 {
		t.Errorf("second round number = %d, want 2", payload.Round)
	}
}

func TestOutOfQuestionsStopsRound(t *testing.T) {
	f := newFixture(t)
	f.ledger.addUser("alice", 10)
	f.ledger.addUser("bob", 10)
	f.joinRoom("alice")
	f.joinRoom("bob")
	f.pub.reset()

	f.engine.handleTimerFired(f.ctx, timerWait, 0)

	if f.engine.phase != PhaseIdle {
		t.Errorf("phase = %s, want %s", f.engine.phase, PhaseIdle)
	}
	if f.engine.roundNum != 0 {
		t.Errorf("round counter advanced to %d on failed reservation", f.engine.roundNum)
	}
	stops := f.pub.ofType(events.TypeRoundStopped)
	if len(stops) != 1 {
		t.Fatalf("round_stopped events = %d, want 1", len(stops))
	}
	payload := decodePayload[events.RoundStoppedPayload](t, stops[0])
	if payload.Reason != "out of questions" {
		t.Errorf("reason = %q, want %q", payload.Reason, "out of questions")
	}
}

func TestDrainMidWaitingStopsRound(t *testing.T) {
	f := newFixture(t)
	f.ledger.addUser("alice", 10)
	f.ledger.addUser("bob", 10)
	f.joinRoom("alice")
	f.joinRoom("bob")
	f.pub.reset()

	f.engine.handleRoomLeave(f.ctx, "bob", "trivia")

	if f.engine.phase != PhaseIdle {
		t.Errorf("phase = %s, want %s", f.engine.phase, PhaseIdle)
	}
	if f.engine.slots[timerWait] != nil {
		t.Error("wait timer still armed after drain")
	}
	stops := f.pub.ofType(events.TypeRoundStopped)
	if len(stops) != 1 {
		t.Fatalf("round_stopped events = %d, want 1", len(stops))
	}
	payload := decodePayload[events.RoundStoppedPayload](t, stops[0])
	if payload.Reason != "not enough players" {
		t.Errorf("reason = %q, want %q", payload.Reason, "not enough players")
	}
}

func TestStaleTimerFiringsIgnored(t *testing.T) {
	f := newFixture(t)
	f.ledger.addQuestion("What is 2+2?", "4", 10)
	f.startRound(t, "alice", "bob")

	// A wait firing for an old round during a question is a no-op.
	f.engine.handleTimerFired(f.ctx, timerWait, 0)
	if f.engine.phase != PhaseQuestion {
		t.Fatalf("stale wait firing changed phase to %s", f.engine.phase)
	}

	// A question deadline firing after a correct answer was recorded must
	// not resolve; the resolve delay owns the transition now.
	f.engine.handleSubmit(f.ctx, "alice", 1, "4")
	f.engine.handleTimerFired(f.ctx, timerQuestion, 1)
	if f.engine.phase != PhaseQuestion {
		t.Fatalf("question deadline resolved despite recorded winner, phase = %s", f.engine.phase)
	}
	if len(f.ledger.credits) != 0 {
		t.Errorf("credits before resolve delay: %v", f.ledger.credits)
	}
}

func TestReconnectWithinGraceKeepsStanding(t *testing.T) {
	f := newFixture(t)
	f.ledger.addQuestion("What is 2+2?", "4", 10)
	f.startRound(t, "alice", "bob")
	f.engine.handleSubmit(f.ctx, "alice", 1, "4")

	f.engine.handleDisconnect("alice", "alice-conn")
	staleGen := f.engine.graceGen["alice"]
	f.engine.handleJoin(f.ctx, "alice", "", "alice-conn-2")

	if _, pending := f.engine.grace["alice"]; pending {
		t.Error("grace timer still pending after reconnect")
	}
	f.engine.handleGraceElapsed(f.ctx, "alice", staleGen)
	if _, ok := f.engine.reg.Get("alice"); !ok {
		t.Fatal("alice removed despite reconnecting within grace")
	}
	if f.engine.cur.FirstCorrect != "alice" {
		t.Errorf("FirstCorrect = %q, want alice preserved across reconnect", f.engine.cur.FirstCorrect)
	}

	f.engine.handleTimerFired(f.ctx, timerResolve, 1)
	if diff := cmp.Diff([]credit{{Username: "alice", Amount: 10}}, f.ledger.credits); diff != "" {
		t.Errorf("credits mismatch (-want +got):\n%s", diff)
	}
}

func TestStaleDisconnectIgnoredAfterReconnect(t *testing.T) {
	f := newFixture(t)
	f.ledger.addUser("alice", 10)
	f.engine.handleJoin(f.ctx, "alice", "", "conn-1")
	f.engine.handleJoin(f.ctx, "alice", "", "conn-2")

	f.engine.handleDisconnect("alice", "conn-1")

	if _, pending := f.engine.grace["alice"]; pending {
		t.Error("stale connection id started a grace period")
	}
}

func TestGraceElapsedRemovesParticipant(t *testing.T) {
	f := newFixture(t)
	f.ledger.addUser("alice", 10)
	f.ledger.addUser("bob", 10)
	f.joinRoom("alice")
	f.joinRoom("bob")
	f.pub.reset()

	f.engine.handleDisconnect("bob", "bob-conn")
	f.engine.handleGraceElapsed(f.ctx, "bob", f.engine.graceGen["bob"])

	if _, ok := f.engine.reg.Get("bob"); ok {
		t.Fatal("bob still registered after grace expiry")
	}
	if f.engine.phase != PhaseIdle {
		t.Errorf("phase = %s, want %s after drain", f.engine.phase, PhaseIdle)
	}
	if len(f.pub.ofType(events.TypeRoundStopped)) != 1 {
		t.Error("expected round_stopped after grace removal drained the room")
	}
}
