package session

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/ujicara/cbt-backend/internal/model"
)

// fakeStore is an in-memory AnswerStore recording every call.
type fakeStore struct {
	mu       sync.Mutex
	answers  map[string]int
	saves    int
	clears   int
	loadErr  error
	saveErr  error
	restored map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{answers: make(map[string]int)}
}

func (s *fakeStore) Load(ctx context.Context, participantID int) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	out := make(map[string]int, len(s.restored))
	for k, v := range s.restored {
		out[k] = v
	}
	return out, nil
}

func (s *fakeStore) Save(ctx context.Context, participantID int, questionID string, optionIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.answers[questionID] = optionIndex
	return nil
}

func (s *fakeStore) Clear(ctx context.Context, participantID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clears++
	s.answers = make(map[string]int)
	return nil
}

// fakeSink records submissions and can fail the first N attempts.
type fakeSink struct {
	mu       sync.Mutex
	failures int
	calls    int
	subs     []Submission
}

func (s *fakeSink) Submit(ctx context.Context, sub Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failures > 0 {
		s.failures--
		return errors.New("sink unavailable")
	}
	s.subs = append(s.subs, sub)
	return nil
}

func (s *fakeSink) submissions() []Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Submission, len(s.subs))
	copy(out, s.subs)
	return out
}

func makeQuestions(n int) []model.Question {
	questions := make([]model.Question, n)
	for i := range questions {
		questions[i] = model.Question{
			ID:            uuid.New(),
			Prompt:        "question",
			Options:       [4]string{"a", "b", "c", "d"},
			CorrectOption: i % model.OptionCount,
			Position:      i + 1,
		}
	}
	return questions
}

func testSettings() model.ExamSettings {
	return model.ExamSettings{
		ExamName:                  "Test Exam",
		DurationSeconds:           120,
		PassingGradePercentage:    70,
		DetectIntegrityViolations: true,
	}
}

type fixture struct {
	ctrl  *Controller
	store *fakeStore
	sink  *fakeSink
	notes []Notification
	start time.Time
}

func newFixture(t *testing.T, questions []model.Question, settings model.ExamSettings, cfg Config) *fixture {
	t.Helper()

	f := &fixture{
		store: newFakeStore(),
		sink:  &fakeSink{},
		start: time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC),
	}

	ctrl, err := NewController(context.Background(), 7, questions, settings, f.start, Options{
		Config: cfg,
		Store:  f.store,
		Sink:   f.sink,
		Log:    zerolog.Nop(),
		Notify: func(n Notification) { f.notes = append(f.notes, n) },
	})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	f.ctrl = ctrl
	return f
}

// running builds a controller already in RUNNING (fullscreen confirmed).
func running(t *testing.T, questions []model.Question, settings model.ExamSettings, cfg Config) *fixture {
	t.Helper()
	f := newFixture(t, questions, settings, cfg)
	if settings.DetectIntegrityViolations {
		f.ctrl.FullscreenEntered(f.start)
	}
	if got := f.ctrl.Phase(); got != PhaseRunning {
		t.Fatalf("expected RUNNING, got %s", got)
	}
	return f
}

func (f *fixture) at(seconds int) time.Time {
	return f.start.Add(time.Duration(seconds) * time.Second)
}

// ─── Initialization ─────────────────────────────────────────────────

func TestNewControllerAwaitsFullscreen(t *testing.T) {
	f := newFixture(t, makeQuestions(3), testSettings(), Config{})
	if got := f.ctrl.Phase(); got != PhaseAwaitingFullscreen {
		t.Fatalf("expected AWAITING_FULLSCREEN, got %s", got)
	}
}

func TestNewControllerSkipsFullscreenWhenDetectionOff(t *testing.T) {
	settings := testSettings()
	settings.DetectIntegrityViolations = false

	f := newFixture(t, makeQuestions(3), settings, Config{})
	if got := f.ctrl.Phase(); got != PhaseRunning {
		t.Fatalf("expected RUNNING, got %s", got)
	}
}

func TestNewControllerEmptyQuestions(t *testing.T) {
	f := newFixture(t, nil, testSettings(), Config{})
	if got := f.ctrl.Phase(); got != PhaseNoQuestions {
		t.Fatalf("expected NO_QUESTIONS, got %s", got)
	}
	if !f.ctrl.Terminal() {
		t.Fatal("NO_QUESTIONS must be terminal")
	}
}

func TestNewControllerRestoresAnswers(t *testing.T) {
	questions := makeQuestions(3)
	store := newFakeStore()
	store.restored = map[string]int{
		questions[0].ID.String(): 2,
		questions[1].ID.String(): 9, // out of range, must be dropped
	}

	ctrl, err := NewController(context.Background(), 7, questions, testSettings(), time.Now(), Options{
		Store: store,
		Sink:  &fakeSink{},
		Log:   zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}

	snap := ctrl.Snapshot(time.Now())
	if snap.AnsweredCount != 1 {
		t.Fatalf("expected 1 restored answer, got %d", snap.AnsweredCount)
	}
	if snap.Answers[questions[0].ID.String()] != 2 {
		t.Fatalf("restored answer lost: %v", snap.Answers)
	}
}

func TestQuestionOrderShuffleAndRestore(t *testing.T) {
	questions := makeQuestions(10)
	settings := testSettings()
	settings.ShuffleQuestions = true

	first, err := NewController(context.Background(), 7, questions, settings, time.Now(), Options{
		Sink: &fakeSink{},
		Log:  zerolog.Nop(),
		Rand: rand.New(rand.NewSource(42)),
	})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	order := first.QuestionOrder()
	if len(order) != len(questions) {
		t.Fatalf("order length %d, want %d", len(order), len(questions))
	}

	// A rebuilt controller with the cached order must keep the permutation.
	second, err := NewController(context.Background(), 7, questions, settings, time.Now(), Options{
		Sink:          &fakeSink{},
		Log:           zerolog.Nop(),
		RestoredOrder: order,
	})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	restored := second.QuestionOrder()
	for i := range order {
		if restored[i] != order[i] {
			t.Fatalf("order diverged at %d: %s != %s", i, restored[i], order[i])
		}
	}
}

// ─── Timer ──────────────────────────────────────────────────────────

func TestRemainingTimeDerivedFromStart(t *testing.T) {
	f := running(t, makeQuestions(3), testSettings(), Config{})

	if got := f.ctrl.Snapshot(f.at(0)).RemainingSeconds; got != 120 {
		t.Fatalf("at start: remaining %d, want 120", got)
	}
	if got := f.ctrl.Snapshot(f.at(50)).RemainingSeconds; got != 70 {
		t.Fatalf("after 50s: remaining %d, want 70", got)
	}
	// Remaining never goes negative.
	if got := f.ctrl.Snapshot(f.at(500)).RemainingSeconds; got != 0 {
		t.Fatalf("past expiry: remaining %d, want 0", got)
	}
}

func TestTickExpiresSession(t *testing.T) {
	f := running(t, makeQuestions(3), testSettings(), Config{})
	ctx := context.Background()

	f.ctrl.Tick(ctx, f.at(119))
	if got := f.ctrl.Phase(); got != PhaseRunning {
		t.Fatalf("before expiry: phase %s, want RUNNING", got)
	}

	f.ctrl.Tick(ctx, f.at(120))
	if got := f.ctrl.Phase(); got != PhaseFinished {
		t.Fatalf("after expiry: phase %s, want FINISHED", got)
	}

	subs := f.sink.submissions()
	if len(subs) != 1 {
		t.Fatalf("expected 1 submission, got %d", len(subs))
	}
	if subs[0].FinishReason != FinishReasonTimeExpired {
		t.Fatalf("finish reason %s, want TIME_EXPIRED", subs[0].FinishReason)
	}
}

func TestTimeExpiresWhileAwaitingFullscreen(t *testing.T) {
	f := newFixture(t, makeQuestions(3), testSettings(), Config{})

	f.ctrl.Tick(context.Background(), f.at(120))
	if got := f.ctrl.Phase(); got != PhaseFinished {
		t.Fatalf("phase %s, want FINISHED", got)
	}
	subs := f.sink.submissions()
	if len(subs) != 1 || subs[0].FinishReason != FinishReasonTimeExpired {
		t.Fatalf("expected one TIME_EXPIRED submission, got %+v", subs)
	}
}

// ─── Tab-switch proctoring ──────────────────────────────────────────

func TestTabSwitchReturnWithinGrace(t *testing.T) {
	cfg := Config{TabSwitchGrace: 20 * time.Second}
	f := running(t, makeQuestions(3), testSettings(), cfg)
	ctx := context.Background()

	f.ctrl.ContentHidden(f.at(10))
	f.ctrl.Tick(ctx, f.at(15))
	f.ctrl.ContentVisible(ctx, f.at(25)) // hidden 15s < 20s grace

	if got := f.ctrl.Phase(); got != PhaseRunning {
		t.Fatalf("phase %s, want RUNNING", got)
	}
	if len(f.sink.submissions()) != 0 {
		t.Fatal("no submission expected")
	}
}

func TestTabSwitchGraceExpiresOnTick(t *testing.T) {
	cfg := Config{TabSwitchGrace: 20 * time.Second}
	f := running(t, makeQuestions(3), testSettings(), cfg)
	ctx := context.Background()

	f.ctrl.ContentHidden(f.at(10))
	f.ctrl.Tick(ctx, f.at(30)) // hidden for exactly the grace window

	if got := f.ctrl.Phase(); got != PhaseFinished {
		t.Fatalf("phase %s, want FINISHED", got)
	}
	subs := f.sink.submissions()
	if len(subs) != 1 || subs[0].FinishReason != FinishReasonTabSwitchViolation {
		t.Fatalf("expected one TAB_SWITCH_VIOLATION submission, got %+v", subs)
	}
}

func TestTabSwitchGraceExpiredBeforeReturn(t *testing.T) {
	// The client was hidden past the grace and no tick fired in between
	// (timers throttled): the return event itself must finalize.
	cfg := Config{TabSwitchGrace: 20 * time.Second}
	f := running(t, makeQuestions(3), testSettings(), cfg)

	f.ctrl.ContentHidden(f.at(10))
	f.ctrl.ContentVisible(context.Background(), f.at(45))

	if got := f.ctrl.Phase(); got != PhaseFinished {
		t.Fatalf("phase %s, want FINISHED", got)
	}
	if subs := f.sink.submissions(); len(subs) != 1 || subs[0].FinishReason != FinishReasonTabSwitchViolation {
		t.Fatalf("expected one TAB_SWITCH_VIOLATION submission, got %+v", subs)
	}
}

func TestRepeatedHiddenKeepsFirstTimestamp(t *testing.T) {
	cfg := Config{TabSwitchGrace: 20 * time.Second}
	f := running(t, makeQuestions(3), testSettings(), cfg)
	ctx := context.Background()

	f.ctrl.ContentHidden(f.at(10))
	f.ctrl.ContentHidden(f.at(25)) // duplicate event must not reset the window

	f.ctrl.Tick(ctx, f.at(30))
	if got := f.ctrl.Phase(); got != PhaseFinished {
		t.Fatalf("phase %s, want FINISHED", got)
	}
}

func TestTabSwitchIgnoredWhenDetectionOff(t *testing.T) {
	settings := testSettings()
	settings.DetectIntegrityViolations = false
	cfg := Config{TabSwitchGrace: 20 * time.Second}
	f := running(t, makeQuestions(3), settings, cfg)

	f.ctrl.ContentHidden(f.at(10))
	f.ctrl.Tick(context.Background(), f.at(60))

	if got := f.ctrl.Phase(); got != PhaseRunning {
		t.Fatalf("phase %s, want RUNNING", got)
	}
}

// ─── Fullscreen proctoring ──────────────────────────────────────────

func TestFullscreenExitWithinStartGraceIgnored(t *testing.T) {
	cfg := Config{FullscreenStartGrace: 5 * time.Second, FullscreenMaxViolations: 2}
	f := running(t, makeQuestions(3), testSettings(), cfg)

	f.ctrl.FullscreenExited(context.Background(), f.at(3))

	snap := f.ctrl.Snapshot(f.at(4))
	if snap.ViolationCount != 0 {
		t.Fatalf("violation count %d, want 0", snap.ViolationCount)
	}
	if snap.Phase != PhaseRunning {
		t.Fatalf("phase %s, want RUNNING", snap.Phase)
	}
}

func TestFullscreenViolationThreshold(t *testing.T) {
	cfg := Config{FullscreenStartGrace: 5 * time.Second, FullscreenMaxViolations: 2}
	f := running(t, makeQuestions(3), testSettings(), cfg)
	ctx := context.Background()

	// First strike: warning, still running.
	f.ctrl.FullscreenExited(ctx, f.at(10))
	snap := f.ctrl.Snapshot(f.at(11))
	if snap.ViolationCount != 1 || snap.Phase != PhaseRunning {
		t.Fatalf("after first exit: count=%d phase=%s", snap.ViolationCount, snap.Phase)
	}

	warned := false
	for _, n := range f.notes {
		if n.Kind == NoteWarning {
			warned = true
		}
	}
	if !warned {
		t.Fatal("expected a warning notification after the first exit")
	}

	f.ctrl.FullscreenEntered(f.at(12)) // no-op, already RUNNING

	// Second strike: forced finish.
	f.ctrl.FullscreenExited(ctx, f.at(20))
	if got := f.ctrl.Phase(); got != PhaseFinished {
		t.Fatalf("after second exit: phase %s, want FINISHED", got)
	}
	subs := f.sink.submissions()
	if len(subs) != 1 || subs[0].FinishReason != FinishReasonFullscreenViolation {
		t.Fatalf("expected one FULLSCREEN_VIOLATION submission, got %+v", subs)
	}
}

func TestFullscreenUnsupportedDegrades(t *testing.T) {
	f := newFixture(t, makeQuestions(3), testSettings(), Config{})

	f.ctrl.FullscreenUnsupported(f.at(2))
	if got := f.ctrl.Phase(); got != PhaseRunning {
		t.Fatalf("phase %s, want RUNNING", got)
	}
}

// ─── Answering and navigation ───────────────────────────────────────

func TestSelectAnswer(t *testing.T) {
	questions := makeQuestions(3)
	f := running(t, questions, testSettings(), Config{})
	ctx := context.Background()
	qid := questions[0].ID.String()

	if err := f.ctrl.SelectAnswer(ctx, qid, 1); err != nil {
		t.Fatalf("SelectAnswer: %v", err)
	}
	// Same option again: idempotent, no second write.
	if err := f.ctrl.SelectAnswer(ctx, qid, 1); err != nil {
		t.Fatalf("SelectAnswer repeat: %v", err)
	}
	if f.store.saves != 1 {
		t.Fatalf("store saves %d, want 1", f.store.saves)
	}
	// New option overwrites.
	if err := f.ctrl.SelectAnswer(ctx, qid, 3); err != nil {
		t.Fatalf("SelectAnswer overwrite: %v", err)
	}
	if f.store.answers[qid] != 3 {
		t.Fatalf("persisted answer %d, want 3", f.store.answers[qid])
	}

	snap := f.ctrl.Snapshot(f.at(1))
	if snap.AnsweredCount != 1 || snap.Answers[qid] != 3 {
		t.Fatalf("snapshot answers wrong: %+v", snap.Answers)
	}
}

func TestSelectAnswerValidation(t *testing.T) {
	questions := makeQuestions(3)
	f := running(t, questions, testSettings(), Config{})
	ctx := context.Background()

	if err := f.ctrl.SelectAnswer(ctx, questions[0].ID.String(), 4); !errors.Is(err, ErrOptionOutOfRange) {
		t.Fatalf("option 4: err %v, want ErrOptionOutOfRange", err)
	}
	if err := f.ctrl.SelectAnswer(ctx, questions[0].ID.String(), -1); !errors.Is(err, ErrOptionOutOfRange) {
		t.Fatalf("option -1: err %v, want ErrOptionOutOfRange", err)
	}
	if err := f.ctrl.SelectAnswer(ctx, uuid.NewString(), 0); !errors.Is(err, ErrOptionOutOfRange) {
		t.Fatalf("unknown question: err %v, want ErrOptionOutOfRange", err)
	}
}

func TestSelectAnswerRejectedOutsideRunning(t *testing.T) {
	questions := makeQuestions(3)
	f := newFixture(t, questions, testSettings(), Config{})

	err := f.ctrl.SelectAnswer(context.Background(), questions[0].ID.String(), 0)
	if !errors.Is(err, ErrNotRunning) {
		t.Fatalf("awaiting fullscreen: err %v, want ErrNotRunning", err)
	}
}

func TestNavigationClampsBounds(t *testing.T) {
	f := running(t, makeQuestions(3), testSettings(), Config{})

	f.ctrl.Previous() // at 0 already
	if got := f.ctrl.Snapshot(f.at(1)).CurrentIndex; got != 0 {
		t.Fatalf("index %d, want 0", got)
	}

	f.ctrl.GoToQuestion(99)
	if got := f.ctrl.Snapshot(f.at(1)).CurrentIndex; got != 2 {
		t.Fatalf("index %d, want 2 (clamped)", got)
	}

	f.ctrl.Next() // at last already
	if got := f.ctrl.Snapshot(f.at(1)).CurrentIndex; got != 2 {
		t.Fatalf("index %d, want 2", got)
	}

	f.ctrl.GoToQuestion(-5)
	if got := f.ctrl.Snapshot(f.at(1)).CurrentIndex; got != 0 {
		t.Fatalf("index %d, want 0 (clamped)", got)
	}
}

// ─── Finishing and submission ───────────────────────────────────────

func TestFinishRequestAndCancel(t *testing.T) {
	f := running(t, makeQuestions(3), testSettings(), Config{})

	f.ctrl.RequestFinish()
	if !f.ctrl.Snapshot(f.at(1)).FinishRequested {
		t.Fatal("finish request not recorded")
	}

	f.ctrl.CancelFinishRequest()
	snap := f.ctrl.Snapshot(f.at(2))
	if snap.FinishRequested || snap.Phase != PhaseRunning {
		t.Fatalf("cancel did not restore state: %+v", snap)
	}
	if len(f.sink.submissions()) != 0 {
		t.Fatal("request/cancel must not submit")
	}
}

func TestConfirmFinishSubmitsOnce(t *testing.T) {
	questions := makeQuestions(4)
	f := running(t, questions, testSettings(), Config{})
	ctx := context.Background()

	_ = f.ctrl.SelectAnswer(ctx, questions[0].ID.String(), questions[0].CorrectOption)
	_ = f.ctrl.SelectAnswer(ctx, questions[1].ID.String(), 3)

	f.ctrl.ConfirmFinish(ctx, f.at(60))
	f.ctrl.ConfirmFinish(ctx, f.at(61)) // duplicate confirm

	if got := f.ctrl.Phase(); got != PhaseFinished {
		t.Fatalf("phase %s, want FINISHED", got)
	}
	subs := f.sink.submissions()
	if len(subs) != 1 {
		t.Fatalf("expected exactly 1 submission, got %d", len(subs))
	}

	sub := subs[0]
	if sub.FinishReason != FinishReasonUserConfirmed {
		t.Fatalf("finish reason %s, want USER_CONFIRMED", sub.FinishReason)
	}
	if len(sub.Answers) != len(questions) {
		t.Fatalf("submission has %d entries, want %d", len(sub.Answers), len(questions))
	}
	unanswered := 0
	for _, a := range sub.Answers {
		if a.OptionIndex == model.UnansweredOption {
			unanswered++
		}
	}
	if unanswered != 2 {
		t.Fatalf("unanswered sentinel count %d, want 2", unanswered)
	}
	if sub.FinishedAt != f.at(60) {
		t.Fatalf("finished at %v, want %v", sub.FinishedAt, f.at(60))
	}

	if f.store.clears != 1 {
		t.Fatalf("store clears %d, want 1", f.store.clears)
	}
}

func TestSubmissionRetryAfterSinkFailure(t *testing.T) {
	f := running(t, makeQuestions(3), testSettings(), Config{})
	f.sink.failures = 1
	ctx := context.Background()

	f.ctrl.ConfirmFinish(ctx, f.at(60))
	if got := f.ctrl.Phase(); got != PhaseFinishing {
		t.Fatalf("after failed submit: phase %s, want FINISHING", got)
	}
	snap := f.ctrl.Snapshot(f.at(61))
	if snap.SubmitError == "" {
		t.Fatal("submit error not surfaced in snapshot")
	}

	failNoted := false
	for _, n := range f.notes {
		if n.Kind == NoteSubmitFailed {
			failNoted = true
		}
	}
	if !failNoted {
		t.Fatal("expected a submit_failed notification")
	}

	// Retry succeeds.
	f.ctrl.ConfirmFinish(ctx, f.at(70))
	if got := f.ctrl.Phase(); got != PhaseFinished {
		t.Fatalf("after retry: phase %s, want FINISHED", got)
	}
	if f.sink.calls != 2 || len(f.sink.submissions()) != 1 {
		t.Fatalf("sink calls=%d successes=%d, want 2/1", f.sink.calls, len(f.sink.submissions()))
	}

	// The payload still carries the original finish timestamp and reason.
	sub := f.sink.submissions()[0]
	if sub.FinishReason != FinishReasonUserConfirmed || sub.FinishedAt != f.at(60) {
		t.Fatalf("retry mutated the payload: %+v", sub)
	}
}

func TestFinishReasonSetOnce(t *testing.T) {
	f := running(t, makeQuestions(3), testSettings(), Config{})
	f.sink.failures = 1
	ctx := context.Background()

	f.ctrl.ConfirmFinish(ctx, f.at(60)) // fails, stays FINISHING

	// Later events must not override the recorded reason.
	f.ctrl.Tick(ctx, f.at(130)) // past expiry
	f.ctrl.FullscreenExited(ctx, f.at(131))

	if got := f.ctrl.Snapshot(f.at(132)).FinishReason; got != FinishReasonUserConfirmed {
		t.Fatalf("finish reason %s, want USER_CONFIRMED", got)
	}
}

func TestScoring(t *testing.T) {
	questions := makeQuestions(4) // correct options 0,1,2,3
	settings := testSettings()
	settings.PassingGradePercentage = 75
	f := running(t, questions, settings, Config{})
	ctx := context.Background()

	_ = f.ctrl.SelectAnswer(ctx, questions[0].ID.String(), 0) // correct
	_ = f.ctrl.SelectAnswer(ctx, questions[1].ID.String(), 1) // correct
	_ = f.ctrl.SelectAnswer(ctx, questions[2].ID.String(), 0) // wrong

	f.ctrl.ConfirmFinish(ctx, f.at(60))

	sub := f.sink.submissions()[0]
	if sub.CorrectCount != 2 {
		t.Fatalf("correct count %d, want 2", sub.CorrectCount)
	}
	if sub.ScorePercentage != 50 {
		t.Fatalf("score %d, want 50", sub.ScorePercentage)
	}
	if sub.Passed {
		t.Fatal("50%% must not pass a 75%% threshold")
	}

	snap := f.ctrl.Snapshot(f.at(61))
	if snap.Result == nil {
		t.Fatal("finished snapshot must carry the provisional result")
	}
	if snap.Result.CorrectCount != 2 || snap.Result.ScorePercentage != 50 || snap.Result.Passed {
		t.Fatalf("provisional result %+v, want 2 correct, 50%%, not passed", snap.Result)
	}
}

func TestProctoringDisarmedAfterFinish(t *testing.T) {
	f := running(t, makeQuestions(3), testSettings(), Config{})
	ctx := context.Background()

	f.ctrl.ConfirmFinish(ctx, f.at(60))
	if got := f.ctrl.Phase(); got != PhaseFinished {
		t.Fatalf("phase %s, want FINISHED", got)
	}

	before := f.ctrl.Snapshot(f.at(61))
	f.ctrl.ContentHidden(f.at(62))
	f.ctrl.FullscreenExited(ctx, f.at(63))
	f.ctrl.Tick(ctx, f.at(200))
	after := f.ctrl.Snapshot(f.at(201))

	if after.Phase != before.Phase || after.ViolationCount != before.ViolationCount || after.FinishReason != before.FinishReason {
		t.Fatalf("terminal state mutated: before=%+v after=%+v", before, after)
	}
	if len(f.sink.submissions()) != 1 {
		t.Fatal("no extra submissions expected after FINISHED")
	}
}

// ─── Full scenario ──────────────────────────────────────────────────

func TestFullSessionScenario(t *testing.T) {
	questions := makeQuestions(3)
	cfg := Config{
		TabSwitchGrace:          20 * time.Second,
		FullscreenStartGrace:    5 * time.Second,
		FullscreenMaxViolations: 2,
	}
	f := newFixture(t, questions, testSettings(), cfg)
	ctx := context.Background()

	// Enter fullscreen, answer two questions.
	f.ctrl.FullscreenEntered(f.at(2))
	_ = f.ctrl.SelectAnswer(ctx, questions[0].ID.String(), questions[0].CorrectOption)
	f.ctrl.Next()
	_ = f.ctrl.SelectAnswer(ctx, questions[1].ID.String(), questions[1].CorrectOption)

	// Brief tab switch, returns within grace.
	f.ctrl.ContentHidden(f.at(30))
	f.ctrl.ContentVisible(ctx, f.at(40))

	// One fullscreen strike.
	f.ctrl.FullscreenExited(ctx, f.at(50))
	f.ctrl.FullscreenEntered(f.at(52))

	// Ticks pass, session stays live.
	for s := 55; s < 90; s++ {
		f.ctrl.Tick(ctx, f.at(s))
	}
	snap := f.ctrl.Snapshot(f.at(90))
	if snap.Phase != PhaseRunning || snap.ViolationCount != 1 || snap.AnsweredCount != 2 {
		t.Fatalf("mid-session state wrong: %+v", snap)
	}

	// Finish flow with an accidental request first.
	f.ctrl.RequestFinish()
	f.ctrl.CancelFinishRequest()
	f.ctrl.RequestFinish()
	f.ctrl.ConfirmFinish(ctx, f.at(100))

	if got := f.ctrl.Phase(); got != PhaseFinished {
		t.Fatalf("phase %s, want FINISHED", got)
	}
	sub := f.sink.submissions()[0]
	if sub.CorrectCount != 2 || len(sub.Answers) != 3 {
		t.Fatalf("submission wrong: %+v", sub)
	}
	if sub.Answers[2].OptionIndex != model.UnansweredOption {
		t.Fatalf("third answer %d, want unanswered sentinel", sub.Answers[2].OptionIndex)
	}

	finished := false
	for _, n := range f.notes {
		if n.Kind == NoteFinished {
			finished = true
		}
	}
	if !finished {
		t.Fatal("expected a finished notification")
	}
}
