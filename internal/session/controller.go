package session

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/ujicara/cbt-backend/internal/model"
)

// Phase is the state of the exam-session state machine. Exactly one phase
// holds at any instant.
type Phase string

const (
	PhaseInitializing       Phase = "INITIALIZING"
	PhaseAwaitingFullscreen Phase = "AWAITING_FULLSCREEN"
	PhaseRunning            Phase = "RUNNING"
	PhaseFinishing          Phase = "FINISHING"
	PhaseFinished           Phase = "FINISHED"

	// PhaseNoQuestions is the terminal "no content" state, distinct from a
	// normal FINISHED attempt. It is never scored.
	PhaseNoQuestions Phase = "NO_QUESTIONS"
)

// FinishReason records why the session left RUNNING. Set exactly once.
type FinishReason string

const (
	FinishReasonNone                FinishReason = ""
	FinishReasonUserConfirmed       FinishReason = "USER_CONFIRMED"
	FinishReasonTimeExpired         FinishReason = "TIME_EXPIRED"
	FinishReasonTabSwitchViolation  FinishReason = "TAB_SWITCH_VIOLATION"
	FinishReasonFullscreenViolation FinishReason = "FULLSCREEN_VIOLATION"
)

// Domain errors.
var (
	ErrNotRunning       = errors.New("session is not running")
	ErrOptionOutOfRange = errors.New("option index out of range")
)

// Config carries the proctoring policy. The grace windows and the violation
// threshold vary between deployments, so they are injected rather than
// hardcoded.
type Config struct {
	TabSwitchGrace          time.Duration
	FullscreenStartGrace    time.Duration
	FullscreenMaxViolations int
}

func (c Config) withDefaults() Config {
	if c.TabSwitchGrace <= 0 {
		c.TabSwitchGrace = 20 * time.Second
	}
	if c.FullscreenStartGrace <= 0 {
		c.FullscreenStartGrace = 5 * time.Second
	}
	if c.FullscreenMaxViolations <= 0 {
		c.FullscreenMaxViolations = 2
	}
	return c
}

// NotificationKind classifies controller-initiated events pushed to the
// presentation layer.
type NotificationKind string

const (
	NoteState        NotificationKind = "state"
	NoteWarning      NotificationKind = "warning"
	NoteFinished     NotificationKind = "finished"
	NoteSubmitFailed NotificationKind = "submit_failed"
)

// Notification is an unsolicited event from the controller, e.g. a forced
// finish on time expiry or a fullscreen strike warning.
type Notification struct {
	Kind     NotificationKind `json:"kind"`
	Message  string           `json:"message,omitempty"`
	Snapshot Snapshot         `json:"snapshot"`
}

// Snapshot is a read-only view of the session state for rendering. The
// presentation layer never mutates controller state directly.
type Snapshot struct {
	Phase            Phase          `json:"phase"`
	FinishReason     FinishReason   `json:"finish_reason,omitempty"`
	CurrentIndex     int            `json:"current_index"`
	TotalQuestions   int            `json:"total_questions"`
	RemainingSeconds int            `json:"remaining_seconds"`
	ViolationCount   int            `json:"violation_count"`
	AnsweredCount    int            `json:"answered_count"`
	Answers          map[string]int `json:"answers"`
	Muted            bool           `json:"muted"`
	FinishRequested  bool           `json:"finish_requested"`
	SubmitError      string         `json:"submit_error,omitempty"`

	// Result is the provisional client-facing score, present once the
	// attempt is FINISHED. The authoritative score is the persisted one.
	Result *Result `json:"result,omitempty"`
}

// Result is the provisional score computed at finish time.
type Result struct {
	CorrectCount    int  `json:"correct_count"`
	ScorePercentage int  `json:"score_percentage"`
	Passed          bool `json:"passed"`
}

// Options wires the controller's collaborators.
type Options struct {
	Config Config
	Store  AnswerStore
	Sink   ResultSink
	Log    zerolog.Logger

	// Notify receives controller-initiated events. Called without the
	// controller lock held; may be nil.
	Notify func(Notification)

	// RestoredOrder, when non-nil, fixes the question order instead of
	// shuffling. Used to resume a shuffled session after a reload so the
	// permutation stays stable for the whole attempt.
	RestoredOrder []string

	// Rand seeds the shuffle permutation. Defaults to a time-seeded source.
	Rand *rand.Rand
}

// Controller drives one exam attempt from initialization through submission,
// enforcing the time limit and the integrity rules. All event entry points
// take an explicit timestamp so tests can drive the machine with synthetic
// time instead of wall-clock waits.
//
// Events are serialized by the controller mutex: each handler runs to
// completion before the next is applied, so Phase is never observed in an
// inconsistent intermediate state. The one suspension point — handing the
// submission to the ResultSink — runs with the lock released, guarded by an
// in-flight flag.
type Controller struct {
	mu sync.Mutex

	cfg      Config
	settings model.ExamSettings

	participantID int
	questions     []model.Question
	startedAt     time.Time

	phase        Phase
	finishReason FinishReason

	current        int
	answers        map[string]int
	violationCount int
	muted          bool

	finishRequested bool

	// runningSince anchors the fullscreen start-grace window.
	runningSince time.Time
	// hiddenSince is non-nil while the content is reported hidden.
	hiddenSince *time.Time

	finishedAt time.Time

	submitting    bool
	lastSubmitErr error

	store  AnswerStore
	sink   ResultSink
	log    zerolog.Logger
	notify func(Notification)
}

// NewController initializes a session for one participant. startedAt is the
// server-issued attempt start timestamp, not the client's clock: the
// remaining time is always computed as duration minus wall-clock elapsed
// since startedAt, which makes the countdown resilient to reloads and to
// browser timer throttling.
//
// Previously persisted answers are restored from the store before the
// session enters RUNNING.
func NewController(ctx context.Context, participantID int, questions []model.Question, settings model.ExamSettings, startedAt time.Time, opts Options) (*Controller, error) {
	c := &Controller{
		cfg:           opts.Config.withDefaults(),
		settings:      settings,
		participantID: participantID,
		startedAt:     startedAt,
		phase:         PhaseInitializing,
		answers:       make(map[string]int),
		store:         opts.Store,
		sink:          opts.Sink,
		log:           opts.Log.With().Str("component", "session_controller").Int("participant_id", participantID).Logger(),
		notify:        opts.Notify,
	}

	c.questions = orderQuestions(questions, settings.ShuffleQuestions, opts.RestoredOrder, opts.Rand)

	if len(c.questions) == 0 {
		c.phase = PhaseNoQuestions
		return c, nil
	}

	if c.store != nil {
		restored, err := c.store.Load(ctx, participantID)
		if err != nil {
			return nil, err
		}
		for qid, opt := range restored {
			if opt >= 0 && opt < model.OptionCount {
				c.answers[qid] = opt
			}
		}
	}

	if settings.DetectIntegrityViolations {
		// Fullscreen requires an explicit user gesture; the session waits
		// for the client to report entry (or that the API is unsupported).
		c.phase = PhaseAwaitingFullscreen
	} else {
		c.phase = PhaseRunning
		c.runningSince = startedAt
	}

	return c, nil
}

// orderQuestions fixes the session question order: a restored permutation
// wins, otherwise a one-time Fisher–Yates shuffle when enabled.
func orderQuestions(questions []model.Question, shuffle bool, restored []string, rng *rand.Rand) []model.Question {
	ordered := make([]model.Question, len(questions))
	copy(ordered, questions)

	if len(restored) > 0 {
		byID := make(map[string]model.Question, len(questions))
		for _, q := range questions {
			byID[q.ID.String()] = q
		}
		out := make([]model.Question, 0, len(questions))
		for _, id := range restored {
			if q, ok := byID[id]; ok {
				out = append(out, q)
				delete(byID, id)
			}
		}
		// Questions added after the order was cached go to the end.
		for _, q := range ordered {
			if _, ok := byID[q.ID.String()]; ok {
				out = append(out, q)
			}
		}
		return out
	}

	if shuffle {
		if rng == nil {
			rng = rand.New(rand.NewSource(time.Now().UnixNano()))
		}
		rng.Shuffle(len(ordered), func(i, j int) {
			ordered[i], ordered[j] = ordered[j], ordered[i]
		})
	}
	return ordered
}

// QuestionOrder returns the fixed session order of question IDs.
func (c *Controller) QuestionOrder() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	order := make([]string, len(c.questions))
	for i, q := range c.questions {
		order[i] = q.ID.String()
	}
	return order
}

// ─── Timer and proctoring events ────────────────────────────────────

// Tick advances the machine against wall-clock time. Delivered once per
// second by the session manager while the session is live; remaining time is
// recomputed from the start timestamp on every call, never accumulated.
func (c *Controller) Tick(ctx context.Context, now time.Time) {
	c.mu.Lock()
	fired := c.advanceLocked(now)
	c.mu.Unlock()

	if fired {
		c.submit(ctx)
	}
}

// advanceLocked applies time-driven transitions. Returns true when a finish
// transition fired and a submission attempt is due.
func (c *Controller) advanceLocked(now time.Time) bool {
	switch c.phase {
	case PhaseRunning:
		if c.remainingLocked(now) <= 0 {
			c.beginFinishLocked(FinishReasonTimeExpired, now)
			return true
		}
		if c.hiddenSince != nil && now.Sub(*c.hiddenSince) >= c.cfg.TabSwitchGrace {
			c.beginFinishLocked(FinishReasonTabSwitchViolation, now)
			return true
		}
	case PhaseAwaitingFullscreen:
		// The clock runs from the server-issued start even before the
		// participant enters fullscreen.
		if c.remainingLocked(now) <= 0 {
			c.beginFinishLocked(FinishReasonTimeExpired, now)
			return true
		}
	}
	return false
}

// ContentHidden handles a visibility-change event reporting the tab was
// hidden or backgrounded. Starts the grace window; the violation is only
// finalized if the content stays hidden past it.
func (c *Controller) ContentHidden(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != PhaseRunning || !c.settings.DetectIntegrityViolations {
		return
	}
	if c.hiddenSince == nil {
		t := now
		c.hiddenSince = &t
	}
}

// ContentVisible handles the content becoming visible again. If the grace
// window already elapsed while hidden the finish still fires; otherwise the
// pending violation is cancelled silently.
func (c *Controller) ContentVisible(ctx context.Context, now time.Time) {
	c.mu.Lock()
	if c.phase != PhaseRunning || c.hiddenSince == nil {
		c.hiddenSince = nil
		c.mu.Unlock()
		return
	}
	elapsed := now.Sub(*c.hiddenSince)
	c.hiddenSince = nil
	fired := false
	if elapsed >= c.cfg.TabSwitchGrace {
		c.beginFinishLocked(FinishReasonTabSwitchViolation, now)
		fired = true
	}
	c.mu.Unlock()

	if fired {
		c.submit(ctx)
	}
}

// FullscreenEntered confirms the participant entered fullscreen, moving
// AWAITING_FULLSCREEN → RUNNING.
func (c *Controller) FullscreenEntered(now time.Time) {
	c.mu.Lock()
	if c.phase != PhaseAwaitingFullscreen {
		c.mu.Unlock()
		return
	}
	c.phase = PhaseRunning
	c.runningSince = now
	snap := c.snapshotLocked(now)
	c.mu.Unlock()

	c.emit(Notification{Kind: NoteState, Snapshot: snap})
}

// FullscreenUnsupported degrades gracefully when the client cannot enter
// fullscreen (API unsupported or permission denied): the exam proceeds in
// RUNNING instead of blocking indefinitely.
func (c *Controller) FullscreenUnsupported(now time.Time) {
	c.mu.Lock()
	if c.phase != PhaseAwaitingFullscreen {
		c.mu.Unlock()
		return
	}
	c.phase = PhaseRunning
	c.runningSince = now
	snap := c.snapshotLocked(now)
	c.mu.Unlock()

	c.log.Warn().Msg("fullscreen unavailable, continuing without it")
	c.emit(Notification{Kind: NoteState, Message: "fullscreen unavailable", Snapshot: snap})
}

// FullscreenExited handles a fullscreen-exit event. Exits inside the start
// grace window are ignored; afterwards each exit counts as a violation, and
// reaching the configured threshold forces the finish.
func (c *Controller) FullscreenExited(ctx context.Context, now time.Time) {
	c.mu.Lock()
	if c.phase != PhaseRunning || !c.settings.DetectIntegrityViolations {
		c.mu.Unlock()
		return
	}
	if now.Sub(c.runningSince) <= c.cfg.FullscreenStartGrace {
		c.mu.Unlock()
		return
	}

	c.violationCount++
	if c.violationCount >= c.cfg.FullscreenMaxViolations {
		c.beginFinishLocked(FinishReasonFullscreenViolation, now)
		c.mu.Unlock()
		c.submit(ctx)
		return
	}
	snap := c.snapshotLocked(now)
	count := c.violationCount
	c.mu.Unlock()

	c.log.Warn().Int("violation_count", count).Msg("fullscreen exited")
	c.emit(Notification{Kind: NoteWarning, Message: "fullscreen exited, return to fullscreen to continue", Snapshot: snap})
}

// ─── User intents ───────────────────────────────────────────────────

// SelectAnswer records the participant's choice for a question. Valid only
// while RUNNING; idempotent when the same option is already selected. The
// persisted copy is written through synchronously with the in-memory update.
func (c *Controller) SelectAnswer(ctx context.Context, questionID string, optionIndex int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != PhaseRunning {
		return ErrNotRunning
	}
	if optionIndex < 0 || optionIndex >= model.OptionCount {
		return ErrOptionOutOfRange
	}
	if !c.hasQuestionLocked(questionID) {
		return ErrOptionOutOfRange
	}
	if prev, ok := c.answers[questionID]; ok && prev == optionIndex {
		return nil
	}

	c.answers[questionID] = optionIndex
	if c.store != nil {
		if err := c.store.Save(ctx, c.participantID, questionID, optionIndex); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) hasQuestionLocked(questionID string) bool {
	for _, q := range c.questions {
		if q.ID.String() == questionID {
			return true
		}
	}
	return false
}

// GoToQuestion moves the cursor to the given index, clamped at the bounds.
// Tolerated as a no-op in terminal phases.
func (c *Controller) GoToQuestion(index int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.questions) == 0 {
		return
	}
	if index < 0 {
		index = 0
	}
	if index > len(c.questions)-1 {
		index = len(c.questions) - 1
	}
	c.current = index
}

// Next advances to the following question; no-op past the last one.
func (c *Controller) Next() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current < len(c.questions)-1 {
		c.current++
	}
}

// Previous moves to the preceding question; no-op before the first one.
func (c *Controller) Previous() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current > 0 {
		c.current--
	}
}

// RequestFinish flags that the participant asked to finish, so the
// presentation layer can show a confirmation dialog. No state-machine side
// effects: CancelFinishRequest undoes it completely.
func (c *Controller) RequestFinish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == PhaseRunning {
		c.finishRequested = true
	}
}

// CancelFinishRequest dismisses the pending finish confirmation.
func (c *Controller) CancelFinishRequest() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finishRequested = false
}

// ConfirmFinish applies the user-confirmed finish transition and hands the
// submission to the ResultSink. While FINISHING it retries the submission;
// after FINISHED it is a no-op, so duplicate confirmations never produce a
// second submission.
func (c *Controller) ConfirmFinish(ctx context.Context, now time.Time) {
	c.mu.Lock()
	switch c.phase {
	case PhaseRunning:
		c.beginFinishLocked(FinishReasonUserConfirmed, now)
	case PhaseFinishing:
		// Retry path after a sink failure.
	default:
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.submit(ctx)
}

// ToggleMute flips the alert-sound mute flag. Purely cosmetic.
func (c *Controller) ToggleMute() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.muted = !c.muted
	return c.muted
}

// ─── Finalization ───────────────────────────────────────────────────

// beginFinishLocked performs the RUNNING → FINISHING transition: the finish
// reason is set exactly once and proctoring is disarmed so no later tick or
// browser event can mutate the session.
func (c *Controller) beginFinishLocked(reason FinishReason, now time.Time) {
	if c.phase != PhaseRunning && c.phase != PhaseAwaitingFullscreen {
		return
	}
	c.phase = PhaseFinishing
	c.finishReason = reason
	c.finishedAt = now
	c.finishRequested = false
	c.hiddenSince = nil
	c.log.Info().Str("reason", string(reason)).Msg("session finishing")
}

// submit hands the final payload to the ResultSink. Runs outside the
// controller lock; the submitting flag keeps at most one attempt in flight.
// On sink failure the session stays in FINISHING and the error is surfaced
// as retryable.
func (c *Controller) submit(ctx context.Context) {
	c.mu.Lock()
	if c.phase != PhaseFinishing || c.submitting {
		c.mu.Unlock()
		return
	}
	c.submitting = true
	sub := c.buildSubmissionLocked()
	c.mu.Unlock()

	err := c.sink.Submit(ctx, sub)

	c.mu.Lock()
	c.submitting = false
	if err != nil {
		c.lastSubmitErr = err
		snap := c.snapshotLocked(c.finishedAt)
		c.mu.Unlock()

		c.log.Error().Err(err).Msg("submission failed, session stays retryable")
		c.emit(Notification{Kind: NoteSubmitFailed, Message: err.Error(), Snapshot: snap})
		return
	}

	c.lastSubmitErr = nil
	c.phase = PhaseFinished
	snap := c.snapshotLocked(c.finishedAt)
	participantID := c.participantID
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.Clear(ctx, participantID); err != nil {
			c.log.Warn().Err(err).Msg("failed to clear persisted answers")
		}
	}
	c.log.Info().Str("reason", string(snap.FinishReason)).Int("score", sub.ScorePercentage).Msg("session finished")
	c.emit(Notification{Kind: NoteFinished, Snapshot: snap})
}

// buildSubmissionLocked assembles the final payload: one entry per session
// question, with the -1 sentinel for unanswered ones, plus the provisional
// score.
func (c *Controller) buildSubmissionLocked() Submission {
	answers := make([]SubmittedAnswer, len(c.questions))
	for i, q := range c.questions {
		opt := model.UnansweredOption
		if sel, ok := c.answers[q.ID.String()]; ok {
			opt = sel
		}
		answers[i] = SubmittedAnswer{QuestionID: q.ID, OptionIndex: opt}
	}

	correct, pct, passed := c.scoreLocked()
	return Submission{
		ParticipantID:   c.participantID,
		Answers:         answers,
		FinishReason:    c.finishReason,
		CorrectCount:    correct,
		ScorePercentage: pct,
		Passed:          passed,
		FinishedAt:      c.finishedAt,
	}
}

func (c *Controller) scoreLocked() (correct, percentage int, passed bool) {
	for _, q := range c.questions {
		if sel, ok := c.answers[q.ID.String()]; ok && sel == q.CorrectOption {
			correct++
		}
	}
	if len(c.questions) > 0 {
		percentage = int(math.Round(100 * float64(correct) / float64(len(c.questions))))
	}
	passed = percentage >= c.settings.PassingGradePercentage
	return correct, percentage, passed
}

// ─── Read side ──────────────────────────────────────────────────────

// Phase returns the current phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Terminal reports whether the session reached a terminal phase.
func (c *Controller) Terminal() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase == PhaseFinished || c.phase == PhaseNoQuestions
}

// Snapshot returns a rendering view of the session at the given instant.
func (c *Controller) Snapshot(now time.Time) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked(now)
}

func (c *Controller) snapshotLocked(now time.Time) Snapshot {
	answers := make(map[string]int, len(c.answers))
	for k, v := range c.answers {
		answers[k] = v
	}

	snap := Snapshot{
		Phase:            c.phase,
		FinishReason:     c.finishReason,
		CurrentIndex:     c.current,
		TotalQuestions:   len(c.questions),
		RemainingSeconds: c.remainingLocked(now),
		ViolationCount:   c.violationCount,
		AnsweredCount:    len(c.answers),
		Answers:          answers,
		Muted:            c.muted,
		FinishRequested:  c.finishRequested,
	}
	if c.lastSubmitErr != nil {
		snap.SubmitError = c.lastSubmitErr.Error()
	}
	if c.phase == PhaseFinished {
		correct, pct, passed := c.scoreLocked()
		snap.Result = &Result{CorrectCount: correct, ScorePercentage: pct, Passed: passed}
	}
	return snap
}

// remainingLocked computes the time budget left from wall-clock elapsed
// since the server-issued start. Never negative, never increasing.
func (c *Controller) remainingLocked(now time.Time) int {
	elapsed := int(now.Sub(c.startedAt) / time.Second)
	remaining := c.settings.DurationSeconds - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (c *Controller) emit(n Notification) {
	if c.notify != nil {
		c.notify(n)
	}
}
