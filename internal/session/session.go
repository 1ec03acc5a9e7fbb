package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-quiz/internal/grading"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

type State string

const (
	StateLoading    State = "loading"
	StateAbsent     State = "absent" // lesson has no quiz; terminal
	StatePresenting State = "presenting"
	StateSubmitting State = "submitting"
	StateReviewing  State = "reviewing"
	StateRetaking   State = "retaking"
	StateExhausted  State = "exhausted" // terminal
)

type Trigger string

const (
	TriggerManual Trigger = "manual"
	TriggerExpiry Trigger = "expiry"
)

var (
	ErrAlreadyLoaded     = errors.New("session already loaded")
	ErrClosed            = errors.New("session closed")
	ErrNotPresenting     = errors.New("session is not presenting questions")
	ErrAlreadySubmitted  = errors.New("attempt already submitted")
	ErrSubmitNotAllowed  = errors.New("submit is only allowed from the last question")
	ErrNotReviewing      = errors.New("session is not in review")
	ErrRetakeNotAllowed  = errors.New("retake not allowed after a passing attempt")
	ErrAttemptsExhausted = errors.New("no attempts remaining")
	ErrUnknownQuestion   = errors.New("unknown question")
	ErrUnknownOption     = errors.New("unknown answer option")
)

// PersistWarning is shown when the ledger write failed. The verdict is
// still valid; it may just not be recorded.
const PersistWarning = "Your result could not be saved. It is shown here but may not appear in your history."

// SubmitResult is what a submission produced. PersistErr is non-nil when
// the ledger write failed; the verdict stands either way.
type SubmitResult struct {
	Trigger    Trigger            `json:"trigger"`
	Verdict    quiz.Verdict       `json:"verdict"`
	Record     quiz.AttemptRecord `json:"record"`
	PersistErr error              `json:"-"`
}

type Option func(*config)

type config struct {
	ticker       Ticker
	now          func() time.Time
	newID        func() string
	logger       *log.Logger
	policy       SubmitPolicy
	retries      int
	backoff      time.Duration
	writeTimeout time.Duration
	onTransition func(from, to State)
	onSubmitted  func(SubmitResult)
}

func WithTicker(t Ticker) Option              { return func(c *config) { c.ticker = t } }
func WithClock(now func() time.Time) Option   { return func(c *config) { c.now = now } }
func WithIDGenerator(f func() string) Option  { return func(c *config) { c.newID = f } }
func WithLogger(l *log.Logger) Option         { return func(c *config) { c.logger = l } }
func WithSubmitPolicy(p SubmitPolicy) Option  { return func(c *config) { c.policy = p } }
func WithWriteTimeout(d time.Duration) Option { return func(c *config) { c.writeTimeout = d } }
func WithTransitionHook(f func(from, to State)) Option {
	return func(c *config) { c.onTransition = f }
}

// WithSubmittedHook is called after every submission once the ledger
// write has finished, including timer-driven ones.
func WithSubmittedHook(f func(SubmitResult)) Option { return func(c *config) { c.onSubmitted = f } }

// WithLedgerRetry retries a failed append up to n more times, waiting
// backoff*i before retry i.
func WithLedgerRetry(n int, backoff time.Duration) Option {
	return func(c *config) {
		c.retries = n
		c.backoff = backoff
	}
}

// Session is one learner working through one quiz. All exported methods
// are safe for concurrent use; each runs to completion under the session
// lock, which gives the same ordering guarantees as a single event loop.
type Session struct {
	mu     sync.Mutex
	bank   quiz.QuestionBank
	ledger quiz.Ledger
	cfg    config

	learnerID string
	lessonID  string
	quiz      quiz.Quiz
	questions []quiz.Question
	governor  Governor

	state     State
	nav       *Navigator
	countdown *Countdown
	stopTick  func()
	epoch     int // bumps on every timer start; stale ticks are dropped

	submitted bool // one-way latch per attempt
	attempt   int
	verdict   *quiz.Verdict
	record    *quiz.AttemptRecord
	canRetake bool
	pending   bool // ledger write in flight
	warning   string

	loadErr    error
	lastActive time.Time
	closed     bool
}

func New(bank quiz.QuestionBank, ledger quiz.Ledger, learnerID string, opts ...Option) *Session {
	cfg := config{
		ticker:       WallTicker{Period: time.Second},
		now:          time.Now,
		newID:        uuid.NewString,
		logger:       log.Default(),
		policy:       SubmitOnLastQuestion,
		retries:      2,
		backoff:      250 * time.Millisecond,
		writeTimeout: 10 * time.Second,
	}
	for _, o := range opts {
		o(&cfg)
	}
	return &Session{
		bank:       bank,
		ledger:     ledger,
		cfg:        cfg,
		learnerID:  learnerID,
		state:      StateLoading,
		lastActive: cfg.now(),
	}
}

// Load fetches the quiz for lessonID and starts the first attempt. A
// lesson without a quiz moves the session to StateAbsent and returns nil.
// Any other failure leaves the session in StateLoading so Load can be
// retried.
func (s *Session) Load(ctx context.Context, lessonID string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.state != StateLoading {
		s.mu.Unlock()
		return ErrAlreadyLoaded
	}
	s.lessonID = lessonID
	s.mu.Unlock()

	q, questions, prior, err := s.fetch(ctx, lessonID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.state != StateLoading {
		return ErrAlreadyLoaded
	}
	if errors.Is(err, quiz.ErrNotFound) {
		s.loadErr = nil
		s.transition(StateAbsent)
		return nil
	}
	if err != nil {
		s.loadErr = err
		s.cfg.logger.Printf("[SESSION] load lesson=%s learner=%s: %v", lessonID, s.learnerID, err)
		return err
	}

	s.loadErr = nil
	s.quiz = q
	s.questions = questions
	s.nav = NewNavigator(questions)
	s.governor = Governor{MaxAttempts: q.MaxAttempts}
	if total, ok := q.TimeLimitSeconds(); ok {
		s.countdown = NewCountdown(total)
	}
	if !s.governor.CanStart(prior) {
		s.attempt = prior
		s.transition(StateExhausted)
		return nil
	}
	s.attempt = NextAttempt(prior)
	s.startPresenting()
	return nil
}

func (s *Session) fetch(ctx context.Context, lessonID string) (quiz.Quiz, []quiz.Question, int, error) {
	q, err := s.bank.FetchQuiz(ctx, lessonID)
	if err != nil {
		if errors.Is(err, quiz.ErrNotFound) {
			return quiz.Quiz{}, nil, 0, err
		}
		return quiz.Quiz{}, nil, 0, fmt.Errorf("fetch quiz: %w", err)
	}
	questions, err := s.bank.FetchQuestions(ctx, q.ID)
	if errors.Is(err, quiz.ErrNotFound) {
		// the quiz row exists, so a missing question set is a fetch failure
		return quiz.Quiz{}, nil, 0, fmt.Errorf("fetch questions: no question set for quiz %s", q.ID)
	}
	if err != nil {
		return quiz.Quiz{}, nil, 0, fmt.Errorf("fetch questions: %w", err)
	}
	quiz.SortQuestions(questions)
	if err := quiz.Validate(q, questions); err != nil {
		return quiz.Quiz{}, nil, 0, err
	}
	prior, err := s.ledger.MaxAttemptNumber(ctx, q.ID, s.learnerID)
	if err != nil {
		return quiz.Quiz{}, nil, 0, fmt.Errorf("read attempt history: %w", err)
	}
	return q, questions, prior, nil
}

// SelectAnswer records the learner's choice for a question.
func (s *Session) SelectAnswer(questionID, optionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.presenting(); err != nil {
		return err
	}
	return s.nav.Select(questionID, optionID)
}

// GoNext is a no-op on the last question.
func (s *Session) GoNext() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.presenting(); err != nil {
		return err
	}
	s.nav.Advance()
	return nil
}

// GoPrevious is a no-op on the first question.
func (s *Session) GoPrevious() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.presenting(); err != nil {
		return err
	}
	s.nav.Retreat()
	return nil
}

func (s *Session) presenting() error {
	s.lastActive = s.cfg.now()
	if s.closed {
		return ErrClosed
	}
	if s.state != StatePresenting {
		return ErrNotPresenting
	}
	return nil
}

// Submit ends the attempt on the learner's request. A second call, or a
// call after the timer already submitted, returns ErrAlreadySubmitted and
// writes nothing.
func (s *Session) Submit(ctx context.Context) (SubmitResult, error) {
	s.mu.Lock()
	s.lastActive = s.cfg.now()
	switch {
	case s.closed:
		s.mu.Unlock()
		return SubmitResult{}, ErrClosed
	case s.submitted:
		s.mu.Unlock()
		return SubmitResult{}, ErrAlreadySubmitted
	case s.state != StatePresenting:
		s.mu.Unlock()
		return SubmitResult{}, ErrNotPresenting
	case !s.nav.CanSubmit(s.cfg.policy):
		s.mu.Unlock()
		return SubmitResult{}, ErrSubmitNotAllowed
	}
	res, err := s.beginSubmit(TriggerManual)
	s.mu.Unlock()
	if err != nil {
		return SubmitResult{}, err
	}
	res.PersistErr = s.persist(ctx, res.Record)
	s.notifySubmitted(res)
	return res, nil
}

// beginSubmit flips the latch, scores and moves to review. Must hold s.mu.
func (s *Session) beginSubmit(trigger Trigger) (SubmitResult, error) {
	if s.submitted {
		return SubmitResult{}, ErrAlreadySubmitted
	}
	s.submitted = true
	s.transition(StateSubmitting)
	s.stopTimer()

	v, err := grading.Score(s.questions, s.nav.Selections(), s.quiz.PassingThreshold())
	if err != nil {
		// Validate at load makes this unreachable; stay in Submitting so
		// nothing half-scored is shown.
		s.cfg.logger.Printf("[SESSION] score quiz=%s learner=%s: %v", s.quiz.ID, s.learnerID, err)
		return SubmitResult{}, err
	}

	var elapsed *int
	if s.countdown != nil {
		e := s.countdown.Elapsed()
		elapsed = &e
	}
	rec := quiz.AttemptRecord{
		ID:             s.cfg.newID(),
		QuizID:         s.quiz.ID,
		LearnerID:      s.learnerID,
		AttemptNumber:  s.attempt,
		CompletedAt:    s.cfg.now().UTC(),
		ScorePercent:   v.Percent,
		Passed:         v.Passed,
		Review:         v.Items,
		ElapsedSeconds: elapsed,
	}
	s.verdict = &v
	s.record = &rec
	s.pending = true
	s.warning = ""
	s.canRetake = s.governor.CanRetake(v.Passed, s.attempt)

	s.transition(StateReviewing)
	if !v.Passed && !s.canRetake {
		s.transition(StateExhausted)
	}
	s.cfg.logger.Printf("[SESSION] submitted quiz=%s learner=%s attempt=%d trigger=%s score=%d passed=%t",
		s.quiz.ID, s.learnerID, s.attempt, trigger, v.Percent, v.Passed)
	return SubmitResult{Trigger: trigger, Verdict: v, Record: rec}, nil
}

// persist appends rec to the ledger with bounded retries. It runs without
// the session lock so the learner sees the verdict immediately.
func (s *Session) persist(ctx context.Context, rec quiz.AttemptRecord) error {
	var err error
retry:
	for try := 0; try <= s.cfg.retries; try++ {
		if try > 0 {
			select {
			case <-ctx.Done():
				err = errors.Join(err, ctx.Err())
				break retry
			case <-time.After(time.Duration(try) * s.cfg.backoff):
			}
		}
		err = s.ledger.AppendAttempt(ctx, rec)
		if err == nil || errors.Is(err, quiz.ErrDuplicateAttempt) {
			break
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.record != nil && s.record.ID == rec.ID
	if current {
		s.pending = false
	}
	if err != nil {
		s.cfg.logger.Printf("[SESSION] ledger append quiz=%s learner=%s attempt=%d: %v",
			rec.QuizID, rec.LearnerID, rec.AttemptNumber, err)
		if current {
			s.warning = PersistWarning
		}
		return fmt.Errorf("record attempt %d: %w", rec.AttemptNumber, err)
	}
	return nil
}

func (s *Session) notifySubmitted(res SubmitResult) {
	if s.cfg.onSubmitted != nil {
		s.cfg.onSubmitted(res)
	}
}

// Retake starts a new attempt after a failed one, if the cap allows.
func (s *Session) Retake() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = s.cfg.now()
	if s.closed {
		return ErrClosed
	}
	switch s.state {
	case StateExhausted:
		return ErrAttemptsExhausted
	case StateReviewing:
	default:
		return ErrNotReviewing
	}
	if s.verdict != nil && s.verdict.Passed {
		return ErrRetakeNotAllowed
	}
	if !s.canRetake {
		s.transition(StateExhausted)
		return ErrAttemptsExhausted
	}

	s.transition(StateRetaking)
	s.nav.Reset()
	s.submitted = false
	s.verdict = nil
	s.record = nil
	s.canRetake = false
	s.pending = false
	s.warning = ""
	s.attempt = NextAttempt(s.attempt)
	s.startPresenting()
	return nil
}

// startPresenting resets the countdown and starts a fresh ticker. Must
// hold s.mu.
func (s *Session) startPresenting() {
	s.transition(StatePresenting)
	if s.countdown == nil {
		return
	}
	s.countdown.Reset()
	s.countdown.Start()
	s.epoch++
	epoch := s.epoch
	s.stopTick = s.cfg.ticker.Start(func() { s.tick(epoch) })
}

func (s *Session) stopTimer() {
	if s.countdown != nil {
		s.countdown.Stop()
	}
	if s.stopTick != nil {
		s.stopTick()
		s.stopTick = nil
	}
}

// tick is the timer callback. Ticks from an earlier attempt or arriving
// after submission are dropped.
func (s *Session) tick(epoch int) {
	s.mu.Lock()
	if s.closed || epoch != s.epoch || s.submitted || s.state != StatePresenting || s.countdown == nil {
		s.mu.Unlock()
		return
	}
	if !s.countdown.Tick() {
		s.mu.Unlock()
		return
	}
	s.cfg.logger.Printf("[SESSION] time expired quiz=%s learner=%s attempt=%d", s.quiz.ID, s.learnerID, s.attempt)
	res, err := s.beginSubmit(TriggerExpiry)
	s.mu.Unlock()
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.writeTimeout)
	defer cancel()
	res.PersistErr = s.persist(ctx, res.Record)
	s.notifySubmitted(res)
}

// Close stops the timer; no ticks are processed afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.stopTimer()
	s.epoch++
}

func (s *Session) transition(to State) {
	from := s.state
	if from == to {
		return
	}
	s.state = to
	if s.cfg.onTransition != nil {
		s.cfg.onTransition(from, to)
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) LearnerID() string { return s.learnerID }

func (s *Session) LessonID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lessonID
}

// LoadErr is the last load failure, shown as a recoverable notice.
func (s *Session) LoadErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadErr
}

func (s *Session) timedAndPresenting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StatePresenting && s.countdown != nil
}

// IdleSince reports the last learner interaction.
func (s *Session) IdleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}
