package exam

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"github.com/trezcool/ulms/core"
)

type State int

const (
	StateLoading State = iota
	StateActive
	StateSubmitted
)

var stateNames = map[State]string{
	StateLoading:   "loading",
	StateActive:    "active",
	StateSubmitted: "submitted",
}

func (s State) String() string { return stateNames[s] }

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(text []byte) error {
	for st, name := range stateNames {
		if name == string(text) {
			*s = st
			return nil
		}
	}
	return errors.Errorf("unknown exam state %q", text)
}

type (
	// Snapshot is a read-only view of a Session, safe to hand to the presentation layer.
	Snapshot struct {
		ExamID             int             `json:"examId"`
		Title              string          `json:"title"`
		CourseName         string          `json:"courseName"`
		State              State           `json:"state"`
		CurrentIndex       int             `json:"currentIndex"`
		TotalQuestions     int             `json:"totalQuestions"`
		Question           *PublicQuestion `json:"question,omitempty"`
		SelectedChoice     int             `json:"selectedChoice"`
		Answers            map[int]int     `json:"answers"`
		Answered           int             `json:"answered"`
		AnsweredPercentage int             `json:"answeredPercentage"`
		Timed              bool            `json:"timed"`
		TimeRemaining      int             `json:"timeRemaining"`
		TimeFormatted      string          `json:"timeFormatted"`
		TimeRunningLow     bool            `json:"timeRunningLow"`
		TimeCritical       bool            `json:"timeCritical"`
	}

	SessionOption func(*Session)

	// Session is the timed question-flow state machine of one exam attempt.
	// Nothing outside of it can alter the countdown, the answers or the navigation.
	Session struct {
		mu        sync.Mutex
		exam      Exam
		state     State
		index     int
		answers   map[int]int
		remaining int
		startedAt time.Time
		result    Result

		clock    clock.Clock
		stopTick chan struct{}
		tickWG   sync.WaitGroup
		onSubmit []func(Result)
	}
)

func WithClock(c clock.Clock) SessionOption {
	return func(s *Session) { s.clock = c }
}

// OnSubmit registers a hook run once, right after the session reaches its terminal state.
func OnSubmit(fn func(Result)) SessionOption {
	return func(s *Session) { s.onSubmit = append(s.onSubmit, fn) }
}

func NewSession(e Exam, opts ...SessionOption) *Session {
	s := &Session{
		exam:      e,
		state:     StateLoading,
		answers:   make(map[int]int, len(e.Questions)),
		remaining: MinutesToSeconds(e.TimeLimitMinutes),
		clock:     clock.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) Exam() Exam { return s.exam }

// Start moves the session from loading to active and starts the countdown for timed exams.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateLoading {
		return ErrSessionStarted
	}
	if len(s.exam.Questions) == 0 {
		return ErrNoQuestions
	}
	s.state = StateActive
	s.startedAt = s.clock.Now()

	if s.exam.Timed() {
		s.stopTick = make(chan struct{})
		ticker := s.clock.Ticker(time.Second)
		s.tickWG.Add(1)
		go s.runTimer(ticker, s.stopTick)
	}
	return nil
}

func (s *Session) runTimer(ticker *clock.Ticker, done <-chan struct{}) {
	defer s.tickWG.Done()
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if !s.tick() {
				return
			}
		}
	}
}

// tick decrements the countdown and submits on reaching zero. It reports whether the timer should keep running.
func (s *Session) tick() bool {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return false
	}
	if s.remaining > 1 {
		s.remaining--
		s.mu.Unlock()
		return true
	}
	s.remaining = 0
	res, hooks := s.submitLocked(true)
	s.mu.Unlock()

	runHooks(hooks, res)
	return false
}

// SelectAnswer records choice for the current question, overwriting any previous selection.
func (s *Session) SelectAnswer(choice int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return nil
	}
	q := s.exam.Questions[s.index]
	if choice < 0 || choice >= len(q.Choices) {
		return core.NewValidationError(
			ErrInvalidChoice,
			core.FieldError{Field: "choice", Error: ErrInvalidChoice.Error()},
		)
	}
	s.answers[q.ID] = choice
	return nil
}

// Next reports whether the current question changed.
func (s *Session) Next() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive || s.index >= len(s.exam.Questions)-1 {
		return false
	}
	s.index++
	return true
}

// Previous reports whether the current question changed.
func (s *Session) Previous() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive || s.index == 0 {
		return false
	}
	s.index--
	return true
}

func (s *Session) GoTo(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return nil
	}
	if index < 0 || index >= len(s.exam.Questions) {
		return core.NewValidationError(
			ErrInvalidIndex,
			core.FieldError{Field: "index", Error: ErrInvalidIndex.Error()},
		)
	}
	s.index = index
	return nil
}

// Submit ends the attempt. Only the first call has an effect; the second return value reports whether it was this one.
func (s *Session) Submit() (Result, bool) {
	s.mu.Lock()
	if s.state != StateActive {
		res := s.result
		s.mu.Unlock()
		return res, false
	}
	res, hooks := s.submitLocked(false)
	s.mu.Unlock()

	runHooks(hooks, res)
	return res, true
}

func (s *Session) submitLocked(auto bool) (Result, []func(Result)) {
	s.state = StateSubmitted
	if s.stopTick != nil {
		close(s.stopTick)
		s.stopTick = nil
	}

	now := s.clock.Now()
	res := CalculateResult(s.exam.Questions, s.answers, s.exam.Passing())
	res.ExamID = s.exam.ID
	res.SubmittedAt = now
	res.TimeSpent = now.Sub(s.startedAt)
	res.AutoSubmitted = auto
	s.result = res

	hooks := s.onSubmit
	s.onSubmit = nil
	return res, hooks
}

func runHooks(hooks []func(Result), res Result) {
	for _, fn := range hooks {
		fn(res)
	}
}

// Close stops the countdown without submitting, e.g. when the student leaves the exam.
func (s *Session) Close() {
	s.mu.Lock()
	if s.stopTick != nil {
		close(s.stopTick)
		s.stopTick = nil
	}
	s.mu.Unlock()
	s.tickWG.Wait()
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) TimeRemaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}

func (s *Session) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

// Answers returns a copy of the questionID -> choice mapping.
func (s *Session) Answers() map[int]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyAnswers()
}

func (s *Session) copyAnswers() map[int]int {
	answers := make(map[int]int, len(s.answers))
	for k, v := range s.answers {
		answers[k] = v
	}
	return answers
}

// Result is only available once submitted.
func (s *Session) Result() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.state == StateSubmitted
}

// CheckComplete returns a validation error listing how many questions are still unanswered.
func (s *Session) CheckComplete() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ValidateSubmission(s.exam.ID, s.answers, len(s.exam.Questions))
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := len(s.exam.Questions)
	snap := Snapshot{
		ExamID:         s.exam.ID,
		Title:          s.exam.Title,
		CourseName:     s.exam.CourseName,
		State:          s.state,
		CurrentIndex:   s.index,
		TotalQuestions: total,
		SelectedChoice: Unanswered,
		Answers:        s.copyAnswers(),
		Answered:       len(s.answers),
		Timed:          s.exam.Timed(),
		TimeRemaining:  s.remaining,
		TimeFormatted:  FormatTime(s.remaining),
	}
	if total > 0 {
		q := s.exam.Questions[s.index]
		pq := q.Public()
		snap.Question = &pq
		if choice, ok := s.answers[q.ID]; ok {
			snap.SelectedChoice = choice
		}
		snap.AnsweredPercentage = Percentage(snap.Answered, total)
	}
	if snap.Timed && s.state == StateActive {
		snap.TimeRunningLow = IsTimeRunningLow(s.remaining)
		snap.TimeCritical = IsTimeCritical(s.remaining)
	}
	return snap
}

// ValidateSubmission checks that an attempt answers every question of a known exam.
func ValidateSubmission(examID int, answers map[int]int, totalQuestions int) error {
	var msg string
	switch {
	case examID <= 0:
		msg = "exam ID is required"
	case len(answers) == 0:
		msg = "no answers provided"
	case len(answers) != totalQuestions:
		msg = "not all questions have been answered"
	default:
		return nil
	}
	return core.NewValidationError(errors.New(msg), core.FieldError{Field: "answers", Error: msg})
}
