package exam

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ulms/core"
)

func newTestExam(n, timeLimit, passing int) Exam {
	qs := make([]Question, 0, n)
	for i := 1; i <= n; i++ {
		qs = append(qs, Question{
			ID:      i,
			Context: "question",
			Choices: []string{"a", "b", "c", "d"},
			Answer:  0,
			ExamID:  1,
		})
	}
	return Exam{
		ID:               1,
		CourseID:         1,
		CourseName:       "Algorithms",
		Title:            "Midterm",
		Questions:        qs,
		TimeLimitMinutes: timeLimit,
		PassingScore:     passing,
	}
}

func startedSession(t *testing.T, e Exam, opts ...SessionOption) (*Session, *clock.Mock) {
	mock := clock.NewMock()
	opts = append([]SessionOption{WithClock(mock)}, opts...)
	s := NewSession(e, opts...)
	require.NoError(t, s.Start())
	t.Cleanup(s.Close)
	return s, mock
}

func TestSession_Start(t *testing.T) {
	s := NewSession(newTestExam(3, 10, 60), WithClock(clock.NewMock()))
	assert.Equal(t, StateLoading, s.State())
	assert.Equal(t, 600, s.TimeRemaining())

	require.NoError(t, s.Start())
	defer s.Close()
	assert.Equal(t, StateActive, s.State())
	assert.Equal(t, ErrSessionStarted, s.Start())

	empty := NewSession(Exam{ID: 2, Title: "empty"})
	assert.Equal(t, ErrNoQuestions, empty.Start())
	assert.Equal(t, StateLoading, empty.State())
}

func TestSession_SelectAnswer(t *testing.T) {
	s, _ := startedSession(t, newTestExam(3, 0, 60))

	tests := []struct {
		name    string
		choice  int
		want    map[int]int
		wantErr bool
	}{
		{name: "select", choice: 2, want: map[int]int{1: 2}},
		{name: "overwrite", choice: 1, want: map[int]int{1: 1}},
		{name: "idempotent re-selection", choice: 1, want: map[int]int{1: 1}},
		{name: "negative choice", choice: -1, want: map[int]int{1: 1}, wantErr: true},
		{name: "choice out of range", choice: 4, want: map[int]int{1: 1}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.SelectAnswer(tt.choice)
			if tt.wantErr {
				assert.True(t, core.IsValidationError(err), "SelectAnswer() error = %v", err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, s.Answers())
		})
	}
}

func TestSession_Navigation(t *testing.T) {
	s, _ := startedSession(t, newTestExam(3, 0, 60))

	assert.False(t, s.Previous(), "Previous() at the first question")
	assert.Equal(t, 0, s.CurrentIndex())

	assert.True(t, s.Next())
	assert.True(t, s.Next())
	assert.False(t, s.Next(), "Next() past the last question")
	assert.Equal(t, 2, s.CurrentIndex())

	require.NoError(t, s.SelectAnswer(3))
	assert.Equal(t, map[int]int{3: 3}, s.Answers())

	assert.True(t, s.Previous())
	assert.Equal(t, 1, s.CurrentIndex())

	assert.NoError(t, s.GoTo(0))
	assert.Equal(t, 0, s.CurrentIndex())
	assert.True(t, core.IsValidationError(s.GoTo(3)))
	assert.Equal(t, 0, s.CurrentIndex())
}

func TestSession_Submit(t *testing.T) {
	var hookCalls int
	s, _ := startedSession(t, newTestExam(5, 30, 60), OnSubmit(func(Result) { hookCalls++ }))

	// q1:0, q2:0, q3:1, q4:0, q5 unanswered
	for _, choice := range []int{0, 0, 1, 0} {
		require.NoError(t, s.SelectAnswer(choice))
		s.Next()
	}

	res, ok := s.Submit()
	require.True(t, ok)
	assert.Equal(t, StateSubmitted, s.State())
	assert.Equal(t, 3, res.Score)
	assert.Equal(t, 5, res.TotalQuestions)
	assert.Equal(t, 60, res.Percentage)
	assert.True(t, res.Passed)
	assert.False(t, res.AutoSubmitted)
	assert.Equal(t, Unanswered, res.Answers[4].SelectedChoice)
	assert.Equal(t, 1, hookCalls)

	// terminal state is sticky
	again, ok := s.Submit()
	assert.False(t, ok)
	assert.Equal(t, res, again)
	assert.Equal(t, 1, hookCalls)

	assert.NoError(t, s.SelectAnswer(3))
	assert.False(t, s.Next())
	assert.False(t, s.Previous())
	assert.Equal(t, map[int]int{1: 0, 2: 0, 3: 1, 4: 0}, s.Answers())
	assert.Equal(t, StateSubmitted, s.State())
}

func TestSession_tick(t *testing.T) {
	var results []Result
	s := NewSession(newTestExam(2, 1, 60), WithClock(clock.NewMock()), OnSubmit(func(r Result) { results = append(results, r) }))
	// drive the countdown by hand; the background timer is never started
	s.state = StateActive

	require.NoError(t, s.SelectAnswer(0))
	for i := 59; i >= 1; i-- {
		require.True(t, s.tick())
		require.Equal(t, i, s.TimeRemaining())
	}
	assert.Equal(t, StateActive, s.State())

	assert.False(t, s.tick(), "last tick must stop the timer")
	assert.Equal(t, 0, s.TimeRemaining())
	assert.Equal(t, StateSubmitted, s.State())
	require.Len(t, results, 1)
	assert.True(t, results[0].AutoSubmitted)
	assert.Equal(t, 1, results[0].Score)

	// no further ticks after the deadline
	assert.False(t, s.tick())
	assert.Equal(t, 0, s.TimeRemaining())
	assert.Len(t, results, 1)
}

func TestSession_timerAutoSubmit(t *testing.T) {
	var mu sync.Mutex
	var submitted []Result
	s, mock := startedSession(t, newTestExam(2, 1, 60), OnSubmit(func(r Result) {
		mu.Lock()
		submitted = append(submitted, r)
		mu.Unlock()
	}))

	for want := 59; want >= 0; want-- {
		mock.Add(time.Second)
		want := want
		require.Eventually(t, func() bool { return s.TimeRemaining() == want }, time.Second, time.Millisecond)
	}
	require.Eventually(t, func() bool { return s.State() == StateSubmitted }, time.Second, time.Millisecond)

	mock.Add(5 * time.Second)
	assert.Equal(t, 0, s.TimeRemaining())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, submitted, 1)
	assert.True(t, submitted[0].AutoSubmitted)
	assert.Equal(t, time.Minute, submitted[0].TimeSpent)
}

func TestSession_untimed(t *testing.T) {
	s, mock := startedSession(t, newTestExam(2, 0, 60))
	mock.Add(time.Hour)
	assert.Equal(t, StateActive, s.State())
	assert.False(t, s.Snapshot().Timed)
}

func TestSession_Close(t *testing.T) {
	s, mock := startedSession(t, newTestExam(2, 1, 60))
	s.Close()
	mock.Add(2 * time.Minute)
	assert.Equal(t, StateActive, s.State(), "closing must never submit")
	assert.Equal(t, 60, s.TimeRemaining())
}

func TestSession_Snapshot(t *testing.T) {
	s, _ := startedSession(t, newTestExam(4, 4, 60))
	require.NoError(t, s.SelectAnswer(2))
	s.Next()

	snap := s.Snapshot()
	assert.Equal(t, StateActive, snap.State)
	assert.Equal(t, 1, snap.CurrentIndex)
	assert.Equal(t, 4, snap.TotalQuestions)
	require.NotNil(t, snap.Question)
	assert.Equal(t, 2, snap.Question.ID)
	assert.Equal(t, Unanswered, snap.SelectedChoice)
	assert.Equal(t, 1, snap.Answered)
	assert.Equal(t, 25, snap.AnsweredPercentage)
	assert.Equal(t, "4:00", snap.TimeFormatted)
	assert.True(t, snap.TimeRunningLow)
	assert.False(t, snap.TimeCritical)

	s.Previous()
	assert.Equal(t, 2, s.Snapshot().SelectedChoice)
}

func TestSession_CheckComplete(t *testing.T) {
	s, _ := startedSession(t, newTestExam(2, 0, 60))
	assert.True(t, core.IsValidationError(s.CheckComplete()))

	require.NoError(t, s.SelectAnswer(1))
	s.Next()
	assert.True(t, core.IsValidationError(s.CheckComplete()))

	require.NoError(t, s.SelectAnswer(0))
	assert.NoError(t, s.CheckComplete())
}

func TestState_text(t *testing.T) {
	for _, st := range []State{StateLoading, StateActive, StateSubmitted} {
		text, err := st.MarshalText()
		require.NoError(t, err)

		var got State
		require.NoError(t, got.UnmarshalText(text))
		assert.Equal(t, st, got)
	}

	var st State
	assert.EqualError(t, st.UnmarshalText([]byte("paused")), `unknown exam state "paused"`)
}
