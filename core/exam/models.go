package exam

import (
	"time"
)

// Unanswered marks a question the student never answered.
const Unanswered = -1

// DefaultPassingScore applies when an exam does not set its own threshold.
const DefaultPassingScore = 60

type (
	Question struct {
		ID          int      `json:"id" yaml:"id" validate:"gt=0"`
		Context     string   `json:"context" yaml:"context" validate:"notblank"`
		Choices     []string `json:"choices" yaml:"choices" validate:"min=2,dive,notblank"`
		Answer      int      `json:"answer" yaml:"answer" validate:"gte=0"`
		Explanation string   `json:"explanation,omitempty" yaml:"explanation,omitempty"`
		ExamID      int      `json:"examId" yaml:"examId"`
	}

	Exam struct {
		ID               int        `json:"id" yaml:"id" validate:"gt=0"`
		CourseID         int        `json:"courseId" yaml:"courseId"`
		CourseName       string     `json:"courseName" yaml:"courseName"`
		Title            string     `json:"title" yaml:"title" validate:"notblank"`
		Description      string     `json:"description" yaml:"description"`
		Questions        []Question `json:"questions" yaml:"questions" validate:"min=1,dive"`
		TimeLimitMinutes int        `json:"timeLimit" yaml:"timeLimit" validate:"gte=0"`
		PassingScore     int        `json:"passingScore" yaml:"passingScore" validate:"gte=0,lte=100"`
	}

	// PublicQuestion is a Question stripped of its correct answer.
	PublicQuestion struct {
		ID      int      `json:"id"`
		Context string   `json:"context"`
		Choices []string `json:"choices"`
	}

	AnswerRecord struct {
		QuestionID     int  `json:"questionId"`
		SelectedChoice int  `json:"selectedChoice"`
		Correct        bool `json:"correct"`
	}

	Result struct {
		ExamID         int            `json:"examId"`
		Score          int            `json:"score"`
		TotalQuestions int            `json:"totalQuestions"`
		Percentage     int            `json:"percentage"`
		Passed         bool           `json:"passed"`
		Grade          string         `json:"grade"`
		Feedback       string         `json:"feedback"`
		Answers        []AnswerRecord `json:"answers"`
		TimeSpent      time.Duration  `json:"-"`
		SubmittedAt    time.Time      `json:"submittedAt"`
		AutoSubmitted  bool           `json:"autoSubmitted"`
	}

	SubmittedAnswer struct {
		QuestionID     int `json:"questionId"`
		SelectedChoice int `json:"selectedChoice"`
	}

	// Submission is what gets sent back to the exam provider once the attempt is over.
	Submission struct {
		ExamID           int               `json:"examId"`
		StudentID        string            `json:"studentId"`
		Answers          []SubmittedAnswer `json:"answers"`
		TimeSpentSeconds int               `json:"timeSpent"`
		Score            int               `json:"score"`
		Passed           bool              `json:"passed"`
	}

	Student struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
)

func (e Exam) Passing() int {
	if e.PassingScore <= 0 {
		return DefaultPassingScore
	}
	return e.PassingScore
}

func (e Exam) Timed() bool {
	return e.TimeLimitMinutes > 0
}

func (q Question) Public() PublicQuestion {
	choices := make([]string, len(q.Choices))
	copy(choices, q.Choices)
	return PublicQuestion{ID: q.ID, Context: q.Context, Choices: choices}
}

func (r Result) TimeSpentSeconds() int {
	return int(r.TimeSpent / time.Second)
}

// NewSubmission builds the provider payload out of a computed result.
func NewSubmission(studentID string, r Result) Submission {
	answers := make([]SubmittedAnswer, 0, len(r.Answers))
	for _, a := range r.Answers {
		answers = append(answers, SubmittedAnswer{QuestionID: a.QuestionID, SelectedChoice: a.SelectedChoice})
	}
	return Submission{
		ExamID:           r.ExamID,
		StudentID:        studentID,
		Answers:          answers,
		TimeSpentSeconds: r.TimeSpentSeconds(),
		Score:            r.Score,
		Passed:           r.Passed,
	}
}
