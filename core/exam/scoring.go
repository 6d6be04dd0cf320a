package exam

import "math"

// CalculateResult compares every question's recorded choice against its correct answer.
// Questions missing from answers count as Unanswered.
func CalculateResult(questions []Question, answers map[int]int, passingScore int) Result {
	res := Result{
		TotalQuestions: len(questions),
		Answers:        make([]AnswerRecord, 0, len(questions)),
	}
	for _, q := range questions {
		selected, ok := answers[q.ID]
		if !ok {
			selected = Unanswered
		}
		correct := selected == q.Answer
		if correct {
			res.Score++
		}
		res.Answers = append(res.Answers, AnswerRecord{QuestionID: q.ID, SelectedChoice: selected, Correct: correct})
	}

	res.Passed = IsPassing(res.Score, res.TotalQuestions, passingScore)
	res.Percentage = Percentage(res.Score, res.TotalQuestions)
	res.Grade = LetterGrade(res.Percentage)
	res.Feedback = Feedback(res.Percentage, res.Passed)
	return res
}

// IsPassing uses the exact ratio, never the rounded percentage.
func IsPassing(score, total, passingScore int) bool {
	if total == 0 {
		return false
	}
	return float64(score)/float64(total)*100 >= float64(passingScore)
}

// Percentage is rounded to the nearest integer. A zero total yields 0.
func Percentage(score, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(score) / float64(total) * 100))
}

func LetterGrade(percentage int) string {
	switch {
	case percentage >= 90:
		return "A"
	case percentage >= 80:
		return "B"
	case percentage >= 70:
		return "C"
	case percentage >= 60:
		return "D"
	default:
		return "F"
	}
}

func Feedback(percentage int, passed bool) string {
	if passed {
		switch {
		case percentage >= 95:
			return "Outstanding! Perfect score!"
		case percentage >= 90:
			return "Excellent work!"
		case percentage >= 80:
			return "Great job!"
		case percentage >= 70:
			return "Good performance!"
		default:
			return "You passed! Well done!"
		}
	}
	switch {
	case percentage >= 50:
		return "Close! Review the material and try again."
	case percentage >= 30:
		return "Keep studying. You can do better!"
	default:
		return "More practice needed. Review the course content."
	}
}
