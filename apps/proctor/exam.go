package main

import (
	"context"
	"fmt"

	"github.com/trezcool/ulms/core/exam"
)

// showExam prints an exam the way a student would see it: no correct answers.
func (cli *commandLine) showExam(id int) error {
	e, err := cli.examSvc.Load(context.Background(), id)
	if err != nil {
		return err
	}

	limit := "untimed"
	if e.Timed() {
		limit = exam.FormatDuration(exam.MinutesToSeconds(e.TimeLimitMinutes))
	}
	fmt.Fprintf(cli.out, "%s (%s)\n", e.Title, e.CourseName)
	fmt.Fprintf(cli.out, "%d questions, %s, pass mark %d%%\n", len(e.Questions), limit, e.Passing())
	for i, q := range e.Questions {
		pq := q.Public()
		fmt.Fprintf(cli.out, "\n%d. %s\n", i+1, pq.Context)
		for j, choice := range pq.Choices {
			fmt.Fprintf(cli.out, "   %c) %s\n", 'a'+j, choice)
		}
	}
	return nil
}
