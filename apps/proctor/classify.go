package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/ulms/core/proctor"
)

// classify replays recorded verification responses through the interpreter.
// Malformed lines are reported and skipped.
func (cli *commandLine) classify(studentID, studentName, examID string) error {
	in := proctor.NewInterpreter(proctor.Identity{StudentID: studentID, StudentName: studentName, ExamID: examID}, nil)
	enc := json.NewEncoder(cli.out)

	var lines, alerts, malformed int
	scanner := bufio.NewScanner(cli.in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lines++
		resp, err := proctor.ParseResponse([]byte(line))
		if err != nil {
			malformed++
			fmt.Fprintf(cli.errOut, "line %d: %v\n", lines, err)
			continue
		}
		alert, ok := in.Interpret(resp)
		if !ok {
			continue
		}
		alerts++
		if err = enc.Encode(alert); err != nil {
			return errors.Wrap(err, "writing alert")
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "reading responses")
	}
	fmt.Fprintf(cli.errOut, "%d responses, %d alerts, %d malformed\n", lines, alerts, malformed)
	return nil
}
