package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"golang.org/x/term"

	"github.com/trezcool/ulms/core"
	"github.com/trezcool/ulms/core/exam"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf    *core.Config
	examSvc *exam.Service
	in      io.Reader
	out     io.Writer
	errOut  io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  classify [-student ID] [-name NAME] [-exam ID] - read verification responses (one JSON per line) from stdin and print the alerts")
	fmt.Fprintln(cli.out, "  tone -out FILE [-severity high|medium|low]   - write the alert cue of a severity as a WAV file ('-' for stdout)")
	fmt.Fprintln(cli.out, "  token [-student ID] [-exam ID] [-ttl 2h]     - issue a verifier token; the secret key is prompted when not configured")
	fmt.Fprintln(cli.out, "  exam [-id ID]                                - load and validate an exam from the configured provider")
}

func (cli *commandLine) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.errOut)
	return fs
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	switch args[1] {
	case "classify":
		fs := cli.newFlagSet("classify")
		studentID := fs.String("student", cli.conf.Student.ID, "The student the responses belong to.")
		studentName := fs.String("name", cli.conf.Student.Name, "The student's display name.")
		examID := fs.String("exam", fmt.Sprint(cli.conf.Exams.ID), "The exam being taken.")
		if err := fs.Parse(args[2:]); err != nil {
			return err
		}
		return cli.classify(*studentID, *studentName, *examID)

	case "tone":
		fs := cli.newFlagSet("tone")
		severity := fs.String("severity", "high", "The alert severity: high, medium or low.")
		out := fs.String("out", "", "The WAV file to write, '-' for stdout.")
		rate := fs.Int("rate", 0, "The sample rate, in Hz.")
		if err := fs.Parse(args[2:]); err != nil {
			return err
		}
		if *out == "" {
			fs.Usage()
			return errHelp
		}
		return cli.tone(*severity, *out, *rate)

	case "token":
		fs := cli.newFlagSet("token")
		studentID := fs.String("student", cli.conf.Student.ID, "The token subject.")
		examID := fs.String("exam", fmt.Sprint(cli.conf.Exams.ID), "The exam the token is valid for.")
		ttl := fs.Duration("ttl", cli.conf.Verifier.TokenTTL, "How long the token is valid.")
		if err := fs.Parse(args[2:]); err != nil {
			return err
		}
		secret := cli.conf.Verifier.SecretKey
		if secret == "" {
			fmt.Fprint(cli.errOut, "Enter secret key:")
			key, err := readPasswordFunc(syscall.Stdin)
			fmt.Fprintln(cli.errOut)
			if err != nil {
				return err
			}
			if len(key) == 0 {
				fs.Usage()
				return errHelp
			}
			secret = string(key)
		}
		return cli.token(secret, *studentID, *examID, *ttl)

	case "exam":
		fs := cli.newFlagSet("exam")
		id := fs.Int("id", cli.conf.Exams.ID, "The exam to load.")
		if err := fs.Parse(args[2:]); err != nil {
			return err
		}
		return cli.showExam(*id)

	default:
		cli.printUsage()
		return errHelp
	}
}
