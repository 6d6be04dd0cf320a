package main

import (
	"context"
	"io/ioutil"

	"github.com/pkg/errors"

	"github.com/trezcool/ulms/core/proctor"
	audiosvc "github.com/trezcool/ulms/services/audio"
)

func (cli *commandLine) tone(severity, out string, rate int) error {
	sev, err := proctor.ParseSeverity(severity)
	if err != nil {
		return err
	}
	cue := proctor.CueFor(sev)
	wav := audiosvc.Synthesize(cue.Frequency, cue.Duration, rate)

	if out == "-" {
		return audiosvc.WriterSink{W: cli.out}.Play(context.Background(), wav)
	}
	if err = ioutil.WriteFile(out, wav, 0o644); err != nil {
		return errors.Wrap(err, "writing cue")
	}
	return nil
}
