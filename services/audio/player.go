package audiosvc

import (
	"bytes"
	"context"
	"io"
	"io/ioutil"
	"os/exec"
	"runtime"

	"github.com/pkg/errors"

	"github.com/trezcool/ulms/core/proctor"
)

// Sink plays a WAV file.
type Sink interface {
	Play(ctx context.Context, wav []byte) error
}

// CommandSink pipes the WAV to a system player reading stdin, e.g. "aplay -q -".
type CommandSink struct {
	Name string
	Args []string
}

// DefaultCommandSink picks the stock player of the platform.
func DefaultCommandSink() CommandSink {
	if runtime.GOOS == "darwin" {
		return CommandSink{Name: "afplay", Args: []string{"/dev/stdin"}}
	}
	return CommandSink{Name: "aplay", Args: []string{"-q", "-"}}
}

func (s CommandSink) Play(ctx context.Context, wav []byte) error {
	cmd := exec.CommandContext(ctx, s.Name, s.Args...)
	cmd.Stdin = bytes.NewReader(wav)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return errors.Wrapf(err, "%s: %s", s.Name, bytes.TrimSpace(stderr.Bytes()))
	}
	return nil
}

// WriterSink writes every cue to W. Used to capture cues in headless runs and tests.
type WriterSink struct {
	W io.Writer
}

func (s WriterSink) Play(_ context.Context, wav []byte) error {
	_, err := s.W.Write(wav)
	return err
}

// DiscardSink drops every cue.
var DiscardSink = WriterSink{W: ioutil.Discard}

// Player synthesizes cues and hands them to a sink.
type Player struct {
	sink       Sink
	sampleRate int
}

var _ proctor.CuePlayer = (*Player)(nil)

func NewPlayer(sink Sink, sampleRate int) *Player {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &Player{sink: sink, sampleRate: sampleRate}
}

func (p *Player) Play(ctx context.Context, cue proctor.Cue) error {
	return p.sink.Play(ctx, Synthesize(cue.Frequency, cue.Duration, p.sampleRate))
}
