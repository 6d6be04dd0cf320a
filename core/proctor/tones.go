package proctor

import (
	"context"
	"time"
)

const cueDuration = 300 * time.Millisecond

type (
	// Cue is an audible notification: a pure tone.
	Cue struct {
		Frequency float64
		Duration  time.Duration
	}

	// CuePlayer plays cues. Implementations may fail; failures are swallowed by the caller.
	CuePlayer interface {
		Play(ctx context.Context, cue Cue) error
	}

	// CueNotifier plays one cue per alert, pitched by severity.
	CueNotifier struct {
		player  CuePlayer
		enabled func() bool
	}
)

func CueFor(sev Severity) Cue {
	return Cue{Frequency: CueFrequency(sev), Duration: cueDuration}
}

// NewCueNotifier plays nothing while enabled returns false. A nil enabled means always on.
func NewCueNotifier(player CuePlayer, enabled func() bool) *CueNotifier {
	return &CueNotifier{player: player, enabled: enabled}
}

var _ Notifier = (*CueNotifier)(nil)

func (n *CueNotifier) Notify(ctx context.Context, alert SuspiciousAlert) error {
	if n.enabled != nil && !n.enabled() {
		return nil
	}
	// audio failures are never fatal nor worth an error log
	_ = n.player.Play(ctx, CueFor(alert.Severity))
	return nil
}
