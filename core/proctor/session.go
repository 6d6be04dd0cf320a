package proctor

import (
	"context"
	"fmt"
	"sync"

	"github.com/trezcool/ulms/core"
)

type (
	// Channel is the verification transport: one connection for the whole proctoring session.
	Channel interface {
		Sender
		Open(ctx context.Context) error
		// Responses is closed once the connection is gone.
		Responses() <-chan VerificationResponse
		Close() error
	}

	Status struct {
		Permission PermissionState  `json:"permission"`
		Connected  bool             `json:"connected"`
		Capture    CaptureStats     `json:"capture"`
		Indicator  Indicator        `json:"indicator"`
		Current    *SuspiciousAlert `json:"current,omitempty"`
		Alerts     Summary          `json:"alerts"`
	}

	// Session owns every proctoring component of one exam attempt.
	// Its failures end here: they never reach the exam session.
	Session struct {
		channel     Channel
		capture     *CaptureLoop
		interpreter *Interpreter
		aggregator  *Aggregator
		logger      core.Logger

		mu           sync.Mutex
		started      bool
		closed       bool
		consumerDone chan struct{}
		closeOnce    sync.Once
	}
)

func NewSession(channel Channel, capture *CaptureLoop, interpreter *Interpreter, aggregator *Aggregator, logger core.Logger) *Session {
	return &Session{
		channel:     channel,
		capture:     capture,
		interpreter: interpreter,
		aggregator:  aggregator,
		logger:      logger,
	}
}

// Start opens the channel then the camera. Neither failure is returned: proctoring just degrades.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.closed {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	if err := s.channel.Open(ctx); err != nil {
		s.logger.Warn(fmt.Sprintf("verification channel unavailable, proctoring degraded: %v", err), err)
	} else {
		done := make(chan struct{})
		s.mu.Lock()
		s.consumerDone = done
		s.mu.Unlock()
		go s.consume(done)
	}

	_ = s.capture.Start(ctx)
}

// consume is the single consumer of inbound responses, in arrival order.
func (s *Session) consume(done chan<- struct{}) {
	defer close(done)
	for resp := range s.channel.Responses() {
		s.Handle(resp)
	}
	s.logger.Info("verification channel closed")
}

// Handle classifies one response and records the resulting alert, if any.
func (s *Session) Handle(resp VerificationResponse) (SuspiciousAlert, bool) {
	alert, ok := s.interpreter.Interpret(resp)
	if ok {
		s.aggregator.Record(alert)
	}
	return alert, ok
}

// StartCamera restarts capture after an explicit stop. A closed session stays closed.
func (s *Session) StartCamera(ctx context.Context) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrSessionClosed
	}
	if err := s.capture.Start(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	closed = s.closed
	s.mu.Unlock()
	if closed {
		// lost a race with Close
		s.capture.Stop()
		return ErrSessionClosed
	}
	return nil
}

// StopCamera is the explicit user stop. The channel stays open.
func (s *Session) StopCamera() {
	s.capture.Stop()
}

// Close tears everything down and wipes the alert history of the attempt.
// Notifications already in flight are not waited for. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.capture.Stop()
		if err := s.channel.Close(); err != nil {
			s.logger.Warn(fmt.Sprintf("closing verification channel: %v", err), err)
		}
		s.mu.Lock()
		done := s.consumerDone
		s.mu.Unlock()
		if done != nil {
			<-done
		}
		s.aggregator.Clear()
	})
}

func (s *Session) Capture() *CaptureLoop { return s.capture }

func (s *Session) Aggregator() *Aggregator { return s.aggregator }

func (s *Session) Status() Status {
	connected := s.channel.Connected()
	st := Status{
		Permission: s.capture.Permission(),
		Connected:  connected,
		Capture:    s.capture.Stats(),
		Alerts:     s.aggregator.Summary(),
	}
	if cur, ok := s.aggregator.Current(); ok {
		st.Current = &cur
	}
	st.Indicator = IndicatorFor(st.Current, connected)
	return st
}
