package proctor

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

const (
	msgNoFace       = "No face detected in the frame"
	msgFaceMismatch = "Face does not match reference image"
)

var newAlertID = defaultAlertID // mockable

func defaultAlertID() string { return uuid.New().String() }

// Classification is the outcome of one response: Type is empty on the success path.
type Classification struct {
	Type    AlertType
	Message string
}

func (c Classification) IsAlert() bool { return c.Type != "" }

// Classify applies the rules in priority order; the first match wins.
func Classify(resp VerificationResponse) Classification {
	switch {
	case resp.FaceCount == 0:
		return Classification{Type: AlertNoFace, Message: msgNoFace}
	case resp.MultipleFaces || resp.FaceCount > 1:
		return Classification{
			Type:    AlertMultipleFaces,
			Message: fmt.Sprintf("Multiple faces detected (%d)", resp.FaceCount),
		}
	case !resp.Match && resp.FaceCount == 1:
		return Classification{Type: AlertFaceMismatch, Message: msgFaceMismatch}
	case resp.HasError():
		return Classification{Type: AlertError, Message: *resp.Error}
	default:
		return Classification{}
	}
}

// SeverityOf is a pure function of the alert type.
func SeverityOf(t AlertType) Severity {
	switch t {
	case AlertNoFace, AlertMultipleFaces:
		return SeverityHigh
	case AlertFaceMismatch, AlertError:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Identity is stamped on every alert.
type Identity struct {
	StudentID   string
	StudentName string
	ExamID      string
}

// Interpreter turns verification responses into alerts.
type Interpreter struct {
	identity Identity
	clock    clock.Clock
}

func NewInterpreter(identity Identity, c clock.Clock) *Interpreter {
	if c == nil {
		c = clock.New()
	}
	return &Interpreter{identity: identity, clock: c}
}

// Interpret returns false on the success path.
func (in *Interpreter) Interpret(resp VerificationResponse) (SuspiciousAlert, bool) {
	c := Classify(resp)
	if !c.IsAlert() {
		return SuspiciousAlert{}, false
	}
	return SuspiciousAlert{
		ID:          newAlertID(),
		Type:        c.Type,
		Message:     c.Message,
		Timestamp:   in.clock.Now().UnixNano() / int64(time.Millisecond),
		Severity:    SeverityOf(c.Type),
		StudentID:   in.identity.StudentID,
		StudentName: in.identity.StudentName,
		ExamID:      in.identity.ExamID,
	}, true
}
