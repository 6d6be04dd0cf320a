package proctor

import (
	"encoding/json"
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

var (
	// errors
	ErrPermissionDenied = errors.New("camera permission denied")
	ErrNotConnected     = errors.New("verification channel is not connected")
	ErrChannelClosed    = errors.New("verification channel is closed")
	ErrNoReference      = errors.New("reference image not loaded")
	ErrSessionClosed    = errors.New("proctoring session is closed")
)

type AlertType string

const (
	AlertNoFace        AlertType = "no_face"
	AlertMultipleFaces AlertType = "multiple_faces"
	AlertFaceMismatch  AlertType = "face_mismatch"
	AlertError         AlertType = "error"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Severities in ascending order.
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh}

func ParseSeverity(s string) (Severity, error) {
	for _, sev := range Severities {
		if string(sev) == s {
			return sev, nil
		}
	}
	return "", fmt.Errorf("unknown severity %q", s)
}

type PermissionState string

const (
	PermissionUnrequested PermissionState = "unrequested"
	PermissionGranted     PermissionState = "granted"
	PermissionDenied      PermissionState = "denied"
)

type (
	// SuspiciousAlert is the durable record of one integrity event.
	SuspiciousAlert struct {
		ID          string    `json:"id"`
		Type        AlertType `json:"type"`
		Message     string    `json:"message"`
		Timestamp   int64     `json:"timestamp"` // unix ms
		Severity    Severity  `json:"severity"`
		StudentID   string    `json:"studentId,omitempty"`
		StudentName string    `json:"studentName,omitempty"`
		ExamID      string    `json:"examId,omitempty"`
	}

	// VerificationResponse is one inbound message of the verification service.
	VerificationResponse struct {
		Match         bool    `json:"match"`
		MultipleFaces bool    `json:"multiple_faces"`
		FaceCount     int     `json:"face_count"`
		Error         *string `json:"error,omitempty"`
		Type          string  `json:"type"`
		Timestamp     float64 `json:"timestamp"`
	}

	// FrameEmission is one outbound message: the reference photo and a fresh frame, both as data URLs.
	FrameEmission struct {
		ReferenceImage string `json:"reference_image"`
		FrameImage     string `json:"frame_image"`
	}
)

// ParseResponse decodes a raw inbound message. It never panics on garbage input.
func ParseResponse(raw []byte) (VerificationResponse, error) {
	var resp VerificationResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return VerificationResponse{}, pkgerrors.Wrap(err, "parsing verification response")
	}
	return resp, nil
}

func (r VerificationResponse) HasError() bool {
	return r.Error != nil && *r.Error != ""
}
