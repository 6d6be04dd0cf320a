package emailsvc

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net/mail"
	texttmpl "text/template"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/ulms/core"
	"github.com/trezcool/ulms/core/proctor"
)

var escalationTmpl = texttmpl.Must(texttmpl.New("escalation").Parse(
	`A high severity proctoring alert was raised.

Student: {{.Alert.StudentName}} ({{.Alert.StudentID}})
Exam:    {{.Alert.ExamID}}
Alert:   {{.Alert.Type}}
Details: {{.Alert.Message}}
Time:    {{.Time}}
{{if .HasFrame}}
The camera preview at the time of the alert is attached.{{end}}`,
))

// PreviewFunc returns the latest camera preview, if any.
type PreviewFunc func() (image.Image, bool)

// Escalator mails invigilators about high severity alerts.
type Escalator struct {
	svc     core.EmailService
	to      []mail.Address
	preview PreviewFunc
}

var _ proctor.Notifier = (*Escalator)(nil)

func NewEscalator(svc core.EmailService, to []mail.Address, preview PreviewFunc) *Escalator {
	return &Escalator{svc: svc, to: to, preview: preview}
}

// Notify ignores anything below high severity.
func (e *Escalator) Notify(_ context.Context, alert proctor.SuspiciousAlert) error {
	if alert.Severity != proctor.SeverityHigh || len(e.to) == 0 {
		return nil
	}
	msg, err := e.Message(alert)
	if err != nil {
		return err
	}
	e.svc.SendMessages(msg)
	return nil
}

func (e *Escalator) Message(alert proctor.SuspiciousAlert) (*core.EmailMessage, error) {
	var frame image.Image
	if e.preview != nil {
		frame, _ = e.preview()
	}

	msg := &core.EmailMessage{
		To:           e.to,
		Subject:      "Proctoring alert: " + string(alert.Type) + " - " + alert.StudentID,
		TextTemplate: escalationTmpl,
		TemplateData: map[string]interface{}{
			"Alert":    alert,
			"Time":     time.Unix(0, alert.Timestamp*int64(time.Millisecond)).UTC().Format(time.RFC1123),
			"HasFrame": frame != nil,
		},
	}
	if frame != nil {
		var buf bytes.Buffer
		if err := png.Encode(&buf, frame); err != nil {
			return nil, errors.Wrap(err, "encoding preview")
		}
		if err := msg.Attach(&buf, "frame.png", "image/png"); err != nil {
			return nil, errors.Wrap(err, "attaching preview")
		}
	}
	return msg, nil
}
