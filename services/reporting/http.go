// Package reportsvc forwards suspicious-activity alerts to the LMS backend.
// Every sink is best-effort: failures are returned to the aggregator, which logs them.
package reportsvc

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/sendgrid/rest"

	"github.com/trezcool/ulms/core/proctor"
)

const suspiciousActivityPath = "/exam/suspicious-activity"

// Report is the body of a suspicious-activity report.
type Report struct {
	ExamID    string                  `json:"examId"`
	StudentID string                  `json:"studentId"`
	Alert     proctor.SuspiciousAlert `json:"alert"`
	Timestamp int64                   `json:"timestamp"` // unix ms, time of the report
}

// HTTPReporter posts every alert to the backend once. It never retries.
type HTTPReporter struct {
	baseURL string
	client  *rest.Client
	clock   clock.Clock
}

var _ proctor.Notifier = (*HTTPReporter)(nil)

func NewHTTPReporter(baseURL string, hc *http.Client, c clock.Clock) *HTTPReporter {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	if c == nil {
		c = clock.New()
	}
	return &HTTPReporter{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &rest.Client{HTTPClient: hc},
		clock:   c,
	}
}

func (r *HTTPReporter) Notify(ctx context.Context, alert proctor.SuspiciousAlert) error {
	body, err := json.Marshal(Report{
		ExamID:    alert.ExamID,
		StudentID: alert.StudentID,
		Alert:     alert,
		Timestamp: r.clock.Now().UnixNano() / int64(time.Millisecond),
	})
	if err != nil {
		return errors.Wrap(err, "encoding report")
	}

	res, err := send(ctx, r.client, rest.Request{
		Method:  rest.Post,
		BaseURL: r.baseURL + suspiciousActivityPath,
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    body,
	})
	if err != nil {
		return errors.Wrap(err, "reporting suspicious activity")
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return errors.Errorf("reporting suspicious activity - status: %d - body: %s", res.StatusCode, res.Body)
	}
	return nil
}

// send is rest.Client.Send bound to ctx.
func send(ctx context.Context, client *rest.Client, request rest.Request) (*rest.Response, error) {
	req, err := rest.BuildRequestObject(request)
	if err != nil {
		return nil, err
	}
	res, err := client.MakeRequest(req.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	return rest.BuildResponse(res)
}
