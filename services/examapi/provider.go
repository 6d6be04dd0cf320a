// Package examapi fetches exams from, and submits attempts to, the LMS REST API.
package examapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"

	"github.com/trezcool/ulms/core/exam"
)

type Provider struct {
	baseURL string
	headers map[string]string
	client  *rest.Client
}

var _ exam.Provider = (*Provider)(nil)

// New targets baseURL (e.g. "https://lms.example.edu/api"). token, when set, is sent as a bearer token.
func New(baseURL, token string, hc *http.Client) *Provider {
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	headers := map[string]string{
		"Accept":       "application/json",
		"Content-Type": "application/json",
	}
	if token != "" {
		headers["Authorization"] = "Bearer " + token
	}
	return &Provider{
		baseURL: strings.TrimRight(baseURL, "/"),
		headers: headers,
		client:  &rest.Client{HTTPClient: hc},
	}
}

func (p *Provider) GetExam(ctx context.Context, id int) (exam.Exam, error) {
	res, err := p.send(ctx, rest.Request{
		Method:  rest.Get,
		BaseURL: p.baseURL + "/exams/" + strconv.Itoa(id),
		Headers: p.headers,
	})
	if err != nil {
		return exam.Exam{}, errors.Wrap(err, "fetching exam")
	}
	switch {
	case res.StatusCode == http.StatusNotFound:
		return exam.Exam{}, exam.ErrNotFound
	case res.StatusCode >= http.StatusBadRequest:
		return exam.Exam{}, errors.Errorf("fetching exam - status: %d - body: %s", res.StatusCode, res.Body)
	}

	var e exam.Exam
	if err = json.Unmarshal([]byte(res.Body), &e); err != nil {
		return exam.Exam{}, errors.Wrap(err, "decoding exam")
	}
	for i := range e.Questions {
		if e.Questions[i].ExamID == 0 {
			e.Questions[i].ExamID = e.ID
		}
	}
	return e, nil
}

func (p *Provider) SubmitExam(ctx context.Context, sub exam.Submission) error {
	body, err := json.Marshal(sub)
	if err != nil {
		return errors.Wrap(err, "encoding submission")
	}
	res, err := p.send(ctx, rest.Request{
		Method:  rest.Post,
		BaseURL: p.baseURL + "/exam-submissions",
		Headers: p.headers,
		Body:    body,
	})
	if err != nil {
		return errors.Wrap(err, "submitting exam")
	}
	if res.StatusCode >= http.StatusBadRequest {
		return errors.Errorf("submitting exam - status: %d - body: %s", res.StatusCode, res.Body)
	}
	return nil
}

func (p *Provider) send(ctx context.Context, request rest.Request) (*rest.Response, error) {
	req, err := rest.BuildRequestObject(request)
	if err != nil {
		return nil, err
	}
	res, err := p.client.MakeRequest(req.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	return rest.BuildResponse(res)
}
