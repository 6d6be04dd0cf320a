package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"image/color"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/ulms/apps/api/echo"
	"github.com/trezcool/ulms/core"
	"github.com/trezcool/ulms/core/exam"
	"github.com/trezcool/ulms/core/proctor"
	camerasvc "github.com/trezcool/ulms/services/camera"
	wstransport "github.com/trezcool/ulms/services/transport/websocket"
	"github.com/trezcool/ulms/tests"
)

const previewSize = 32

var student = exam.Student{ID: "s-1", Name: "Amani", Email: "amani@example.edu"}

type testApp struct {
	server   *Server
	exam     *exam.Session
	proctor  *proctor.Session
	verifier *testutil.Verifier
	logger   *testutil.Logger
}

func testExam() exam.Exam {
	return exam.Exam{
		ID:         7,
		CourseName: "Algorithms",
		Title:      "Sorting Quiz",
		Questions: []exam.Question{
			{ID: 1, Context: "Fastest average sort?", Choices: []string{"Bubble", "Quick"}, Answer: 1, ExamID: 7},
			{ID: 2, Context: "Stable sort?", Choices: []string{"Merge", "Heap"}, Answer: 0, ExamID: 7},
			{ID: 3, Context: "Worst case of quicksort?", Choices: []string{"O(n log n)", "O(n^2)"}, Answer: 1, ExamID: 7},
		},
		TimeLimitMinutes: 10,
	}
}

// setup wires a started exam session and a started proctoring session behind a server.
// A nil camera uses a still frame.
func setup(t *testing.T, camera proctor.Camera) *testApp {
	conf := core.NewConfig()
	conf.Set("testMode", true)
	conf.Set("debug", false)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	exam.InitValidators(validate, translator)

	logger := testutil.NewLogger()
	mock := clock.NewMock()

	examSess := exam.NewSession(testExam(), exam.WithClock(mock))
	require.NoError(t, examSess.Start())
	t.Cleanup(examSess.Close)

	if camera == nil {
		path := filepath.Join(t.TempDir(), "frame.png")
		frame := testutil.SolidImage(64, 48, color.RGBA{G: 180, A: 255})
		require.NoError(t, ioutil.WriteFile(path, testutil.PNGBytes(t, frame), 0o600))
		camera = camerasvc.NewStillCamera(path)
	}

	verifier := testutil.NewVerifier(t, nil)
	channel := wstransport.New(wstransport.Options{URL: verifier.URL(), Logger: logger})
	capture := proctor.NewCaptureLoop(camera, channel, "data:image/png;base64,cmVm", proctor.CaptureConfig{
		PreviewSize:    previewSize,
		RenderInterval: time.Hour,
		Clock:          mock,
		Logger:         logger,
	})
	interpreter := proctor.NewInterpreter(proctor.Identity{StudentID: student.ID, StudentName: student.Name, ExamID: "7"}, mock)
	aggregator := proctor.NewAggregator(proctor.AggregatorConfig{Clock: mock, Logger: logger})
	proctorSess := proctor.NewSession(channel, capture, interpreter, aggregator, logger)
	proctorSess.Start(context.Background())
	t.Cleanup(proctorSess.Close)

	require.Eventually(t, func() bool { return len(verifier.Handshakes()) == 1 }, time.Second, 5*time.Millisecond)

	server := NewServer(ServerDeps{
		Conf:       conf,
		Logger:     logger,
		Validate:   validate,
		Translator: translator,
		Exam:       examSess,
		Proctor:    proctorSess,
		Student:    student,
	})
	return &testApp{server: server, exam: examSess, proctor: proctorSess, verifier: verifier, logger: logger}
}

// do runs one request against the app.
func (a *testApp) do(method, path string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newRequest(method, path, data...)
	a.server.ServeHTTP(rec, req)
	return rec
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	wantCode int
	wantData []byte
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	return req, rec
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj() failed: %v", err)
	}
	return data
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode() failed: %v; body %s", err, rec.Body.String())
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	assert.True(t, ok, "failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
}
