package tests

import (
	"bufio"
	"context"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/ulms/apps/api/echo"
	"github.com/trezcool/ulms/core/proctor"
	camerasvc "github.com/trezcool/ulms/services/camera"
	"github.com/trezcool/ulms/tests"
)

func (a *testApp) pushAndWait(t *testing.T, raw []byte, wantHistory int) {
	require.NoError(t, a.verifier.Push(string(raw)))
	require.Eventually(t, func() bool {
		return len(a.proctor.Aggregator().History()) == wantHistory
	}, time.Second, 5*time.Millisecond)
}

func (a *testApp) status(t *testing.T) proctor.Status {
	rec := a.do(http.MethodGet, "/v1/proctor/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var st proctor.Status
	decode(t, rec, &st)
	return st
}

func TestProctorAPI_status(t *testing.T) {
	app := setup(t, nil)

	st := app.status(t)
	assert.Equal(t, proctor.PermissionGranted, st.Permission)
	assert.True(t, st.Connected)
	assert.True(t, st.Capture.Running)
	assert.Equal(t, proctor.Indicator{Color: proctor.ColorGreen}, st.Indicator)
	assert.Nil(t, st.Current)

	app.pushAndWait(t, testutil.VerificationJSON(false, false, 0, ""), 1)

	st = app.status(t)
	require.NotNil(t, st.Current)
	assert.Equal(t, proctor.AlertNoFace, st.Current.Type)
	assert.Equal(t, proctor.Indicator{Color: proctor.ColorRed, Pulse: true}, st.Indicator)
	assert.Equal(t, proctor.Summary{Total: 1, High: 1}, st.Alerts)
}

func TestProctorAPI_alerts(t *testing.T) {
	app := setup(t, nil)

	app.pushAndWait(t, testutil.VerificationJSON(false, false, 0, ""), 1)
	app.pushAndWait(t, testutil.VerificationJSON(true, true, 2, ""), 2)
	app.pushAndWait(t, testutil.VerificationJSON(false, false, 1, ""), 3)
	// a successful verification records nothing
	require.NoError(t, app.verifier.Push(string(testutil.VerificationJSON(true, false, 1, ""))))

	history := app.proctor.Aggregator().History()
	tests := []struct {
		name      string
		query     string
		wantCode  int
		wantTypes []proctor.AlertType
		wantData  []byte
	}{
		{
			name:      "all",
			wantCode:  http.StatusOK,
			wantTypes: []proctor.AlertType{proctor.AlertNoFace, proctor.AlertMultipleFaces, proctor.AlertFaceMismatch},
		},
		{
			name:      "high",
			query:     "?severity=high",
			wantCode:  http.StatusOK,
			wantTypes: []proctor.AlertType{proctor.AlertNoFace, proctor.AlertMultipleFaces},
		},
		{
			name:      "medium",
			query:     "?severity=medium",
			wantCode:  http.StatusOK,
			wantTypes: []proctor.AlertType{proctor.AlertFaceMismatch},
		},
		{
			name:      "low",
			query:     "?severity=low",
			wantCode:  http.StatusOK,
			wantTypes: []proctor.AlertType{},
		},
		{
			name:     "unknown severity",
			query:    "?severity=critical",
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"severity": "unknown severity \"critical\""}`),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(http.MethodGet, "/v1/proctor/alerts"+tt.query)
			if tt.wantData != nil {
				checkCodeAndData(t, httpTest{wantCode: tt.wantCode, wantData: tt.wantData}, rec)
				return
			}
			require.Equal(t, tt.wantCode, rec.Code)
			var alerts []proctor.SuspiciousAlert
			decode(t, rec, &alerts)
			types := make([]proctor.AlertType, 0, len(alerts))
			for _, a := range alerts {
				types = append(types, a.Type)
			}
			assert.Equal(t, tt.wantTypes, types)
		})
	}

	rec := app.do(http.MethodGet, "/v1/proctor/alerts/"+history[1].ID)
	require.Equal(t, http.StatusOK, rec.Code)
	var alert proctor.SuspiciousAlert
	decode(t, rec, &alert)
	assert.Equal(t, history[1], alert)
	assert.Equal(t, "Multiple faces detected (2)", alert.Message)
	assert.Equal(t, "s-1", alert.StudentID)

	checkCodeAndData(t, httpTest{
		wantCode: http.StatusNotFound,
		wantData: marshallObj(t, httpErr{Error: "not found"}),
	}, app.do(http.MethodGet, "/v1/proctor/alerts/nope"))
}

func TestProctorAPI_dismiss(t *testing.T) {
	app := setup(t, nil)

	checkCodeAndData(t, httpTest{
		wantCode: http.StatusNotFound,
		wantData: marshallObj(t, httpErr{Error: "no active alert"}),
	}, app.do(http.MethodGet, "/v1/proctor/alerts/current"))

	app.pushAndWait(t, testutil.VerificationJSON(false, false, 1, ""), 1)

	rec := app.do(http.MethodGet, "/v1/proctor/alerts/current")
	require.Equal(t, http.StatusOK, rec.Code)
	var cur proctor.SuspiciousAlert
	decode(t, rec, &cur)
	assert.Equal(t, proctor.AlertFaceMismatch, cur.Type)
	assert.Equal(t, proctor.SeverityMedium, cur.Severity)

	var res DismissResponse
	decode(t, app.do(http.MethodPost, "/v1/proctor/alerts/dismiss"), &res)
	assert.True(t, res.Dismissed)
	decode(t, app.do(http.MethodPost, "/v1/proctor/alerts/dismiss"), &res)
	assert.False(t, res.Dismissed)

	assert.Equal(t, http.StatusNotFound, app.do(http.MethodGet, "/v1/proctor/alerts/current").Code)
	assert.Len(t, app.proctor.Aggregator().History(), 1, "dismissing keeps the history")
}

func TestProctorAPI_preview(t *testing.T) {
	app := setup(t, nil)

	rec := app.do(http.MethodGet, "/v1/proctor/preview")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	img, err := png.Decode(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, previewSize, img.Bounds().Dx())
	assert.Equal(t, previewSize, img.Bounds().Dy())
	_, _, _, a := img.At(0, 0).RGBA()
	assert.Zero(t, a, "outside the circle is transparent")
}

func TestProctorAPI_camera(t *testing.T) {
	app := setup(t, nil)

	rec := app.do(http.MethodPost, "/v1/proctor/camera/stop")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, app.status(t).Capture.Running)
	assert.True(t, app.status(t).Connected, "stopping the camera keeps the channel open")

	checkCodeAndData(t, httpTest{
		wantCode: http.StatusNotFound,
		wantData: marshallObj(t, httpErr{Error: "no preview available"}),
	}, app.do(http.MethodGet, "/v1/proctor/preview"))

	rec = app.do(http.MethodPost, "/v1/proctor/camera/start")
	require.Equal(t, http.StatusOK, rec.Code)
	var st proctor.Status
	decode(t, rec, &st)
	assert.True(t, st.Capture.Running)
	assert.Equal(t, proctor.PermissionGranted, st.Permission)
}

func TestProctorAPI_cameraAfterClose(t *testing.T) {
	app := setup(t, nil)

	// the exam submit hook closes the proctoring session
	app.proctor.Close()

	checkCodeAndData(t, httpTest{
		wantCode: http.StatusConflict,
		wantData: marshallObj(t, httpErr{Error: "proctoring session is closed"}),
	}, app.do(http.MethodPost, "/v1/proctor/camera/start"))

	st := app.status(t)
	assert.False(t, st.Capture.Running)
	assert.Equal(t, proctor.PermissionUnrequested, st.Permission)
	assert.False(t, st.Connected)
}

func TestProctorAPI_cameraDenied(t *testing.T) {
	app := setup(t, camerasvc.DeniedCamera{})

	st := app.status(t)
	assert.Equal(t, proctor.PermissionDenied, st.Permission)
	assert.True(t, st.Connected, "a denied camera leaves the channel alone")

	checkCodeAndData(t, httpTest{
		wantCode: http.StatusForbidden,
		wantData: marshallObj(t, httpErr{Error: "camera permission denied"}),
	}, app.do(http.MethodPost, "/v1/proctor/camera/start"))

	// the exam is unaffected
	assert.Equal(t, http.StatusOK, app.do(http.MethodPost, "/v1/exam/answer", []byte(`{"choice": 1}`)).Code)
}

func TestProctorAPI_stream(t *testing.T) {
	app := setup(t, nil)
	srv := httptest.NewServer(app.server)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/proctor/alerts/stream", nil)
	require.NoError(t, err)
	res, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "text/event-stream", res.Header.Get("Content-Type"))

	app.pushAndWait(t, testutil.VerificationJSON(true, true, 3, ""), 1)

	scanner := bufio.NewScanner(res.Body)
	var data string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimPrefix(line, "data: ")
			break
		}
	}
	require.NotEmpty(t, data)

	var alert proctor.SuspiciousAlert
	require.NoError(t, json.Unmarshal([]byte(data), &alert))
	assert.Equal(t, proctor.AlertMultipleFaces, alert.Type)
	assert.Equal(t, app.proctor.Aggregator().History()[0].ID, alert.ID)
}
