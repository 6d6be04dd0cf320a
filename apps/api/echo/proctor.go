package echoapi

import (
	"encoding/json"
	"fmt"
	"image/png"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ulms/core"
	"github.com/trezcool/ulms/core/proctor"
)

const streamBuffer = 16

type proctorApi struct {
	session *proctor.Session
}

type DismissResponse struct {
	Dismissed bool `json:"dismissed"`
}

func registerProctorAPI(g *echo.Group, session *proctor.Session) {
	api := proctorApi{session: session}

	pg := g.Group("/proctor")
	pg.GET("/status", api.status)
	pg.GET("/preview", api.preview)
	pg.POST("/camera/stop", api.stopCamera)
	pg.POST("/camera/start", api.startCamera)

	ag := pg.Group("/alerts")
	ag.GET("", api.alerts)
	ag.GET("/current", api.currentAlert)
	ag.POST("/dismiss", api.dismiss)
	ag.GET("/stream", api.stream)
	ag.GET("/:id", api.alert)
}

func (api *proctorApi) status(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, api.session.Status())
}

func (api *proctorApi) alerts(ctx echo.Context) error {
	var sev proctor.Severity
	if q := ctx.QueryParam("severity"); q != "" {
		var err error
		if sev, err = proctor.ParseSeverity(q); err != nil {
			return core.NewValidationError(err, core.FieldError{Field: "severity", Error: err.Error()})
		}
	}
	return ctx.JSON(http.StatusOK, api.session.Aggregator().Filter(sev))
}

func (api *proctorApi) alert(ctx echo.Context) error {
	alert, ok := api.session.Aggregator().Find(ctx.Param("id"))
	if !ok {
		return errHttpNotFound
	}
	return ctx.JSON(http.StatusOK, alert)
}

func (api *proctorApi) currentAlert(ctx echo.Context) error {
	alert, ok := api.session.Aggregator().Current()
	if !ok {
		return errNoCurrentAlert
	}
	return ctx.JSON(http.StatusOK, alert)
}

func (api *proctorApi) dismiss(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, DismissResponse{Dismissed: api.session.Aggregator().Dismiss()})
}

// stream pushes every new alert as a server-sent event until the client goes away.
func (api *proctorApi) stream(ctx echo.Context) error {
	alerts, unsubscribe := api.session.Aggregator().Subscribe(streamBuffer)
	defer unsubscribe()

	res := ctx.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	done := ctx.Request().Context().Done()
	for {
		select {
		case <-done:
			return nil
		case alert, ok := <-alerts:
			if !ok {
				return nil
			}
			data, err := json.Marshal(alert)
			if err != nil {
				return errors.Wrap(err, "encoding alert")
			}
			if _, err = fmt.Fprintf(res, "event: alert\nid: %s\ndata: %s\n\n", alert.ID, data); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}

func (api *proctorApi) preview(ctx echo.Context) error {
	img, ok := api.session.Capture().Preview()
	if !ok {
		return errNoPreview
	}
	res := ctx.Response()
	res.Header().Set(echo.HeaderContentType, "image/png")
	res.Header().Set("Cache-Control", "no-store")
	res.WriteHeader(http.StatusOK)
	return png.Encode(res, img)
}

func (api *proctorApi) stopCamera(ctx echo.Context) error {
	api.session.StopCamera()
	return ctx.NoContent(http.StatusNoContent)
}

func (api *proctorApi) startCamera(ctx echo.Context) error {
	if err := api.session.StartCamera(ctx.Request().Context()); err != nil {
		switch {
		case errors.Is(err, proctor.ErrPermissionDenied):
			return errCameraPermission
		case errors.Is(err, proctor.ErrSessionClosed):
			return errProctoringClosed
		}
		return err
	}
	return ctx.JSON(http.StatusOK, api.session.Status())
}
