package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/trezcool/ulms/core"
	"github.com/trezcool/ulms/core/exam"
)

type (
	examApi struct {
		session  *exam.Session
		validate *validator.Validate
	}

	AnswerRequest struct {
		Choice *int `json:"choice" validate:"required"`
	}

	// NavigationResponse tells whether the current question changed.
	NavigationResponse struct {
		Moved    bool          `json:"moved"`
		Snapshot exam.Snapshot `json:"exam"`
	}
)

func registerExamAPI(g *echo.Group, session *exam.Session, validate *validator.Validate) {
	api := examApi{session: session, validate: validate}

	eg := g.Group("/exam")
	eg.GET("", api.snapshot)
	eg.POST("/answer", api.answer)
	eg.POST("/next", api.next)
	eg.POST("/previous", api.previous)
	eg.POST("/goto/:index", api.goTo)
	eg.POST("/submit", api.submit)
	eg.GET("/result", api.result)
}

func (api *examApi) snapshot(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, api.session.Snapshot())
}

func (api *examApi) answer(ctx echo.Context) error {
	data := new(AnswerRequest)
	if err := ctx.Bind(data); err != nil {
		return err
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}
	if err := api.session.SelectAnswer(*data.Choice); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, api.session.Snapshot())
}

func (api *examApi) next(ctx echo.Context) error {
	moved := api.session.Next()
	return ctx.JSON(http.StatusOK, NavigationResponse{Moved: moved, Snapshot: api.session.Snapshot()})
}

func (api *examApi) previous(ctx echo.Context) error {
	moved := api.session.Previous()
	return ctx.JSON(http.StatusOK, NavigationResponse{Moved: moved, Snapshot: api.session.Snapshot()})
}

func (api *examApi) goTo(ctx echo.Context) error {
	index, err := strconv.Atoi(ctx.Param("index"))
	if err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "index", Error: "must be a number"})
	}
	if err = api.session.GoTo(index); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, api.session.Snapshot())
}

// submit refuses an incomplete attempt unless ?force=true.
func (api *examApi) submit(ctx echo.Context) error {
	if api.session.State() == exam.StateSubmitted {
		return errAlreadySubmitted
	}
	if force, _ := strconv.ParseBool(ctx.QueryParam("force")); !force {
		if err := api.session.CheckComplete(); err != nil {
			return err
		}
	}
	res, ok := api.session.Submit()
	if !ok {
		return errAlreadySubmitted
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *examApi) result(ctx echo.Context) error {
	res, ok := api.session.Result()
	if !ok {
		return errResultNotAvailable
	}
	return ctx.JSON(http.StatusOK, res)
}
