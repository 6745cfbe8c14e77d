package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/feeded/core/survey"
)

type SubmitFormRequest struct {
	Answers survey.Answers `json:"answers"`
}

type formAPI struct {
	service *survey.Service
}

// registerFormAPI mounts the public survey form; respondents are identified by their link only.
func registerFormAPI(g *echo.Group, svc *survey.Service) {
	api := formAPI{service: svc}

	fg := g.Group("/forms")
	fg.GET("/:kind/:link", api.retrieve)
	fg.POST("/:kind/:link", api.submit)
}

func (api formAPI) retrieve(ctx echo.Context) error {
	q, err := api.service.Questionnaire(ctx.Param("kind"), ctx.Param("link"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, q)
}

func (api formAPI) submit(ctx echo.Context) error {
	var data SubmitFormRequest
	if err := ctx.Bind(&data); err != nil {
		return err
	}
	fa, err := api.service.Submit(ctx.Request().Context(), ctx.Param("kind"), ctx.Param("link"), data.Answers)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, fa)
}
