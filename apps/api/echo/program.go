package echoapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/feeded/core"
	"github.com/trezcool/feeded/core/dispatch"
	"github.com/trezcool/feeded/core/program"
	"github.com/trezcool/feeded/core/survey"
)

type programAPI struct {
	programs *program.Service
	dispatch *dispatch.Service
	surveys  *survey.Service
}

func registerProgramAPI(
	g *echo.Group,
	authed []echo.MiddlewareFunc,
	programs *program.Service,
	dispatchSvc *dispatch.Service,
	surveys *survey.Service,
) {
	api := programAPI{programs: programs, dispatch: dispatchSvc, surveys: surveys}

	pg := g.Group("/programs", authed...)
	pg.GET("", api.list)
	pg.POST("", api.create)
	pg.GET("/:pid", api.retrieve)
	pg.DELETE("/:pid", api.delete)
	pg.POST("/:pid/students", api.addStudent)
	pg.DELETE("/:pid/students/:sid", api.deleteStudent)
	pg.POST("/:pid/surveys/:type/send", api.sendSurveys)
	pg.POST("/:pid/surveys/:type/remind", api.remind)
	pg.GET("/:pid/answers", api.answers)
	pg.GET("/:pid/answers/:type/csv", api.exportCSV)
}

func (api programAPI) list(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var filter program.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return err
	}
	page, err := bindPagination(ctx)
	if err != nil {
		return err
	}

	list, err := api.programs.FetchPrograms(ctx.Request().Context(), usr.ID, filter, page)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, list)
}

func (api programAPI) create(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var data program.NewProgram
	if err := ctx.Bind(&data); err != nil {
		return err
	}

	p, err := api.programs.Create(ctx.Request().Context(), usr.ID, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (api programAPI) retrieve(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	details, err := api.programs.Get(ctx.Request().Context(), usr.ID, ctx.Param("pid"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, details)
}

func (api programAPI) delete(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	if err := api.programs.Delete(ctx.Request().Context(), usr.ID, ctx.Param("pid")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api programAPI) addStudent(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var data program.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return err
	}

	st, err := api.programs.AddStudent(ctx.Request().Context(), usr.ID, ctx.Param("pid"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, st)
}

func (api programAPI) deleteStudent(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	if err := api.programs.DeleteStudent(ctx.Request().Context(), usr.ID, ctx.Param("pid"), ctx.Param("sid")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api programAPI) sendSurveys(ctx echo.Context) error {
	return api.batch(ctx, api.dispatch.SendProgram)
}

func (api programAPI) remind(ctx echo.Context) error {
	return api.batch(ctx, api.dispatch.Remind)
}

type batchFunc func(ctx context.Context, uid, pid string, t survey.FormType) (dispatch.BatchResult, error)

func (api programAPI) batch(ctx echo.Context, run batchFunc) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	t, err := survey.ParseKind(ctx.Param("type"))
	if err != nil {
		return err
	}

	res, err := run(ctx.Request().Context(), usr.ID, ctx.Param("pid"), t)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api programAPI) answers(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	answers, err := api.surveys.AnswersByProgram(ctx.Request().Context(), usr.ID, ctx.Param("pid"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, answers)
}

func (api programAPI) exportCSV(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	t, err := survey.ParseKind(ctx.Param("type"))
	if err != nil {
		return err
	}

	file, err := api.surveys.ExportCSV(ctx.Request().Context(), usr.ID, ctx.Param("pid"), t)
	if err != nil {
		return err
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+file.Filename+`"`)
	return ctx.Blob(http.StatusOK, file.ContentType, file.Data)
}

// bindPagination reads ?page=&page_size= query params; both default to 0.
func bindPagination(ctx echo.Context) (core.Pagination, error) {
	var page core.Pagination
	params := []struct {
		name string
		dst  *int
	}{{"page", &page.Page}, {"page_size", &page.PageSize}}
	for _, param := range params {
		name, dst := param.name, param.dst
		raw := ctx.QueryParam(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return page, core.NewValidationError(nil, core.FieldError{Field: name, Error: "must be a positive integer"})
		}
		*dst = n
	}
	return page, nil
}
