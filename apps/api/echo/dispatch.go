package echoapi

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/feeded/core/dispatch"
)

const apiKeyHeader = "X-API-Key"

type (
	MessageResponse struct {
		Message string `json:"message"`
	}

	ScheduleResponse struct {
		Message string              `json:"message"`
		Result  dispatch.ScanResult `json:"result"`
	}
)

type dispatchAPI struct {
	service *dispatch.Service
	now     func() time.Time
}

func registerDispatchAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc *dispatch.Service, apiKey string) {
	api := dispatchAPI{service: svc, now: func() time.Time { return time.Now().UTC() }}

	g.POST("/email", api.sendEmail, authed...)
	g.POST("/emailSurvey", api.sendEmail, authed...)
	g.GET("/schedule-emails", api.scheduleEmails, apiKeyMiddleware(apiKey))
}

// apiKeyMiddleware guards machine endpoints with a shared key; an empty key disables the check.
func apiKeyMiddleware(key string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if key != "" {
				got := ctx.Request().Header.Get(apiKeyHeader)
				if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
					return errInvalidAPIKey
				}
			}
			return next(ctx)
		}
	}
}

func (api dispatchAPI) sendEmail(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var data dispatch.SendRequest
	if err := ctx.Bind(&data); err != nil {
		return err
	}
	if err := data.Validate(); err != nil {
		return err
	}
	if data.UserID != usr.ID {
		return errHttpForbidden
	}

	outcome, err := api.service.Send(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, MessageResponse{Message: string(outcome)})
}

func (api dispatchAPI) scheduleEmails(ctx echo.Context) error {
	res, err := api.service.Scan(ctx.Request().Context(), api.now())
	if err != nil {
		if errors.Cause(err) == dispatch.ErrAllFailed {
			return ctx.JSON(http.StatusBadGateway, echo.Map{"error": err.Error(), "result": res})
		}
		return err
	}
	return ctx.JSON(http.StatusOK, ScheduleResponse{Message: "survey emails scheduled", Result: res})
}
