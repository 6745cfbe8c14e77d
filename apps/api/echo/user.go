package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/feeded/core"
	"github.com/trezcool/feeded/core/user"
)

type (
	LoginRequest struct {
		Email    string `json:"email" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token string `json:"token"`
	}

	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}
)

type userAPI struct {
	auth    authenticator
	service *user.Service
	logger  core.Logger
}

func registerUserAPI(g *echo.Group, authed []echo.MiddlewareFunc, auth authenticator, svc *user.Service, logger core.Logger) {
	api := userAPI{auth: auth, service: svc, logger: logger}

	// public
	ug := g.Group("/users")
	ug.POST("/login", api.login)
	ug.POST("/password-reset", api.resetPassword)
	ug.POST("/password-reset-confirm", api.confirmPasswordReset)

	// authenticated
	ag := g.Group("/users", authed...)
	ag.POST("/token-refresh", api.refreshToken)
	ag.GET("/me", api.retrieveMe)
	ag.PUT("/me/password", api.setMyPassword)
}

func (api userAPI) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return err
	}
	if err := core.ValidateStruct(data); err != nil {
		return err
	}

	usr, err := api.service.Authenticate(ctx.Request().Context(), data.Email, data.Password)
	if err != nil {
		return err
	}
	token, err := api.auth.token(api.auth.claims(usr))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api userAPI) refreshToken(ctx echo.Context) error {
	token, err := api.auth.refresh(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api userAPI) retrieveMe(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api userAPI) setMyPassword(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var data user.SetUserPassword
	if err := ctx.Bind(&data); err != nil {
		return err
	}
	usr, err = api.service.SetPassword(ctx.Request().Context(), usr.ID, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api userAPI) resetPassword(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := ctx.Bind(&data); err != nil {
		return err
	}
	if err := core.ValidateStruct(data); err != nil {
		return err
	}

	// never tell whether the account exists
	if err := api.service.RequestPasswordReset(ctx.Request().Context(), data.Email); err != nil {
		api.logger.Error(err.Error(), errors.Wrap(err, "requesting password reset"))
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{
		Success: "We've emailed you instructions for setting your password, if an account exists with the email you entered.",
	})
}

func (api userAPI) confirmPasswordReset(ctx echo.Context) error {
	var data user.ResetUserPassword
	if err := ctx.Bind(&data); err != nil {
		return err
	}
	if err := api.service.ResetPassword(ctx.Request().Context(), data); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been reset with the new password."})
}
