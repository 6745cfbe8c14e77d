package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/feeded/core"
	"github.com/trezcool/feeded/core/user"
)

var (
	errUnauthorized       = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAccountDeactivated = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired     = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden      = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errInvalidAPIKey      = echo.NewHTTPError(http.StatusUnauthorized, "invalid API key")
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case *core.ValidationError:
			code = http.StatusBadRequest
			if len(origErr.Fields) > 0 {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = echo.Map{"error": origErr.Error(), "fields": fldErrs}
			} else {
				message = origErr.Error()
			}
		case *core.NotFoundError:
			code = http.StatusNotFound
			message = origErr.Error()
		case *core.ConflictError:
			code = http.StatusConflict
			message = origErr.Error()
		default: // any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			usr, _ := ctx.Get(contextUserKey).(user.User)
			logger.Error(msg, errors.Wrap(err, msg), usr)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if m, ok := message.(string); ok {
			if ctx.Echo().Debug && code == http.StatusInternalServerError {
				m = err.Error()
			}
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
