package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/databayt/hogwarts-sub013/core"
	"github.com/databayt/hogwarts-sub013/core/user"
)

const (
	msgUnauthorized    = "Unauthorized"
	msgForbidden       = "Insufficient permissions"
	msgInvalidInput    = "Invalid input"
	msgInternalFailure = "Something went wrong. Please try again later."
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, msgUnauthorized)
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountDeactivated   = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errSchoolUnavailable    = echo.NewHTTPError(http.StatusForbidden, "school unavailable")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, msgForbidden)
	errHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")
)

type (
	// successResponse is the envelope of every successful JSON response.
	successResponse struct {
		Success bool        `json:"success"`
		Data    interface{} `json:"data"`
	}

	failureResponse struct {
		Success bool              `json:"success"`
		Error   string            `json:"error"`
		Fields  map[string]string `json:"fields,omitempty"`
	}
)

func ok(ctx echo.Context, data interface{}) error {
	return ctx.JSON(http.StatusOK, successResponse{Success: true, Data: data})
}

func created(ctx echo.Context, data interface{}) error {
	return ctx.JSON(http.StatusCreated, successResponse{Success: true, Data: data})
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		resp := failureResponse{}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				origErr = errUnauthorized
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			switch code {
			case http.StatusUnauthorized:
				resp.Error = msgUnauthorized
			case http.StatusForbidden:
				resp.Error = msgForbidden
				if m, ok := origErr.Message.(string); ok && m != "" {
					resp.Error = m
				}
			default:
				if m, ok := origErr.Message.(string); ok {
					resp.Error = m
				} else {
					resp.Error = http.StatusText(code)
				}
			}
		case validator.ValidationErrors:
			resp.Error = msgInvalidInput
			resp.Fields = make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				resp.Fields[vErr.Field()] = vErr.Translate(core.Translator)
			}
			code = http.StatusBadRequest
		case *core.ValidationError:
			if len(origErr.Fields) > 0 {
				resp.Fields = make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					resp.Fields[fErr.Field] = fErr.Error
				}
			}
			resp.Error = origErr.Error()
			if resp.Error == "" {
				resp.Error = msgInvalidInput
			}
			code = http.StatusBadRequest
		case *core.NotFoundError:
			code = http.StatusNotFound
			resp.Error = origErr.Error()
		default:
			if errors.Is(err, core.ErrForbidden) {
				code = http.StatusForbidden
				resp.Error = msgForbidden
				break
			}

			// any other error is a server error
			code = http.StatusInternalServerError
			resp.Error = msgInternalFailure

			var usr user.User
			if claims, cErr := getContextClaims(ctx); cErr == nil {
				usr.ID = claims.Subject
				usr.SchoolID = claims.SchoolID
				usr.Username = claims.Username
				usr.Email = claims.Email
			}
			logger.Error(http.StatusText(code), errors.WithStack(err), usr, map[string]interface{}{
				"method": ctx.Request().Method,
				"path":   ctx.Path(),
			})

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug && code >= http.StatusInternalServerError {
			resp.Error = err.Error()
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, resp)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
