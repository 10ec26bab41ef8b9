package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/assessly/core"
	"github.com/trezcool/assessly/core/assessment"
	"github.com/trezcool/assessly/core/attempt"
)

var (
	errUnauthorized = echo.NewHTTPError(http.StatusUnauthorized, "learner not authenticated")
)

// statusOf maps the domain sentinels to HTTP statuses. ok is false for any other error.
func statusOf(err error) (code int, ok bool) {
	switch {
	case errors.Is(err, attempt.ErrNotFound), errors.Is(err, assessment.ErrNotFound):
		return http.StatusNotFound, true
	case errors.Is(err, attempt.ErrConflict):
		return http.StatusConflict, true
	case errors.Is(err, attempt.ErrNotInProgress), errors.Is(err, attempt.ErrDeadlinePassed):
		return http.StatusGone, true
	case errors.Is(err, attempt.ErrUnknownQuestion), errors.Is(err, attempt.ErrAnswerMismatch):
		return http.StatusBadRequest, true
	}
	return 0, false
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
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
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		default:
			if c, ok := statusOf(err); ok {
				code = c
				message = err.Error()
				break
			}

			// any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			var learner core.Learner
			if claims, cErr := getContextClaims(ctx); cErr == nil {
				learner = claims.Learner()
			}
			logger.Error(msg, errors.Wrap(err, msg), learner)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
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
