package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// learnerMiddleware puts the learner carried by the token in the context. Tokens without a subject are rejected.
func learnerMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context claims")
		}
		learner := claims.Learner()
		if learner.IsZero() {
			return errUnauthorized
		}
		ctx.Set(contextLearnerKey, learner)
		return next(ctx)
	}
}
