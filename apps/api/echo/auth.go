package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/assessly/core"
)

var (
	contextTokenKey   = "learnerToken"
	contextLearnerKey = "learner"
)

// Claims represents the authorization claims transmitted via a JWT. Subject is the learner ID.
type Claims struct {
	jwt.StandardClaims
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

func (c Claims) Learner() core.Learner {
	return core.Learner{ID: c.Subject, Name: c.Name, Email: c.Email}
}

func NewLearnerClaims(conf *core.Config, learner core.Learner) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   learner.ID,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		Name:  learner.Name,
		Email: learner.Email,
	}
}

// GenerateToken generates a signed JWT token string representing the learner Claims.
func GenerateToken(secretKey string, claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.GetSigningMethod(middleware.AlgorithmHS256), claims)
	ss, err := token.SignedString([]byte(secretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func newJWTConfig(secretKey string) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(secretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
	}
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func getContextLearner(ctx echo.Context) (core.Learner, error) {
	if learner, ok := ctx.Get(contextLearnerKey).(core.Learner); ok {
		return learner, nil
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return core.Learner{}, err
	}
	return claims.Learner(), nil
}
