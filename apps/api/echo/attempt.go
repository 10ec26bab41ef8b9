package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/assessly/core/assessment"
	"github.com/trezcool/assessly/core/attempt"
)

type attemptAPI struct {
	catalog  *assessment.Catalog
	svc      *attempt.Service
	validate *validator.Validate
}

// answerPath identifies the answer slot written by a PUT.
type answerPath struct {
	AttemptID  string `json:"id" validate:"required,uuid"`
	QuestionID string `json:"question_id" validate:"required,alphanum_"`
}

func registerAttemptAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	catalog *assessment.Catalog,
	svc *attempt.Service,
	validate *validator.Validate,
) {
	api := attemptAPI{
		catalog:  catalog,
		svc:      svc,
		validate: validate,
	}

	ag := g.Group("/assessments/:id", jwt, learnerMiddleware)
	ag.GET("", api.retrieveAssessment)
	ag.GET("/attempts/in-progress", api.findInProgress)
	ag.POST("/attempts", api.start)

	tg := g.Group("/attempts/:id", jwt, learnerMiddleware)
	tg.GET("", api.retrieve)
	tg.PUT("/answers/:questionId", api.saveAnswer)
	tg.POST("/submit", api.submit)
}

// Handlers

func (api *attemptAPI) retrieveAssessment(ctx echo.Context) error {
	sum, err := api.catalog.Summary(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sum)
}

func (api *attemptAPI) findInProgress(ctx echo.Context) error {
	learner, err := getContextLearner(ctx)
	if err != nil {
		return err
	}
	a, err := api.svc.FindInProgress(ctx.Request().Context(), learner, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *attemptAPI) start(ctx echo.Context) error {
	learner, err := getContextLearner(ctx)
	if err != nil {
		return err
	}
	a, err := api.svc.Start(ctx.Request().Context(), learner, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, a)
}

func (api *attemptAPI) retrieve(ctx echo.Context) error {
	learner, err := getContextLearner(ctx)
	if err != nil {
		return err
	}
	d, err := api.svc.Detail(ctx.Request().Context(), learner, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, d)
}

func (api *attemptAPI) saveAnswer(ctx echo.Context) error {
	learner, err := getContextLearner(ctx)
	if err != nil {
		return err
	}
	path := answerPath{AttemptID: ctx.Param("id"), QuestionID: ctx.Param("questionId")}
	if err = api.validate.Struct(path); err != nil {
		return err
	}

	ans := new(attempt.Answer)
	if err = ctx.Bind(ans); err != nil {
		return err
	}
	if err = api.svc.SaveAnswer(ctx.Request().Context(), learner, path.AttemptID, path.QuestionID, *ans); err != nil {
		return errors.Wrap(err, "saving answer")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *attemptAPI) submit(ctx echo.Context) error {
	learner, err := getContextLearner(ctx)
	if err != nil {
		return err
	}
	res, err := api.svc.Submit(ctx.Request().Context(), learner, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}
