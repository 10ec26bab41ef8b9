package assessment

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	// errors
	ErrNotFound = errors.New("assessment not found")
)

type (
	Repository interface {
		GetAssessment(ctx context.Context, id string) (Assessment, error)
		// SaveAssessment creates the assessment or replaces it with its questions.
		SaveAssessment(ctx context.Context, a Assessment) (Assessment, error)
		QueryAssessments(ctx context.Context) ([]Assessment, error)
	}

	// Catalog is the read-mostly assessment service. Attempts never mutate an assessment.
	Catalog struct {
		repo Repository
	}
)

func NewCatalog(repo Repository) *Catalog {
	return &Catalog{repo: repo}
}

func (c *Catalog) Get(ctx context.Context, id string) (Assessment, error) {
	return c.repo.GetAssessment(ctx, id)
}

func (c *Catalog) Summary(ctx context.Context, id string) (Summary, error) {
	a, err := c.repo.GetAssessment(ctx, id)
	if err != nil {
		return Summary{}, err
	}
	return a.Summary(), nil
}

func (c *Catalog) Query(ctx context.Context) ([]Summary, error) {
	all, err := c.repo.QueryAssessments(ctx)
	if err != nil {
		return nil, err
	}
	sums := make([]Summary, 0, len(all))
	for _, a := range all {
		sums = append(sums, a.Summary())
	}
	return sums, nil
}

// Save validates then creates or replaces an assessment (admin seeding).
func (c *Catalog) Save(ctx context.Context, validate *validator.Validate, na NewAssessment) (Assessment, error) {
	if err := na.Validate(validate); err != nil {
		return Assessment{}, err
	}
	return c.repo.SaveAssessment(ctx, Assessment{
		ID:                 na.ID,
		Title:              na.Title,
		Description:        na.Description,
		TimeLimitMinutes:   na.TimeLimitMinutes,
		PassingScore:       na.PassingScore,
		ShowScore:          na.ShowScore,
		ShowCorrectAnswers: na.ShowCorrectAnswers,
		Questions:          na.Questions,
		CreatedAt:          time.Now().UTC(),
	})
}
