// Package attemptapi is the HTTP client the player engine uses to reach the attempt API.
package attemptapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/sendgrid/rest"

	"github.com/trezcool/assessly/core"
	"github.com/trezcool/assessly/core/assessment"
	"github.com/trezcool/assessly/core/attempt"
	"github.com/trezcool/assessly/core/player"
)

type Client struct {
	baseURL string
	token   string
	timeout time.Duration
	rest    *rest.Client
}

var (
	_ player.AttemptService = (*Client)(nil)
	_ player.Catalog        = (*Client)(nil)
)

// New returns a client for the API rooted at baseURL (e.g. http://localhost:8000/v1).
// Each request is bounded by timeout; zero means no client-side bound.
func New(baseURL, token string, timeout time.Duration) (*Client, error) {
	if err := vala.BeginValidation().Validate(
		vala.StringNotEmpty(baseURL, "baseURL"),
		vala.StringNotEmpty(token, "token"),
	).Check(); err != nil {
		return nil, err
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, errors.Wrap(err, "parsing base url")
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		timeout: timeout,
		rest:    &rest.Client{HTTPClient: &http.Client{}},
	}, nil
}

func NewFromConfig(conf core.PlayerConfig) (*Client, error) {
	return New(conf.APIBaseURL, conf.Token, conf.RequestTimeout)
}

// errorBody is the error payload written by the API.
type errorBody struct {
	Error string `json:"error"`
}

func (c *Client) path(segments ...string) string {
	var b strings.Builder
	b.WriteString(c.baseURL)
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	return b.String()
}

// do sends the request and decodes a successful response into out (when not nil).
// Every failure comes back as an *attempt.ServiceError.
func (c *Client) do(ctx context.Context, op string, method rest.Method, endpoint string, in, out interface{}) error {
	req := rest.Request{
		Method:  method,
		BaseURL: endpoint,
		Headers: map[string]string{
			"Authorization": "Bearer " + c.token,
			"Accept":        "application/json",
		},
	}
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return &attempt.ServiceError{Op: op, Kind: attempt.KindInvalid, Err: err}
		}
		req.Body = body
		req.Headers["Content-Type"] = "application/json"
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	res, err := c.rest.SendWithContext(ctx, req)
	if err != nil {
		return &attempt.ServiceError{Op: op, Kind: attempt.KindUnavailable, Err: err}
	}
	if res.StatusCode >= http.StatusBadRequest {
		return &attempt.ServiceError{Op: op, Kind: kindOfStatus(res.StatusCode), Err: statusError(res)}
	}
	if out == nil || res.StatusCode == http.StatusNoContent {
		return nil
	}
	if err = json.Unmarshal([]byte(res.Body), out); err != nil {
		return &attempt.ServiceError{Op: op, Kind: attempt.KindUnknown, Err: errors.Wrap(err, "decoding response")}
	}
	return nil
}

func kindOfStatus(code int) attempt.ErrorKind {
	switch code {
	case http.StatusNotFound:
		return attempt.KindNotFound
	case http.StatusConflict:
		return attempt.KindConflict
	case http.StatusGone:
		return attempt.KindClosed
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return attempt.KindInvalid
	case http.StatusUnauthorized, http.StatusForbidden:
		return attempt.KindUnauthorized
	}
	if code >= http.StatusInternalServerError || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout {
		return attempt.KindUnavailable
	}
	return attempt.KindUnknown
}

func statusError(res *rest.Response) error {
	var body errorBody
	if err := json.Unmarshal([]byte(res.Body), &body); err == nil && body.Error != "" {
		return errors.Errorf("%d: %s", res.StatusCode, body.Error)
	}
	return errors.Errorf("%d: %s", res.StatusCode, http.StatusText(res.StatusCode))
}

func (c *Client) AssessmentSummary(ctx context.Context, id string) (assessment.Summary, error) {
	var sum assessment.Summary
	err := c.do(ctx, "get assessment", rest.Get, c.path("assessments", id), nil, &sum)
	return sum, err
}

// FindInProgressAttempt reports found=false when the API answers 404.
func (c *Client) FindInProgressAttempt(ctx context.Context, assessmentID string) (attempt.Attempt, bool, error) {
	var a attempt.Attempt
	err := c.do(ctx, "find in-progress attempt", rest.Get, c.path("assessments", assessmentID, "attempts", "in-progress"), nil, &a)
	if attempt.IsKind(err, attempt.KindNotFound) {
		return attempt.Attempt{}, false, nil
	}
	if err != nil {
		return attempt.Attempt{}, false, err
	}
	return a, true, nil
}

func (c *Client) StartAttempt(ctx context.Context, assessmentID string) (attempt.Attempt, error) {
	var a attempt.Attempt
	err := c.do(ctx, "start attempt", rest.Post, c.path("assessments", assessmentID, "attempts"), nil, &a)
	return a, err
}

func (c *Client) GetAttemptDetail(ctx context.Context, attemptID string) (attempt.Detail, error) {
	var d attempt.Detail
	err := c.do(ctx, "get attempt", rest.Get, c.path("attempts", attemptID), nil, &d)
	return d, err
}

func (c *Client) SaveAnswer(ctx context.Context, attemptID, questionID string, ans attempt.Answer) error {
	return c.do(ctx, "save answer", rest.Put, c.path("attempts", attemptID, "answers", questionID), ans, nil)
}

func (c *Client) SubmitAttempt(ctx context.Context, attemptID string) (attempt.Result, error) {
	var res attempt.Result
	err := c.do(ctx, "submit attempt", rest.Post, c.path("attempts", attemptID, "submit"), nil, &res)
	return res, err
}
