package attemptapi_test

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/assessly/core/assessment"
	"github.com/trezcool/assessly/core/attempt"
	"github.com/trezcool/assessly/services/attemptapi"
)

func newClient(t *testing.T, h http.HandlerFunc) *attemptapi.Client {
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := attemptapi.New(srv.URL+"/v1", "tok", time.Second)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		token   string
		wantErr bool
	}{
		{name: "ok", baseURL: "http://localhost/v1", token: "tok"},
		{name: "no base url", token: "tok", wantErr: true},
		{name: "no token", baseURL: "http://localhost/v1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := attemptapi.New(tt.baseURL, tt.token, 0)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v; wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestClient_Requests(t *testing.T) {
	type call struct {
		method, path, auth, body string
	}
	var (
		mu  sync.Mutex
		got call
	)
	last := func() call {
		mu.Lock()
		defer mu.Unlock()
		return got
	}
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := ioutil.ReadAll(r.Body)
		mu.Lock()
		got = call{method: r.Method, path: r.URL.EscapedPath(), auth: r.Header.Get("Authorization"), body: string(body)}
		mu.Unlock()
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v1/assessments/quiz":
			writeJSON(w, http.StatusOK, assessment.Summary{ID: "quiz", Title: "Quiz", QuestionCount: 2})
		case r.Method == http.MethodPost && r.URL.Path == "/v1/assessments/quiz/attempts":
			writeJSON(w, http.StatusCreated, attempt.Attempt{ID: "a1", AssessmentID: "quiz", Status: attempt.StatusInProgress, StartedAt: started})
		case r.Method == http.MethodPut:
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodPost && r.URL.Path == "/v1/attempts/a1/submit":
			writeJSON(w, http.StatusOK, attempt.Result{AttemptID: "a1", Status: attempt.StatusCompleted, Answered: 1, QuestionCount: 2})
		default:
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		}
	})
	ctx := context.Background()

	sum, err := c.AssessmentSummary(ctx, "quiz")
	require.NoError(t, err)
	assert.Equal(t, "Quiz", sum.Title)
	assert.Equal(t, "Bearer tok", last().auth)

	a, err := c.StartAttempt(ctx, "quiz")
	require.NoError(t, err)
	assert.Equal(t, "a1", a.ID)
	assert.True(t, a.StartedAt.Equal(started))

	require.NoError(t, c.SaveAnswer(ctx, "a1", "q 1", attempt.ChoiceAnswer("x")))
	put := last()
	assert.Equal(t, http.MethodPut, put.method)
	assert.Equal(t, "/v1/attempts/a1/answers/q%201", put.path)
	assert.JSONEq(t, `{"kind":"choice","selected_option_ids":["x"]}`, put.body)

	res, err := c.SubmitAttempt(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, attempt.StatusCompleted, res.Status)
}

func TestClient_FindInProgressAttempt(t *testing.T) {
	tests := []struct {
		name      string
		code      int
		wantFound bool
		wantKind  attempt.ErrorKind
		wantErr   bool
	}{
		{name: "found", code: http.StatusOK, wantFound: true},
		{name: "none", code: http.StatusNotFound},
		{name: "server error", code: http.StatusInternalServerError, wantKind: attempt.KindUnavailable, wantErr: true},
		{name: "unauthorized", code: http.StatusUnauthorized, wantKind: attempt.KindUnauthorized, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				if tt.code == http.StatusOK {
					writeJSON(w, tt.code, attempt.Attempt{ID: "a1", Status: attempt.StatusInProgress})
					return
				}
				writeJSON(w, tt.code, map[string]string{"error": http.StatusText(tt.code)})
			})
			a, found, err := c.FindInProgressAttempt(context.Background(), "quiz")
			if (err != nil) != tt.wantErr {
				t.Fatalf("FindInProgressAttempt() error = %v; wantErr %v", err, tt.wantErr)
			}
			if found != tt.wantFound {
				t.Errorf("FindInProgressAttempt() found = %v; want %v", found, tt.wantFound)
			}
			if found && a.ID != "a1" {
				t.Errorf("FindInProgressAttempt() id = %q; want %q", a.ID, "a1")
			}
			if tt.wantErr && attempt.KindOf(err) != tt.wantKind {
				t.Errorf("KindOf() = %v; want %v", attempt.KindOf(err), tt.wantKind)
			}
		})
	}
}

func TestClient_ErrorKinds(t *testing.T) {
	tests := []struct {
		code int
		want attempt.ErrorKind
	}{
		{http.StatusBadRequest, attempt.KindInvalid},
		{http.StatusUnprocessableEntity, attempt.KindInvalid},
		{http.StatusUnauthorized, attempt.KindUnauthorized},
		{http.StatusForbidden, attempt.KindUnauthorized},
		{http.StatusNotFound, attempt.KindNotFound},
		{http.StatusConflict, attempt.KindConflict},
		{http.StatusGone, attempt.KindClosed},
		{http.StatusServiceUnavailable, attempt.KindUnavailable},
		{http.StatusTeapot, attempt.KindUnknown},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.code), func(t *testing.T) {
			c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.code, map[string]string{"error": "nope"})
			})
			err := c.SaveAnswer(context.Background(), "a1", "q1", attempt.TextAnswer("x"))
			if got := attempt.KindOf(err); got != tt.want {
				t.Errorf("KindOf(%v) = %v; want %v", err, got, tt.want)
			}
			assert.Contains(t, err.Error(), "nope")
		})
	}
}

func TestClient_Unavailable(t *testing.T) {
	t.Run("timeout", func(t *testing.T) {
		block := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-block:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(block)

		c, err := attemptapi.New(srv.URL, "tok", 50*time.Millisecond)
		require.NoError(t, err)
		_, err = c.SubmitAttempt(context.Background(), "a1")
		assert.True(t, attempt.IsKind(err, attempt.KindUnavailable), "err = %v", err)
	})

	t.Run("connection refused", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		c, err := attemptapi.New(url, "tok", time.Second)
		require.NoError(t, err)
		_, err = c.GetAttemptDetail(context.Background(), "a1")
		assert.True(t, attempt.IsKind(err, attempt.KindUnavailable), "err = %v", err)
	})
}
