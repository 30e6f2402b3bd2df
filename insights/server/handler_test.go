package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/theimaginaryfoundation/review-insights/insights"
	"github.com/theimaginaryfoundation/review-insights/insights/metrics"
	"github.com/theimaginaryfoundation/review-insights/insights/provider"
)

const sampleReviews = "2024-05-01 Love it, great quality. 5 stars\n2024-05-02 Broken on arrival, terrible support. 1 star\n2024-05-03 It does the job. 4/5"

func newTestRouter(t *testing.T) (*gin.Engine, *metrics.Metrics) {
	t.Helper()
	return newTestRouterWith(t, Options{})
}

func newTestRouterWith(t *testing.T, opts Options) (*gin.Engine, *metrics.Metrics) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	mock := provider.NewMock()
	reg := NewRegistry(func(id string) *insights.Session {
		return insights.NewSession(id, insights.NewAnalyzer(mock, 0), insights.NewChatEngine(mock, 0))
	}, 0)
	m := metrics.New()
	return NewRouter(reg, m, opts), m
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func createSession(t *testing.T, r http.Handler) string {
	t.Helper()
	w := do(r, http.MethodPost, "/api/sessions", "")
	require.Equal(t, http.StatusCreated, w.Code)
	var out struct {
		SessionID string `json:"sessionId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.NotEmpty(t, out.SessionID)
	return out.SessionID
}

func analyzeBody(t *testing.T, text string) string {
	t.Helper()
	b, err := json.Marshal(analyzeRequest{Text: text})
	require.NoError(t, err)
	return string(b)
}

func TestHandler_AnalyzeThenGetSession(t *testing.T) {
	r, _ := newTestRouter(t)
	id := createSession(t, r)

	w := do(r, http.MethodGet, "/api/sessions/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	var empty sessionView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &empty))
	assert.Nil(t, empty.Result)
	assert.Nil(t, empty.Stats)
	assert.Empty(t, empty.Reviews)

	w = do(r, http.MethodPost, "/api/sessions/"+id+"/analysis", analyzeBody(t, sampleReviews))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var v sessionView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	require.NotNil(t, v.Result)
	require.NotNil(t, v.Stats)
	assert.Len(t, v.Reviews, 3)
	assert.Equal(t, 3, v.Stats.TotalReviews)
	assert.Equal(t, 3.3, v.Stats.AverageRating)
	assert.Equal(t, 33, v.Stats.PositivePercent)
	assert.Len(t, v.Result.ActionableImprovements, 3)
	assert.Equal(t, sampleReviews, v.LastInput)
	for _, k := range v.Result.PositiveKeywords {
		assert.Equal(t, insights.KeywordPositive, k.Type)
	}
}

func TestHandler_AnalyzeRejectsEmptyText(t *testing.T) {
	r, _ := newTestRouter(t)
	id := createSession(t, r)

	w := do(r, http.MethodPost, "/api/sessions/"+id+"/analysis", analyzeBody(t, "  \n "))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/sessions/"+id+"/analysis", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_UnknownSession(t *testing.T) {
	r, _ := newTestRouter(t)
	for _, tc := range []struct{ method, path, body string }{
		{http.MethodGet, "/api/sessions/nope", ""},
		{http.MethodPost, "/api/sessions/nope/analysis", `{"text":"x"}`},
		{http.MethodPut, "/api/sessions/nope/filter", `{"star":3}`},
		{http.MethodGet, "/api/sessions/nope/messages", ""},
		{http.MethodPost, "/api/sessions/nope/chat", `{"message":"x"}`},
	} {
		w := do(r, tc.method, tc.path, tc.body)
		assert.Equal(t, http.StatusNotFound, w.Code, "%s %s", tc.method, tc.path)
	}
}

func TestHandler_SetFilter(t *testing.T) {
	r, _ := newTestRouter(t)
	id := createSession(t, r)
	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/sessions/"+id+"/analysis", analyzeBody(t, sampleReviews)).Code)

	w := do(r, http.MethodPut, "/api/sessions/"+id+"/filter", `{"star":5}`)
	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		StarFilter *int              `json:"starFilter"`
		Reviews    []insights.Review `json:"reviews"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.NotNil(t, out.StarFilter)
	assert.Equal(t, 5, *out.StarFilter)
	require.Len(t, out.Reviews, 1)
	assert.Equal(t, "r1", out.Reviews[0].ID)

	w = do(r, http.MethodPut, "/api/sessions/"+id+"/filter", `{"star":7}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPut, "/api/sessions/"+id+"/filter", `{"star":null}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Nil(t, out.StarFilter)
	assert.Len(t, out.Reviews, 3)
}

func TestHandler_ChatRequiresAnalysis(t *testing.T) {
	r, _ := newTestRouter(t)
	id := createSession(t, r)

	w := do(r, http.MethodPost, "/api/sessions/"+id+"/chat", `{"message":"hi"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(r, http.MethodPost, "/api/sessions/"+id+"/chat", `{"message":"   "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_ChatStreamsEvents(t *testing.T) {
	r, _ := newTestRouter(t)
	id := createSession(t, r)
	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/sessions/"+id+"/analysis", analyzeBody(t, sampleReviews)).Code)

	w := do(r, http.MethodPost, "/api/sessions/"+id+"/chat", `{"message":"What should we fix?"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	body := w.Body.String()
	assert.Contains(t, body, "event: message\n")
	assert.Contains(t, body, `"isThinking":true`)
	assert.True(t, strings.HasSuffix(body, "event: done\ndata: {}\n\n"), body)
	assert.NotContains(t, body, "event: error")

	w = do(r, http.MethodGet, "/api/sessions/"+id+"/messages", "")
	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		Messages []insights.ChatMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out.Messages, 2)
	assert.Equal(t, insights.ChatMessage{Role: insights.RoleUser, Text: "What should we fix?"}, out.Messages[0])
	assert.Equal(t, insights.RoleModel, out.Messages[1].Role)
	assert.False(t, out.Messages[1].IsThinking)
	assert.Contains(t, out.Messages[1].Text, "What should we fix?")
}

func TestHandler_ChatCountsOnlyStreamedFragments(t *testing.T) {
	r, m := newTestRouter(t)
	id := createSession(t, r)
	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/sessions/"+id+"/analysis", analyzeBody(t, sampleReviews)).Code)

	w := do(r, http.MethodPost, "/api/sessions/"+id+"/chat", `{"message":"Summarize please"}`)
	require.Equal(t, http.StatusOK, w.Code)

	// One event for the placeholder and one for the final message surround the fragments.
	events := strings.Count(w.Body.String(), "event: message\n")
	require.Greater(t, events, 2)

	mw := httptest.NewRecorder()
	m.Handler().ServeHTTP(mw, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, mw.Body.String(), fmt.Sprintf("review_insights_chat_fragments_total %d\n", events-2))
	assert.Contains(t, mw.Body.String(), `review_insights_chat_turns_total{outcome="ok"} 1`)
}

func TestHandler_RejectsOversizedBody(t *testing.T) {
	r, _ := newTestRouterWith(t, Options{MaxBodyBytes: 256})
	id := createSession(t, r)

	w := do(r, http.MethodPost, "/api/sessions/"+id+"/analysis", analyzeBody(t, strings.Repeat("Great value. ", 100)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = do(r, http.MethodPost, "/api/sessions/"+id+"/analysis", analyzeBody(t, "Great value. 5 stars"))
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestHandler_HealthzAndMetrics(t *testing.T) {
	r, _ := newTestRouter(t)
	createSession(t, r)

	w := do(r, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","sessions":1}`, w.Body.String())

	w = do(r, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "review_insights_sessions_active 1")
}
