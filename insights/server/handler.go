package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/theimaginaryfoundation/review-insights/insights"
	"github.com/theimaginaryfoundation/review-insights/insights/metrics"
)

const analysisFailedNotice = "We couldn't analyze these reviews. Please try again."

type Handler struct {
	sessions *Registry
	metrics  *metrics.Metrics
}

func NewHandler(sessions *Registry, m *metrics.Metrics) *Handler {
	return &Handler{sessions: sessions, metrics: m}
}

type analyzeRequest struct {
	Text string `json:"text"`
}

type filterRequest struct {
	Star *int `json:"star"`
}

type chatRequest struct {
	Message string `json:"message"`
}

type sessionView struct {
	SessionID  string                   `json:"sessionId"`
	Result     *insights.AnalysisResult `json:"result"`
	Stats      *insights.DerivedStats   `json:"stats"`
	StarFilter *int                     `json:"starFilter"`
	Reviews    []insights.Review        `json:"reviews"`
	Messages   []insights.ChatMessage   `json:"messages"`
	LastInput  string                   `json:"lastInput"`
	Analyzing  bool                     `json:"analyzing"`
}

func (h *Handler) session(c *gin.Context) (*insights.Session, bool) {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return nil, false
	}
	return s, true
}

// bindJSON decodes the request body into v, answering 413 when the body exceeds the router limit.
func bindJSON(c *gin.Context, v any) bool {
	err := c.ShouldBindJSON(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit)})
		return false
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
	return false
}

func view(s *insights.Session) sessionView {
	v := sessionView{
		SessionID:  s.ID,
		StarFilter: s.StarFilter(),
		Reviews:    s.FilteredReviews(),
		Messages:   s.Messages(),
		LastInput:  s.LastInput(),
		Analyzing:  s.Analyzing(),
	}
	if r, ok := s.Result(); ok {
		v.Result = &r
	}
	if st, ok := s.DeriveStats(); ok {
		v.Stats = &st
	}
	if v.Reviews == nil {
		v.Reviews = []insights.Review{}
	}
	if v.Messages == nil {
		v.Messages = []insights.ChatMessage{}
	}
	return v
}

func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": h.sessions.Len()})
}

func (h *Handler) CreateSession(c *gin.Context) {
	s := h.sessions.Create()
	c.JSON(http.StatusCreated, gin.H{"sessionId": s.ID})
}

func (h *Handler) GetSession(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, view(s))
}

func (h *Handler) Analyze(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req analyzeRequest
	if !bindJSON(c, &req) {
		return
	}

	start := time.Now()
	_, err := s.Analyze(c.Request.Context(), req.Text)
	h.metrics.AnalysisDuration.Observe(time.Since(start).Seconds())

	var aerr *insights.AnalysisError
	switch {
	case err == nil:
		h.metrics.AnalysesTotal.WithLabelValues("ok").Inc()
	case errors.Is(err, insights.ErrAnalysisInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case errors.As(err, &aerr) && aerr.Kind == insights.AnalysisInvalidInput:
		h.metrics.AnalysesTotal.WithLabelValues(string(aerr.Kind)).Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "review text is empty"})
		return
	case errors.As(err, &aerr):
		h.metrics.AnalysesTotal.WithLabelValues(string(aerr.Kind)).Inc()
		slog.Error("analysis failed", "session", s.ID, "kind", aerr.Kind, "err", aerr.Err)
		c.JSON(http.StatusBadGateway, gin.H{"error": analysisFailedNotice, "kind": aerr.Kind})
		return
	default:
		slog.Error("analysis failed", "session", s.ID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": analysisFailedNotice})
		return
	}

	v := view(s)
	h.metrics.ReviewsAnalyzed.Add(float64(len(v.Result.Reviews)))
	c.JSON(http.StatusOK, v)
}

func (h *Handler) SetFilter(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req filterRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := s.SetStarFilter(req.Star); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	reviews := s.FilteredReviews()
	if reviews == nil {
		reviews = []insights.Review{}
	}
	c.JSON(http.StatusOK, gin.H{"starFilter": s.StarFilter(), "reviews": reviews})
}

func (h *Handler) Messages(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	msgs := s.Messages()
	if msgs == nil {
		msgs = []insights.ChatMessage{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// Chat streams one reply as server-sent events: "message" carries the live model message after
// each fragment, "error" reports a failed stream, "done" ends the response.
func (h *Handler) Chat(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req chatRequest
	if !bindJSON(c, &req) {
		return
	}

	sse := &sseWriter{c: c}
	_, err := s.Send(c.Request.Context(), req.Message, func(u insights.ChatUpdate) {
		if u.Kind == insights.UpdateFragment {
			h.metrics.ChatFragments.Inc()
		}
		sse.event("message", u.Message)
	})

	switch {
	case err == nil:
		h.metrics.ChatTurnsTotal.WithLabelValues("ok").Inc()
	case !sse.started && errors.Is(err, insights.ErrEmptyInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is empty"})
		return
	case !sse.started && (errors.Is(err, insights.ErrNoAnalysis) || errors.Is(err, insights.ErrTurnInFlight)):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	default:
		h.metrics.ChatTurnsTotal.WithLabelValues("error").Inc()
		slog.Warn("chat turn failed", "session", s.ID, "err", err)
		sse.event("error", gin.H{"error": "chat_failed", "message": insights.FallbackReply})
	}
	sse.done()
}
