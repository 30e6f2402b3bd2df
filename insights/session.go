package insights

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// FallbackReply is shown in place of (or after) a reply whose stream failed.
const FallbackReply = "Sorry, I encountered an error processing your request."

// Session owns the state of one analysis session: the current result, the star filter and the
// visible chat history. Derived views are recomputed on every read.
type Session struct {
	ID string

	analyzer *Analyzer
	chat     *ChatEngine

	mu         sync.RWMutex
	result     *AnalysisResult
	messages   []ChatMessage
	starFilter *int
	lastInput  string
	analyzing  bool
	sending    bool
	epoch      uint64
}

// NewSession wires a session to its analysis client and chat engine.
func NewSession(id string, analyzer *Analyzer, chat *ChatEngine) *Session {
	return &Session{ID: id, analyzer: analyzer, chat: chat}
}

// SetResult replaces the current result and restarts the chat.
func (s *Session) SetResult(result AnalysisResult) {
	r := result.Clone()
	s.mu.Lock()
	s.result = &r
	s.messages = nil
	s.epoch++
	s.mu.Unlock()
	if s.chat != nil {
		s.chat.Reset()
	}
}

// Result returns a copy of the current result.
func (s *Session) Result() (AnalysisResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.result == nil {
		return AnalysisResult{}, false
	}
	return s.result.Clone(), true
}

func (s *Session) DeriveStats() (DerivedStats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.result == nil {
		return DerivedStats{}, false
	}
	return DeriveStats(s.result.Reviews)
}

// FilterReviewsByStar filters the current reviews; see the package-level FilterReviewsByStar.
func (s *Session) FilterReviewsByStar(star *int) []Review {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.result == nil {
		return nil
	}
	return FilterReviewsByStar(s.result.Reviews, star)
}

// SetStarFilter stores the selected star bucket. nil clears it. The value survives new analyses.
func (s *Session) SetStarFilter(star *int) error {
	if star != nil && (*star < 0 || *star > 5) {
		return ErrInvalidStar
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if star == nil {
		s.starFilter = nil
		return nil
	}
	v := *star
	s.starFilter = &v
	return nil
}

func (s *Session) StarFilter() *int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.starFilter == nil {
		return nil
	}
	v := *s.starFilter
	return &v
}

// FilteredReviews applies the stored star filter to the current reviews.
func (s *Session) FilteredReviews() []Review {
	return s.FilterReviewsByStar(s.StarFilter())
}

// LastInput is the raw text of the most recent analysis attempt, kept for retry.
func (s *Session) LastInput() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastInput
}

func (s *Session) Analyzing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.analyzing
}

// Analyze runs one analysis. On failure the previous result stays in place.
func (s *Session) Analyze(ctx context.Context, rawText string) (AnalysisResult, error) {
	s.mu.Lock()
	if s.analyzing {
		s.mu.Unlock()
		return AnalysisResult{}, ErrAnalysisInFlight
	}
	s.analyzing = true
	s.lastInput = rawText
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.analyzing = false
		s.mu.Unlock()
	}()

	result, err := s.analyzer.Analyze(ctx, rawText)
	if err != nil {
		return AnalysisResult{}, err
	}
	s.SetResult(result)
	slog.Info("session result replaced", "session", s.ID, "reviews", len(result.Reviews))
	return result, nil
}

// Messages returns a copy of the chat history.
func (s *Session) Messages() []ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ChatMessage(nil), s.messages...)
}

func (s *Session) AppendUserMessage(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, ChatMessage{Role: RoleUser, Text: text})
}

// BeginModelMessage appends a thinking placeholder and returns it.
func (s *Session) BeginModelMessage() ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := ChatMessage{Role: RoleModel, IsThinking: true}
	s.messages = append(s.messages, m)
	return m
}

// UpdateModelMessage replaces the text of the last model message with the accumulated reply.
func (s *Session) UpdateModelMessage(text string) (ChatMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLast(s.epoch, text)
}

// FinalizeModelMessage clears the thinking flag of the last model message.
func (s *Session) FinalizeModelMessage() (ChatMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalizeLast(s.epoch)
}

// AppendFallbackMessage records a failed reply. An empty placeholder is replaced by the fallback;
// partial text is kept and the fallback follows it.
func (s *Session) AppendFallbackMessage() ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fallback(s.epoch)
}

func (s *Session) lastModel(epoch uint64) int {
	if epoch != s.epoch || len(s.messages) == 0 {
		return -1
	}
	i := len(s.messages) - 1
	if s.messages[i].Role != RoleModel {
		return -1
	}
	return i
}

func (s *Session) updateLast(epoch uint64, text string) (ChatMessage, bool) {
	i := s.lastModel(epoch)
	if i < 0 {
		return ChatMessage{}, false
	}
	s.messages[i] = ChatMessage{Role: RoleModel, Text: text}
	return s.messages[i], true
}

func (s *Session) finalizeLast(epoch uint64) (ChatMessage, bool) {
	i := s.lastModel(epoch)
	if i < 0 {
		return ChatMessage{}, false
	}
	s.messages[i].IsThinking = false
	return s.messages[i], true
}

func (s *Session) fallback(epoch uint64) ChatMessage {
	m := ChatMessage{Role: RoleModel, Text: FallbackReply}
	if epoch != s.epoch {
		return m
	}
	if i := s.lastModel(epoch); i >= 0 && s.messages[i].Text == "" {
		s.messages[i] = m
		return m
	}
	if i := s.lastModel(epoch); i >= 0 {
		s.messages[i].IsThinking = false
	}
	s.messages = append(s.messages, m)
	return m
}

// Send runs one chat turn grounded in the current result. onUpdate, if set, receives the placeholder,
// one update per fragment, then either the final message or the fallback.
// A stream failure is recorded as the fallback reply and returned as a *ChatError.
func (s *Session) Send(ctx context.Context, text string, onUpdate func(ChatUpdate)) (ChatMessage, error) {
	if strings.TrimSpace(text) == "" {
		return ChatMessage{}, &ChatError{Err: ErrEmptyInput}
	}
	notify := func(kind UpdateKind, m ChatMessage) {
		if onUpdate != nil {
			onUpdate(ChatUpdate{Kind: kind, Message: m})
		}
	}

	s.mu.Lock()
	if s.result == nil {
		s.mu.Unlock()
		return ChatMessage{}, ErrNoAnalysis
	}
	if s.sending {
		s.mu.Unlock()
		return ChatMessage{}, ErrTurnInFlight
	}
	s.sending = true
	snapshot := s.result.Clone()
	epoch := s.epoch
	s.messages = append(s.messages,
		ChatMessage{Role: RoleUser, Text: text},
		ChatMessage{Role: RoleModel, IsThinking: true},
	)
	placeholder := s.messages[len(s.messages)-1]
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.sending = false
		s.mu.Unlock()
	}()
	notify(UpdatePlaceholder, placeholder)

	fail := func(err error) (ChatMessage, error) {
		s.mu.Lock()
		m := s.fallback(epoch)
		s.mu.Unlock()
		notify(UpdateFallback, m)
		return m, err
	}

	turn, err := s.chat.StartTurn(ctx, text, snapshot)
	if err != nil {
		return fail(err)
	}
	defer turn.Close()

	for turn.Next() {
		s.mu.Lock()
		m, ok := s.updateLast(epoch, turn.Text())
		s.mu.Unlock()
		if ok {
			notify(UpdateFragment, m)
		}
	}
	if err := turn.Err(); err != nil {
		return fail(err)
	}

	s.mu.Lock()
	m, ok := s.finalizeLast(epoch)
	s.mu.Unlock()
	if !ok {
		m = ChatMessage{Role: RoleModel, Text: turn.Text()}
	}
	notify(UpdateFinal, m)
	return m, nil
}
