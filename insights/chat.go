package insights

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"
)

var errTurnClosed = errors.New("turn closed before the reply completed")

// ChatEngine holds one grounded conversation. The grounding snapshot is taken on the first turn and
// kept until Reset; only one turn may stream at a time.
type ChatEngine struct {
	streamer ConversationStreamer
	timeout  time.Duration

	mu         sync.Mutex
	system     string
	grounded   bool
	history    []ConversationTurn
	inFlight   bool
	generation uint64
}

// NewChatEngine returns an engine streaming through s. A zero timeout leaves deadlines to the caller.
func NewChatEngine(s ConversationStreamer, timeout time.Duration) *ChatEngine {
	return &ChatEngine{streamer: s, timeout: timeout}
}

// StartTurn sends userMessage and returns the streamed reply. analysis seeds the grounding
// instruction only if this is the first turn since the engine was created or reset.
func (e *ChatEngine) StartTurn(ctx context.Context, userMessage string, analysis AnalysisResult) (*Turn, error) {
	if strings.TrimSpace(userMessage) == "" {
		return nil, &ChatError{Err: ErrEmptyInput}
	}
	if e.streamer == nil {
		return nil, &ChatError{Err: errors.New("chat: streamer is nil")}
	}

	e.mu.Lock()
	if e.inFlight {
		e.mu.Unlock()
		return nil, ErrTurnInFlight
	}
	if !e.grounded {
		e.system = groundingInstruction(analysis)
		e.grounded = true
	}
	e.inFlight = true
	system := e.system
	history := append([]ConversationTurn(nil), e.history...)
	gen := e.generation
	e.mu.Unlock()

	var cancel context.CancelFunc
	if e.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	stream, err := e.streamer.StreamConversation(ctx, system, history, userMessage)
	if err != nil {
		cancel()
		e.release(gen)
		slog.Warn("chat stream open failed", "err", err)
		return nil, &ChatError{Err: err}
	}

	slog.Debug("chat turn started", "history", len(history))
	return &Turn{engine: e, gen: gen, message: userMessage, stream: stream, cancel: cancel}, nil
}

// Reset drops the conversation so the next turn re-captures its grounding snapshot.
// A turn still streaming finishes normally but is not recorded.
func (e *ChatEngine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.system = ""
	e.grounded = false
	e.history = nil
	e.inFlight = false
	e.generation++
}

// SystemInstruction returns the grounding instruction, or "" before the first turn.
func (e *ChatEngine) SystemInstruction() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.system
}

// History returns the completed turns sent with the next request.
func (e *ChatEngine) History() []ConversationTurn {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]ConversationTurn(nil), e.history...)
}

// Busy reports whether a turn is streaming.
func (e *ChatEngine) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inFlight
}

func (e *ChatEngine) release(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen == e.generation {
		e.inFlight = false
	}
}

func (e *ChatEngine) complete(gen uint64, message, reply string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.generation {
		return
	}
	e.history = append(e.history,
		ConversationTurn{Role: RoleUser, Text: message},
		ConversationTurn{Role: RoleModel, Text: reply},
	)
	e.inFlight = false
}

// Turn is one streamed reply. Fragments arrive through Next/Fragment in order; Text is the
// concatenation of every fragment seen so far.
type Turn struct {
	engine  *ChatEngine
	gen     uint64
	message string
	stream  FragmentStream
	cancel  context.CancelFunc

	fragment string
	acc      strings.Builder
	err      error
	done     bool
}

// Next advances to the next fragment. It returns false once the reply is complete or failed.
func (t *Turn) Next() bool {
	if t.done {
		return false
	}
	if t.stream.Next() {
		t.fragment = t.stream.Current()
		t.acc.WriteString(t.fragment)
		return true
	}
	t.finish(t.stream.Err())
	return false
}

// Fragment is the text delivered by the last successful Next.
func (t *Turn) Fragment() string { return t.fragment }

// Text is the accumulated reply.
func (t *Turn) Text() string { return t.acc.String() }

// Err is nil after a complete reply, otherwise a *ChatError carrying the partial text.
func (t *Turn) Err() error { return t.err }

// Close abandons the turn if it is still streaming. The partial reply is not recorded.
func (t *Turn) Close() error {
	if t.done {
		return nil
	}
	t.finish(errTurnClosed)
	return nil
}

func (t *Turn) finish(streamErr error) {
	t.done = true
	closeErr := t.stream.Close()
	t.cancel()

	if streamErr != nil {
		t.err = &ChatError{Partial: t.acc.String(), Err: streamErr}
		t.engine.release(t.gen)
		if !errors.Is(streamErr, errTurnClosed) {
			slog.Warn("chat stream interrupted", "err", streamErr, "partial_len", t.acc.Len())
		}
		return
	}
	if closeErr != nil {
		slog.Debug("chat stream close", "err", closeErr)
	}
	t.engine.complete(t.gen, t.message, t.acc.String())
	slog.Debug("chat turn complete", "reply_len", t.acc.Len())
}
