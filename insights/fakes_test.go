package insights

import (
	"context"
	"sync"
)

const validAnalysisJSON = `{
  "reviews": [
    {"id": "r1", "date": "2024-03-01", "rating": 5, "sentiment": "positive", "text": "Love it", "score": 0.95},
    {"id": "r2", "date": "2024-03-02T10:00:00Z", "rating": 2, "sentiment": "negative", "text": "Arrived late", "score": 0.2},
    {"id": "r3", "date": "2024-03-03", "rating": 4, "sentiment": "positive", "text": "Good value", "score": 0.8},
    {"id": "r4", "date": "2024-03-04", "rating": 1, "sentiment": "negative", "text": "Broken on arrival", "score": 0.05},
    {"id": "r5", "date": "2024-03-05", "rating": 5, "sentiment": "positive", "text": "Perfect fit", "score": 0.9},
    {"id": "r6", "date": "2024-03-06", "rating": 3, "sentiment": "neutral", "text": "It is fine", "score": 0.5}
  ],
  "positiveKeywords": [{"text": "fit", "value": 3, "type": "negative"}, {"text": "value", "value": 1}],
  "negativeKeywords": [{"text": "shipping", "value": 2, "type": "positive"}],
  "summary": " Customers like the fit but complain about shipping. ",
  "actionableImprovements": ["Speed up shipping", "Improve packaging", "Add size guide"],
  "trendAnalysis": "Stable.",
  "mostLiked": ["fit", "value"],
  "mostDisliked": ["shipping"]
}`

type fakeExtractor struct {
	mu    sync.Mutex
	raw   string
	err   error
	calls int
	last  ExtractRequest
	// block, when set, holds Extract until it is closed.
	block chan struct{}
}

func (f *fakeExtractor) Extract(ctx context.Context, req ExtractRequest) (string, error) {
	f.mu.Lock()
	f.calls++
	f.last = req
	block := f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.raw, f.err
}

type fakeStreamer struct {
	mu        sync.Mutex
	fragments []string
	err       error
	openErr   error
	systems   []string
	histories [][]ConversationTurn
	messages  []string
}

func (f *fakeStreamer) StreamConversation(ctx context.Context, system string, history []ConversationTurn, message string) (FragmentStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.systems = append(f.systems, system)
	f.histories = append(f.histories, history)
	f.messages = append(f.messages, message)
	if f.openErr != nil {
		return nil, f.openErr
	}
	return &sliceStream{fragments: f.fragments, err: f.err, pos: -1}, nil
}

type sliceStream struct {
	fragments []string
	err       error
	pos       int
	closed    bool
}

func (s *sliceStream) Next() bool {
	s.pos++
	return s.pos < len(s.fragments)
}

func (s *sliceStream) Current() string { return s.fragments[s.pos] }

func (s *sliceStream) Err() error {
	if s.pos >= len(s.fragments) {
		return s.err
	}
	return nil
}

func (s *sliceStream) Close() error {
	s.closed = true
	return nil
}
