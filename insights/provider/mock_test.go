package provider

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/theimaginaryfoundation/review-insights/insights"
)

func fixedNow() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }

func TestMock_ExtractPassesAnalysisValidation(t *testing.T) {
	t.Parallel()

	m := &Mock{Now: fixedNow}
	a := insights.NewAnalyzer(m, 0)
	res, err := a.Analyze(context.Background(), strings.Join([]string{
		"2024-05-02 Love the fit, great price. 5 stars",
		"Arrived late and the box was damaged. 1/5",
		"",
		"It is okay I guess",
	}, "\n"))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(res.Reviews) != 3 {
		t.Fatalf("Reviews=%+v", res.Reviews)
	}
	if r := res.Reviews[0]; r.Sentiment != insights.SentimentPositive || r.Rating != 5 || r.Date != "2024-05-02" {
		t.Fatalf("review 0=%+v", r)
	}
	if r := res.Reviews[1]; r.Sentiment != insights.SentimentNegative || r.Rating != 1 || r.Date != "2024-06-01" {
		t.Fatalf("review 1=%+v", r)
	}
	if r := res.Reviews[2]; r.Sentiment != insights.SentimentNeutral {
		t.Fatalf("review 2=%+v", r)
	}
	if len(res.PositiveKeywords) == 0 || len(res.NegativeKeywords) == 0 {
		t.Fatalf("keywords pos=%v neg=%v", res.PositiveKeywords, res.NegativeKeywords)
	}
}

func TestMock_StreamConversationUsesGrounding(t *testing.T) {
	t.Parallel()

	m := NewMock()
	stream, err := m.StreamConversation(context.Background(), "intro\nSummary: buyers like the fit\nmore", nil, "what now?")
	if err != nil {
		t.Fatalf("StreamConversation: %v", err)
	}
	var b strings.Builder
	n := 0
	for stream.Next() {
		b.WriteString(stream.Current())
		n++
	}
	if stream.Err() != nil {
		t.Fatalf("Err=%v", stream.Err())
	}
	if n < 2 {
		t.Fatalf("expected several fragments, got %d", n)
	}
	if !strings.Contains(b.String(), "buyers like the fit") || !strings.Contains(b.String(), `"what now?"`) {
		t.Fatalf("reply=%q", b.String())
	}
}

func TestMock_StreamStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := NewMock().StreamConversation(ctx, "Summary: x", nil, "q")
	if err != nil {
		t.Fatalf("StreamConversation: %v", err)
	}
	if !stream.Next() {
		t.Fatalf("first Next=false")
	}
	cancel()
	if stream.Next() {
		t.Fatalf("Next after cancel=true")
	}
	if stream.Err() == nil {
		t.Fatalf("Err=nil after cancel")
	}
}
