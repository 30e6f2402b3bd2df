package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/theimaginaryfoundation/review-insights/insights"
)

// Mock is a deterministic local backend. It treats every non-empty input line as one review and
// scores it with small cue-word lists, so the whole pipeline runs without an API key.
type Mock struct {
	// Now supplies the date for reviews that carry none. Defaults to time.Now.
	Now func() time.Time
}

var (
	_ insights.Extractor            = (*Mock)(nil)
	_ insights.ConversationStreamer = (*Mock)(nil)
)

func NewMock() *Mock { return &Mock{Now: time.Now} }

var (
	positiveCues = []string{"love", "great", "excellent", "perfect", "fast", "amazing", "good", "recommend", "comfortable", "friendly"}
	negativeCues = []string{"broken", "slow", "bad", "terrible", "late", "poor", "refund", "damaged", "rude", "cheap"}

	starsPattern = regexp.MustCompile(`(?i)\b([0-5](?:\.5)?)\s*(?:/\s*5|stars?)\b`)
	datePattern  = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
)

type mockReview struct {
	ID        string  `json:"id"`
	Date      string  `json:"date"`
	Rating    float64 `json:"rating"`
	Sentiment string  `json:"sentiment"`
	Text      string  `json:"text"`
	Score     float64 `json:"score"`
}

type mockKeyword struct {
	Text  string  `json:"text"`
	Value float64 `json:"value"`
}

type mockAnalysis struct {
	Reviews                []mockReview  `json:"reviews"`
	PositiveKeywords       []mockKeyword `json:"positiveKeywords"`
	NegativeKeywords       []mockKeyword `json:"negativeKeywords"`
	Summary                string        `json:"summary"`
	ActionableImprovements []string      `json:"actionableImprovements"`
	TrendAnalysis          string        `json:"trendAnalysis"`
	MostLiked              []string      `json:"mostLiked"`
	MostDisliked           []string      `json:"mostDisliked"`
}

func (m *Mock) Extract(ctx context.Context, req insights.ExtractRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	body := req.Input
	if i := strings.LastIndex(body, "Reviews Data:"); i >= 0 {
		body = body[i+len("Reviews Data:"):]
	}

	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	today := now().Format("2006-01-02")

	out := mockAnalysis{}
	pos := map[string]float64{}
	neg := map[string]float64{}
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		p := countCues(lower, positiveCues, pos)
		n := countCues(lower, negativeCues, neg)

		r := mockReview{
			ID:   fmt.Sprintf("r%d", len(out.Reviews)+1),
			Date: today,
			Text: line,
		}
		if d := datePattern.FindStringSubmatch(line); d != nil {
			r.Date = d[1]
		}
		switch {
		case p > n:
			r.Sentiment, r.Rating, r.Score = "positive", 5, 0.9
		case n > p:
			r.Sentiment, r.Rating, r.Score = "negative", 2, 0.15
		default:
			r.Sentiment, r.Rating, r.Score = "neutral", 3, 0.5
		}
		if s := starsPattern.FindStringSubmatch(line); s != nil {
			if v, err := strconv.ParseFloat(s[1], 64); err == nil {
				r.Rating = v
			}
		}
		out.Reviews = append(out.Reviews, r)
	}

	out.PositiveKeywords = rankKeywords(pos)
	out.NegativeKeywords = rankKeywords(neg)
	out.MostLiked = keywordTexts(out.PositiveKeywords, 3)
	out.MostDisliked = keywordTexts(out.NegativeKeywords, 3)
	out.Summary = fmt.Sprintf("%d reviews analyzed locally.", len(out.Reviews))
	out.TrendAnalysis = "Trend analysis is not available from the local backend."
	out.ActionableImprovements = []string{
		"Follow up with customers who left negative reviews.",
		"Address the most frequent complaint: " + firstOr(out.MostDisliked, "none reported") + ".",
		"Keep investing in what customers like most: " + firstOr(out.MostLiked, "none reported") + ".",
	}

	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (m *Mock) StreamConversation(ctx context.Context, system string, history []insights.ConversationTurn, message string) (insights.FragmentStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	summary := ""
	for _, line := range strings.Split(system, "\n") {
		if s, ok := strings.CutPrefix(strings.TrimSpace(line), "Summary:"); ok {
			summary = strings.TrimSpace(s)
			break
		}
	}
	reply := fmt.Sprintf("Based on the current analysis (%s), here is my answer to %q: focus on the actionable items first.", summary, message)
	return &wordStream{ctx: ctx, words: splitKeepSpace(reply), pos: -1}, nil
}

// wordStream emits a fixed reply one word at a time.
type wordStream struct {
	ctx   context.Context
	words []string
	pos   int
	err   error
}

func (w *wordStream) Next() bool {
	if w.err != nil {
		return false
	}
	if err := w.ctx.Err(); err != nil {
		w.err = err
		return false
	}
	w.pos++
	return w.pos < len(w.words)
}

func (w *wordStream) Current() string {
	if w.pos < 0 || w.pos >= len(w.words) {
		return ""
	}
	return w.words[w.pos]
}

func (w *wordStream) Err() error   { return w.err }
func (w *wordStream) Close() error { return nil }

func splitKeepSpace(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ' ' {
			out = append(out, s[start:i+1])
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

func countCues(lower string, cues []string, tally map[string]float64) int {
	n := 0
	for _, c := range cues {
		if k := strings.Count(lower, c); k > 0 {
			tally[c] += float64(k)
			n += k
		}
	}
	return n
}

func rankKeywords(tally map[string]float64) []mockKeyword {
	out := make([]mockKeyword, 0, len(tally))
	for text, v := range tally {
		out = append(out, mockKeyword{Text: text, Value: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Text < out[j].Text
	})
	return out
}

func keywordTexts(ks []mockKeyword, max int) []string {
	out := []string{}
	for i := 0; i < len(ks) && i < max; i++ {
		out = append(out, ks[i].Text)
	}
	return out
}

func firstOr(s []string, def string) string {
	if len(s) == 0 {
		return def
	}
	return s[0]
}
