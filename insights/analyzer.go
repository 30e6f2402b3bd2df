package insights

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/theimaginaryfoundation/review-insights/insights/modeljson"
)

type reviewPayload struct {
	ID        string  `json:"id"`
	Date      string  `json:"date" jsonschema_description:"ISO 8601 date"`
	Rating    float64 `json:"rating" jsonschema:"minimum=0,maximum=5" jsonschema_description:"0-5 scale"`
	Sentiment string  `json:"sentiment" jsonschema:"enum=positive,enum=neutral,enum=negative"`
	Text      string  `json:"text"`
	Score     float64 `json:"score" jsonschema:"minimum=0,maximum=1" jsonschema_description:"0 to 1 sentiment score"`
}

type keywordPayload struct {
	Text  string  `json:"text"`
	Value float64 `json:"value"`
}

type analysisPayload struct {
	Reviews                []reviewPayload  `json:"reviews"`
	PositiveKeywords       []keywordPayload `json:"positiveKeywords"`
	NegativeKeywords       []keywordPayload `json:"negativeKeywords"`
	Summary                string           `json:"summary"`
	ActionableImprovements []string         `json:"actionableImprovements" jsonschema:"minItems=3,maxItems=3" jsonschema_description:"Must be exactly 3 specific, actionable points."`
	TrendAnalysis          string           `json:"trendAnalysis"`
	MostLiked              []string         `json:"mostLiked"`
	MostDisliked           []string         `json:"mostDisliked"`
}

var analysisSchema = modeljson.GenerateSchema[analysisPayload]()

// AnalysisSchema returns the JSON schema sent with every analysis request.
func AnalysisSchema() map[string]interface{} { return analysisSchema }

var (
	requiredAnalysisFields = []string{
		"reviews", "positiveKeywords", "negativeKeywords", "summary",
		"actionableImprovements", "trendAnalysis", "mostLiked", "mostDisliked",
	}
	requiredReviewFields  = []string{"id", "date", "rating", "sentiment", "text", "score"}
	requiredKeywordFields = []string{"text", "value"}
)

const actionableCount = 3

// Analyzer turns raw review text into an AnalysisResult with one structured-extraction call.
type Analyzer struct {
	extractor Extractor
	timeout   time.Duration
}

// NewAnalyzer returns an Analyzer. A zero timeout leaves deadlines to the caller's context.
func NewAnalyzer(extractor Extractor, timeout time.Duration) *Analyzer {
	return &Analyzer{extractor: extractor, timeout: timeout}
}

// Analyze blocks until the full structured result is available. Every failure is an *AnalysisError.
func (a *Analyzer) Analyze(ctx context.Context, rawText string) (AnalysisResult, error) {
	if strings.TrimSpace(rawText) == "" {
		return AnalysisResult{}, &AnalysisError{Kind: AnalysisInvalidInput, Err: ErrEmptyInput}
	}
	if a.extractor == nil {
		return AnalysisResult{}, &AnalysisError{Kind: AnalysisTransport, Err: errors.New("analyzer: extractor is nil")}
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := a.extractor.Extract(ctx, ExtractRequest{
		Instructions: analysisInstructions,
		Input:        analysisInput(rawText),
		SchemaName:   "ReviewAnalysis",
		Schema:       analysisSchema,
	})
	if err != nil {
		kind := classifyCallError(ctx, err)
		slog.Warn("analysis call failed", "kind", kind, "err", err, "elapsed", time.Since(start))
		return AnalysisResult{}, &AnalysisError{Kind: kind, Err: err}
	}

	result, err := ParseAnalysis(raw)
	if err != nil {
		slog.Warn("analysis response rejected", "err", err, "len", len(raw))
		return AnalysisResult{}, err
	}
	slog.Info("analysis complete", "reviews", len(result.Reviews), "elapsed", time.Since(start))
	return result, nil
}

// ParseAnalysis decodes, validates and normalizes a raw model reply.
func ParseAnalysis(raw string) (AnalysisResult, error) {
	data, err := modeljson.Extract(raw)
	if err != nil {
		return AnalysisResult{}, &AnalysisError{Kind: AnalysisMalformed, Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}

	missing := modeljson.MissingFields(data, requiredAnalysisFields...)
	missing = append(missing, modeljson.MissingInEach(data, "reviews", requiredReviewFields...)...)
	missing = append(missing, modeljson.MissingInEach(data, "positiveKeywords", requiredKeywordFields...)...)
	missing = append(missing, modeljson.MissingInEach(data, "negativeKeywords", requiredKeywordFields...)...)
	if len(missing) > 0 {
		return AnalysisResult{}, &AnalysisError{Kind: AnalysisSchemaInvalid, Err: fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))}
	}

	var p analysisPayload
	if err := modeljson.Decode(string(data), &p); err != nil {
		return AnalysisResult{}, &AnalysisError{Kind: AnalysisMalformed, Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}

	result, err := normalize(p)
	if err != nil {
		return AnalysisResult{}, &AnalysisError{Kind: AnalysisSchemaInvalid, Err: err}
	}
	return result, nil
}

func normalize(p analysisPayload) (AnalysisResult, error) {
	if len(p.ActionableImprovements) != actionableCount {
		return AnalysisResult{}, fmt.Errorf("actionableImprovements has %d entries, want %d", len(p.ActionableImprovements), actionableCount)
	}

	out := AnalysisResult{
		Reviews:                make([]Review, 0, len(p.Reviews)),
		Summary:                strings.TrimSpace(p.Summary),
		ActionableImprovements: trimAll(p.ActionableImprovements),
		TrendAnalysis:          strings.TrimSpace(p.TrendAnalysis),
		MostLiked:              trimAll(p.MostLiked),
		MostDisliked:           trimAll(p.MostDisliked),
	}

	seen := make(map[string]struct{}, len(p.Reviews))
	for i, r := range p.Reviews {
		rev, err := normalizeReview(r)
		if err != nil {
			return AnalysisResult{}, fmt.Errorf("reviews[%d]: %w", i, err)
		}
		if _, dup := seen[rev.ID]; dup {
			return AnalysisResult{}, fmt.Errorf("reviews[%d]: duplicate id %q", i, rev.ID)
		}
		seen[rev.ID] = struct{}{}
		out.Reviews = append(out.Reviews, rev)
	}

	var err error
	if out.PositiveKeywords, err = tagKeywords(p.PositiveKeywords, KeywordPositive); err != nil {
		return AnalysisResult{}, fmt.Errorf("positiveKeywords: %w", err)
	}
	if out.NegativeKeywords, err = tagKeywords(p.NegativeKeywords, KeywordNegative); err != nil {
		return AnalysisResult{}, fmt.Errorf("negativeKeywords: %w", err)
	}
	return out, nil
}

func normalizeReview(r reviewPayload) (Review, error) {
	id := strings.TrimSpace(r.ID)
	if id == "" {
		return Review{}, errors.New("empty id")
	}
	sentiment := Sentiment(strings.ToLower(strings.TrimSpace(r.Sentiment)))
	if !sentiment.Valid() {
		return Review{}, fmt.Errorf("sentiment %q not in {positive, neutral, negative}", r.Sentiment)
	}
	if !inRange(r.Rating, 0, 5) {
		return Review{}, fmt.Errorf("rating %v outside 0-5", r.Rating)
	}
	if !inRange(r.Score, 0, 1) {
		return Review{}, fmt.Errorf("score %v outside 0-1", r.Score)
	}
	return Review{
		ID:        id,
		Date:      normalizeDate(r.Date),
		Rating:    r.Rating,
		Sentiment: sentiment,
		Text:      strings.TrimSpace(r.Text),
		Score:     r.Score,
	}, nil
}

// tagKeywords assigns the list's type to every keyword.
func tagKeywords(in []keywordPayload, typ KeywordType) ([]Keyword, error) {
	out := make([]Keyword, 0, len(in))
	for i, k := range in {
		if math.IsNaN(k.Value) || k.Value <= 0 {
			return nil, fmt.Errorf("[%d] value %v is not positive", i, k.Value)
		}
		out = append(out, Keyword{Text: strings.TrimSpace(k.Text), Value: k.Value, Type: typ})
	}
	return out, nil
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
}

// normalizeDate rewrites recognized timestamps as YYYY-MM-DD. Anything else is kept as written.
func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return s
}

func inRange(v, lo, hi float64) bool {
	return !math.IsNaN(v) && v >= lo && v <= hi
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.TrimSpace(s))
	}
	return out
}

// callFailureMarkers maps fragments of a failed call's error text to a failure kind.
// Entries are checked in order.
var callFailureMarkers = []struct {
	kind    AnalysisErrorKind
	markers []string
}{
	{AnalysisRateLimited, []string{"429", "rate limit", "too many requests"}},
	{AnalysisServer, []string{"500", "502", "503", "504", "internal server error", "bad gateway", "service unavailable", "server_error"}},
}

func classifyCallError(ctx context.Context, err error) AnalysisErrorKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return AnalysisTimeout
	}
	msg := strings.ToLower(err.Error())
	for _, m := range callFailureMarkers {
		for _, marker := range m.markers {
			if strings.Contains(msg, marker) {
				return m.kind
			}
		}
	}
	return AnalysisTransport
}
