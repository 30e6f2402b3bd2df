package insights

// Sentiment is the model's classification of a single review.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

func (s Sentiment) Valid() bool {
	switch s {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
		return true
	default:
		return false
	}
}

// KeywordType records which keyword list a keyword came from.
type KeywordType string

const (
	KeywordPositive KeywordType = "positive"
	KeywordNegative KeywordType = "negative"
)

// Review is one customer review as classified by the model.
// Date is a calendar date formatted as YYYY-MM-DD.
type Review struct {
	ID        string    `json:"id"`
	Date      string    `json:"date"`
	Rating    float64   `json:"rating"`
	Sentiment Sentiment `json:"sentiment"`
	Text      string    `json:"text"`
	Score     float64   `json:"score"`
}

// Keyword is a grouped phrase with its weight. Type is assigned locally, never by the model.
type Keyword struct {
	Text  string      `json:"text"`
	Value float64     `json:"value"`
	Type  KeywordType `json:"type"`
}

// AnalysisResult is the aggregate produced by one structured-extraction call.
type AnalysisResult struct {
	Reviews                []Review  `json:"reviews"`
	PositiveKeywords       []Keyword `json:"positiveKeywords"`
	NegativeKeywords       []Keyword `json:"negativeKeywords"`
	Summary                string    `json:"summary"`
	ActionableImprovements []string  `json:"actionableImprovements"`
	TrendAnalysis          string    `json:"trendAnalysis"`
	MostLiked              []string  `json:"mostLiked"`
	MostDisliked           []string  `json:"mostDisliked"`
}

// Clone returns a deep copy so callers can hand results across goroutines.
func (r AnalysisResult) Clone() AnalysisResult {
	out := r
	out.Reviews = append([]Review(nil), r.Reviews...)
	out.PositiveKeywords = append([]Keyword(nil), r.PositiveKeywords...)
	out.NegativeKeywords = append([]Keyword(nil), r.NegativeKeywords...)
	out.ActionableImprovements = append([]string(nil), r.ActionableImprovements...)
	out.MostLiked = append([]string(nil), r.MostLiked...)
	out.MostDisliked = append([]string(nil), r.MostDisliked...)
	return out
}

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// ChatMessage is one entry of the visible chat history.
type ChatMessage struct {
	Role       Role   `json:"role"`
	Text       string `json:"text"`
	IsThinking bool   `json:"isThinking,omitempty"`
}

// UpdateKind says which step of a chat turn produced a ChatUpdate.
type UpdateKind int

const (
	UpdatePlaceholder UpdateKind = iota
	UpdateFragment
	UpdateFinal
	UpdateFallback
)

// ChatUpdate is the live model message after one step of a chat turn.
type ChatUpdate struct {
	Kind    UpdateKind
	Message ChatMessage
}

// ConversationTurn is a completed exchange entry sent back to the model as history.
type ConversationTurn struct {
	Role Role
	Text string
}

// DerivedStats are recomputed from AnalysisResult.Reviews on every read.
type DerivedStats struct {
	AverageRating   float64 `json:"averageRating"`
	PositivePercent int     `json:"positivePercent"`
	TotalReviews    int     `json:"totalReviews"`
}
