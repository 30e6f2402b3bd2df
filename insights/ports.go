package insights

import "context"

// ExtractRequest is one structured-extraction exchange: instructions, free-form input and the
// JSON schema the reply must conform to.
type ExtractRequest struct {
	Instructions string
	Input        string
	SchemaName   string
	Schema       map[string]interface{}
}

// Extractor returns the raw JSON text of a schema-constrained model reply.
type Extractor interface {
	Extract(ctx context.Context, req ExtractRequest) (string, error)
}

// FragmentStream delivers reply text in arrival order. Next returns false at completion or on error;
// Err distinguishes the two.
type FragmentStream interface {
	Next() bool
	Current() string
	Err() error
	Close() error
}

// ConversationStreamer opens a streamed reply for message, given the system instruction and the
// completed turns so far.
type ConversationStreamer interface {
	StreamConversation(ctx context.Context, system string, history []ConversationTurn, message string) (FragmentStream, error)
}
