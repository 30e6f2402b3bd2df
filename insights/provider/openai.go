// Package provider implements the extraction and conversation capabilities on hosted models.
package provider

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/openai/openai-go/responses"
	"github.com/theimaginaryfoundation/review-insights/insights"
)

type OpenAIConfig struct {
	APIKey          string
	BaseURL         string
	Model           string
	ChatModel       string
	MaxOutputTokens int64
}

// OpenAI serves structured extraction through the Responses API and chat through streamed
// chat completions. Requests are never retried by the client.
type OpenAI struct {
	client          *openai.Client
	model           string
	chatModel       string
	maxOutputTokens int64
}

var (
	_ insights.Extractor            = (*OpenAI)(nil)
	_ insights.ConversationStreamer = (*OpenAI)(nil)
)

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)

	chatModel := cfg.ChatModel
	if chatModel == "" {
		chatModel = cfg.Model
	}
	maxTokens := cfg.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = 16000
	}
	return &OpenAI{
		client:          &client,
		model:           cfg.Model,
		chatModel:       chatModel,
		maxOutputTokens: maxTokens,
	}
}

func (o *OpenAI) Extract(ctx context.Context, req insights.ExtractRequest) (string, error) {
	if o.client == nil {
		return "", errors.New("openai: client is nil")
	}
	if o.model == "" {
		return "", errors.New("openai: model is empty")
	}

	format := responses.ResponseFormatTextConfigUnionParam{
		OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
			Name:        req.SchemaName,
			Schema:      req.Schema,
			Strict:      openai.Bool(true),
			Description: openai.String(req.SchemaName + " JSON"),
			Type:        "json_schema",
		},
	}

	params := responses.ResponseNewParams{
		Model:           o.model,
		MaxOutputTokens: openai.Int(o.maxOutputTokens),
		Instructions:    openai.String(req.Instructions),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(req.Input, responses.EasyInputMessageRoleUser),
			},
		},
		Text: responses.ResponseTextConfigParam{
			Format: format,
		},
	}

	resp, err := o.client.Responses.New(ctx, params)
	if err != nil {
		return "", err
	}
	return resp.OutputText(), nil
}

func (o *OpenAI) StreamConversation(ctx context.Context, system string, history []insights.ConversationTurn, message string) (insights.FragmentStream, error) {
	if o.client == nil {
		return nil, errors.New("openai: client is nil")
	}
	if o.chatModel == "" {
		return nil, errors.New("openai: chat model is empty")
	}

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	msgs = append(msgs, openai.SystemMessage(system))
	for _, t := range history {
		switch t.Role {
		case insights.RoleModel:
			msgs = append(msgs, openai.AssistantMessage(t.Text))
		default:
			msgs = append(msgs, openai.UserMessage(t.Text))
		}
	}
	msgs = append(msgs, openai.UserMessage(message))

	stream := o.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.chatModel),
		Messages: msgs,
	})
	if err := stream.Err(); err != nil {
		_ = stream.Close()
		return nil, err
	}
	return &chatStream{stream: stream}, nil
}

// chatStream yields the non-empty content deltas of a chat completion stream.
type chatStream struct {
	stream *ssestream.Stream[openai.ChatCompletionChunk]
	cur    string
}

func (c *chatStream) Next() bool {
	for c.stream.Next() {
		chunk := c.stream.Current()
		var b strings.Builder
		for _, choice := range chunk.Choices {
			b.WriteString(choice.Delta.Content)
		}
		if b.Len() == 0 {
			continue
		}
		c.cur = b.String()
		return true
	}
	return false
}

func (c *chatStream) Current() string { return c.cur }
func (c *chatStream) Err() error      { return c.stream.Err() }
func (c *chatStream) Close() error    { return c.stream.Close() }
