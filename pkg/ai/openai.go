package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OpenAIConfig defines configuration options for the OpenAI provider.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
	BaseURL     string
	Logger      zerolog.Logger
}

// OpenAIProvider implements Provider against the OpenAI chat completion API.
type OpenAIProvider struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIProvider builds a provider using the supplied configuration.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(config),
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/mural-go-api/pkg/ai/openai"),
		logger: cfg.Logger.With().Str("component", "openai").Logger(),
	}, nil
}

// Name identifies the provider in logs and metrics.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// NewSession starts a conversation. History is kept client side and replayed with every request.
func (p *OpenAIProvider) NewSession(_ context.Context, cfg SessionConfig) (Session, error) {
	model := cfg.Model
	if model == "" {
		model = p.cfg.Model
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(cfg.History)+1)
	if strings.TrimSpace(cfg.SystemInstruction) != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: cfg.SystemInstruction,
		})
	}
	for _, message := range MergeHistory(cfg.History) {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openAIRole(message.Role),
			Content: message.Text,
		})
	}

	return &openAISession{provider: p, model: model, messages: messages}, nil
}

type openAISession struct {
	provider *OpenAIProvider
	model    string

	mu       sync.Mutex
	messages []openai.ChatCompletionMessage
}

func (s *openAISession) SendMessageStream(parent context.Context, text string, attachment *InlineAttachment) (Stream, error) {
	if strings.TrimSpace(text) == "" && attachment == nil {
		return nil, ErrEmptyMessage
	}

	ctx, span := s.provider.tracer.Start(parent, "openai.stream", trace.WithAttributes(
		attribute.String("model", s.model),
		attribute.Bool("attachment", attachment != nil),
	))

	user := buildOpenAIUserMessage(text, attachment)

	s.mu.Lock()
	request := openai.ChatCompletionRequest{
		Model:       s.model,
		MaxTokens:   s.provider.cfg.MaxTokens,
		Temperature: s.provider.cfg.Temperature,
		Messages:    append(append([]openai.ChatCompletionMessage(nil), s.messages...), user),
		Stream:      true,
	}
	s.mu.Unlock()

	start := time.Now()
	stream, err := s.provider.client.CreateChatCompletionStream(ctx, request)
	if err != nil {
		streamFailures.WithLabelValues("openai", s.model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return nil, fmt.Errorf("openai stream: %w", err)
	}

	return &openAIStream{session: s, user: user, stream: stream, span: span, start: start}, nil
}

type openAIStream struct {
	session *openAISession
	user    openai.ChatCompletionMessage
	stream  *openai.ChatCompletionStream
	span    trace.Span
	start   time.Time
	reply   strings.Builder
	done    bool
}

func (s *openAIStream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}
	for {
		response, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			s.finish(nil)
			return "", io.EOF
		}
		if err != nil {
			s.finish(err)
			return "", fmt.Errorf("openai stream: %w", err)
		}
		if len(response.Choices) == 0 {
			continue
		}
		fragment := response.Choices[0].Delta.Content
		if fragment == "" {
			continue
		}
		s.reply.WriteString(fragment)
		return fragment, nil
	}
}

func (s *openAIStream) Close() error {
	if !s.done {
		s.finish(context.Canceled)
	}
	return nil
}

func (s *openAIStream) finish(err error) {
	s.done = true
	s.stream.Close()
	model := s.session.model
	streamDuration.WithLabelValues("openai", model).Observe(time.Since(s.start).Seconds())
	if err != nil {
		streamFailures.WithLabelValues("openai", model).Inc()
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
		s.span.End()
		return
	}
	s.span.End()

	// Only completed exchanges become part of the replayed history.
	s.session.mu.Lock()
	s.session.messages = append(s.session.messages, s.user, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleAssistant,
		Content: s.reply.String(),
	})
	s.session.mu.Unlock()
}

func buildOpenAIUserMessage(text string, attachment *InlineAttachment) openai.ChatCompletionMessage {
	if attachment == nil {
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text}
	}

	if !strings.HasPrefix(attachment.MimeType, "image/") {
		note := fmt.Sprintf("[Attached file: %s (%s)", attachment.Name, attachment.MimeType)
		if attachment.URI != "" {
			note += " available at " + attachment.URI
		}
		note += "]"
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: strings.TrimSpace(text + "\n\n" + note)}
	}

	url := attachment.URI
	if url == "" {
		url = "data:" + attachment.MimeType + ";base64," + base64.StdEncoding.EncodeToString(attachment.Data)
	}

	parts := make([]openai.ChatMessagePart, 0, 2)
	if strings.TrimSpace(text) != "" {
		parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: text})
	}
	parts = append(parts, openai.ChatMessagePart{
		Type:     openai.ChatMessagePartTypeImageURL,
		ImageURL: &openai.ChatMessageImageURL{URL: url, Detail: openai.ImageURLDetailAuto},
	})

	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, MultiContent: parts}
}

func openAIRole(role Role) string {
	if role == RoleModel {
		return openai.ChatMessageRoleAssistant
	}
	return openai.ChatMessageRoleUser
}
