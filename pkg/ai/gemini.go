package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GeminiConfig defines configuration options for the Gemini provider.
type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature float32
	Logger      zerolog.Logger
}

// GeminiProvider implements Provider on the Gemini chat API.
type GeminiProvider struct {
	client *genai.Client
	cfg    GeminiConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewGeminiProvider creates the underlying client. Close releases it.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("unable to create gemini client: %w", err)
	}

	return &GeminiProvider{
		client: client,
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/mural-go-api/pkg/ai/gemini"),
		logger: cfg.Logger.With().Str("component", "gemini").Logger(),
	}, nil
}

// Name identifies the provider in logs and metrics.
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Close releases the client connection.
func (p *GeminiProvider) Close() error {
	return p.client.Close()
}

// NewSession opens a chat seeded with history and a standing system instruction.
func (p *GeminiProvider) NewSession(_ context.Context, cfg SessionConfig) (Session, error) {
	name := cfg.Model
	if name == "" {
		name = p.cfg.Model
	}

	model := p.client.GenerativeModel(name)
	if p.cfg.Temperature > 0 {
		model.SetTemperature(p.cfg.Temperature)
	}
	if strings.TrimSpace(cfg.SystemInstruction) != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(cfg.SystemInstruction)}}
	}

	chat := model.StartChat()
	chat.History = GeminiHistory(cfg.History)

	return &geminiSession{provider: p, model: name, chat: chat}, nil
}

// GeminiHistory converts replayed turns into Gemini contents.
func GeminiHistory(history []Message) []*genai.Content {
	merged := MergeHistory(history)
	contents := make([]*genai.Content, 0, len(merged))
	for _, message := range merged {
		role := "user"
		if message.Role == RoleModel {
			role = "model"
		}
		contents = append(contents, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(message.Text)}})
	}
	return contents
}

type geminiSession struct {
	provider *GeminiProvider
	model    string
	chat     *genai.ChatSession
}

func (s *geminiSession) SendMessageStream(parent context.Context, text string, attachment *InlineAttachment) (Stream, error) {
	parts := make([]genai.Part, 0, 2)
	if strings.TrimSpace(text) != "" {
		parts = append(parts, genai.Text(text))
	}
	if attachment != nil {
		if attachment.URI != "" {
			parts = append(parts, genai.FileData{MIMEType: attachment.MimeType, URI: attachment.URI})
		} else {
			parts = append(parts, genai.Blob{MIMEType: attachment.MimeType, Data: attachment.Data})
		}
	}
	if len(parts) == 0 {
		return nil, ErrEmptyMessage
	}

	ctx, span := s.provider.tracer.Start(parent, "gemini.stream", trace.WithAttributes(
		attribute.String("model", s.model),
		attribute.Bool("attachment", attachment != nil),
	))

	return &geminiStream{
		model: s.model,
		iter:  s.chat.SendMessageStream(ctx, parts...),
		span:  span,
		start: time.Now(),
	}, nil
}

type geminiStream struct {
	model   string
	iter    *genai.GenerateContentResponseIterator
	span    trace.Span
	start   time.Time
	pending []string
	done    bool
}

func (s *geminiStream) Recv() (string, error) {
	for {
		if len(s.pending) > 0 {
			fragment := s.pending[0]
			s.pending = s.pending[1:]
			return fragment, nil
		}
		if s.done {
			return "", io.EOF
		}

		response, err := s.iter.Next()
		if errors.Is(err, iterator.Done) {
			s.finish(nil)
			return "", io.EOF
		}
		if err != nil {
			s.finish(err)
			return "", fmt.Errorf("gemini stream: %w", err)
		}
		s.pending = append(s.pending, geminiText(response)...)
	}
}

func (s *geminiStream) Close() error {
	if !s.done {
		s.finish(context.Canceled)
	}
	s.pending = nil
	return nil
}

func (s *geminiStream) finish(err error) {
	s.done = true
	streamDuration.WithLabelValues("gemini", s.model).Observe(time.Since(s.start).Seconds())
	if err != nil {
		streamFailures.WithLabelValues("gemini", s.model).Inc()
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	}
	s.span.End()
}

func geminiText(response *genai.GenerateContentResponse) []string {
	if response == nil || len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		return nil
	}
	var fragments []string
	for _, part := range response.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok && text != "" {
			fragments = append(fragments, string(text))
		}
	}
	return fragments
}
