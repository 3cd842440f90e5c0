package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/mural-go-api/internal/models"
	"github.com/noah-isme/mural-go-api/internal/repository"
	"github.com/noah-isme/mural-go-api/pkg/ai"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func fixedClock(t time.Time) Clock {
	return ClockFunc(func() time.Time { return t })
}

// manualClock only moves when advance is called.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// flakyStore wraps the memory store and fails every call while down is set.
type flakyStore struct {
	repository.ActivityStore
	mu   sync.Mutex
	down bool
}

func newFlakyStore() *flakyStore {
	return &flakyStore{ActivityStore: repository.NewMemoryActivityStore()}
}

func (s *flakyStore) setDown(down bool) {
	s.mu.Lock()
	s.down = down
	s.mu.Unlock()
}

func (s *flakyStore) failing() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return errors.Join(repository.ErrStoreUnavailable, errors.New("connection refused"))
	}
	return nil
}

func (s *flakyStore) List(ctx context.Context) ([]models.Activity, error) {
	if err := s.failing(); err != nil {
		return nil, err
	}
	return s.ActivityStore.List(ctx)
}

func (s *flakyStore) Create(ctx context.Context, fields models.ActivityFields, attachment *models.Attachment) (models.Activity, error) {
	if err := s.failing(); err != nil {
		return models.Activity{}, err
	}
	return s.ActivityStore.Create(ctx, fields, attachment)
}

// scriptedProvider answers every turn through respond and records what it was sent.
type scriptedProvider struct {
	mu          sync.Mutex
	respond     func(text string, attachment *ai.InlineAttachment) (ai.Stream, error)
	sessionErr  error
	configs     []ai.SessionConfig
	texts       []string
	attachments []*ai.InlineAttachment
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) NewSession(_ context.Context, cfg ai.SessionConfig) (ai.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sessionErr != nil {
		return nil, p.sessionErr
	}
	p.configs = append(p.configs, cfg)
	return &scriptedSession{provider: p}, nil
}

func (p *scriptedProvider) sessionCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.configs)
}

func (p *scriptedProvider) lastConfig() ai.SessionConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.configs[len(p.configs)-1]
}

func (p *scriptedProvider) lastText() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.texts) == 0 {
		return ""
	}
	return p.texts[len(p.texts)-1]
}

func (p *scriptedProvider) lastAttachment() *ai.InlineAttachment {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.attachments) == 0 {
		return nil
	}
	return p.attachments[len(p.attachments)-1]
}

type scriptedSession struct {
	provider *scriptedProvider
}

func (s *scriptedSession) SendMessageStream(_ context.Context, text string, attachment *ai.InlineAttachment) (ai.Stream, error) {
	s.provider.mu.Lock()
	s.provider.texts = append(s.provider.texts, text)
	s.provider.attachments = append(s.provider.attachments, attachment)
	respond := s.provider.respond
	s.provider.mu.Unlock()

	if respond == nil {
		return ai.NewSliceStream("ok"), nil
	}
	return respond(text, attachment)
}

// gatedStream emits its fragments only after release is closed.
type gatedStream struct {
	release   chan struct{}
	fragments []string
	err       error
	pos       int
}

func (s *gatedStream) Recv() (string, error) {
	<-s.release
	if s.pos < len(s.fragments) {
		fragment := s.fragments[s.pos]
		s.pos++
		return fragment, nil
	}
	if s.err != nil {
		return "", s.err
	}
	return "", io.EOF
}

func (s *gatedStream) Close() error { return nil }

// failingStream yields its fragments and then fails.
type failingStream struct {
	fragments []string
	pos       int
}

func (s *failingStream) Recv() (string, error) {
	if s.pos < len(s.fragments) {
		fragment := s.fragments[s.pos]
		s.pos++
		return fragment, nil
	}
	return "", errors.New("upstream reset")
}

func (s *failingStream) Close() error { return nil }
