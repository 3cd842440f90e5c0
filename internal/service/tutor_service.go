package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/mural-go-api/internal/dto"
	"github.com/noah-isme/mural-go-api/internal/models"
	"github.com/noah-isme/mural-go-api/internal/observability"
	"github.com/noah-isme/mural-go-api/internal/repository"
	"github.com/noah-isme/mural-go-api/pkg/ai"
)

// StreamFailureMessage replaces a reply whose stream broke.
const StreamFailureMessage = "Sorry, something went wrong while I was answering. Please try sending your message again."

// DefaultTutorIdleTTL is how long an untouched session keeps its provider handle in memory.
const DefaultTutorIdleTTL = 30 * time.Minute

// TutorState is the lifecycle state of a tutor session.
type TutorState string

// Tutor session states.
const (
	TutorStateUninitialized TutorState = "uninitialized"
	TutorStateInitializing  TutorState = "initializing"
	TutorStateReady         TutorState = "ready"
	TutorStateStreaming     TutorState = "streaming"
	TutorStateFailed        TutorState = "failed"
)

// TutorSnapshot is a point-in-time copy of a session.
type TutorSnapshot struct {
	ID         string
	State      TutorState
	Transcript models.Transcript
	Err        string
}

// TurnObserver receives the transcript after every change during a turn.
type TurnObserver func(models.Transcript)

// TutorService manages server-side tutor conversations.
type TutorService interface {
	Open(ctx context.Context, sessionID string) (TutorSnapshot, error)
	Get(ctx context.Context, sessionID string) (TutorSnapshot, error)
	Begin(ctx context.Context, sessionID, text string) (*TutorTurn, error)
	Submit(ctx context.Context, sessionID, text string, observer TurnObserver) (TutorSnapshot, error)
	Reset(ctx context.Context, sessionID string) (TutorSnapshot, error)
	Close(sessionID string) error
	Provider() string
	DemoMode() bool
}

// ActivityLister supplies the visible board.
type ActivityLister interface {
	Visible(ctx context.Context, filter dto.BoardFilter) ([]models.Activity, error)
}

// TutorOptions wires the collaborators of the tutor.
type TutorOptions struct {
	Provider    ai.Provider
	Model       string
	Feed        ActivityLister
	AiConfig    repository.AiConfigRepository
	History     repository.TranscriptRepository
	Attachments AttachmentService
	Assembler   ContextAssembler
	Clock       Clock
	Validator   *validator.Validate
	IdleTTL     time.Duration
}

type tutorService struct {
	provider    ai.Provider
	model       string
	feed        ActivityLister
	aiConfig    repository.AiConfigRepository
	history     repository.TranscriptRepository
	attachments AttachmentService
	assembler   ContextAssembler
	clock       Clock
	validator   *validator.Validate
	idleTTL     time.Duration
	logger      zerolog.Logger
	tracer      trace.Tracer

	mu        sync.Mutex
	sessions  map[string]*tutorSession
	lastSweep time.Time
}

type tutorSession struct {
	id         string
	mu         sync.Mutex
	state      TutorState
	loaded     bool
	transcript models.Transcript
	handle     ai.Session
	activities []models.Activity
	initErr    error
	lastUsed   time.Time
	// closed is set once the session left the map; holders of a stale pointer must retry.
	closed bool
}

// NewTutorService builds the session manager.
func NewTutorService(opts TutorOptions, logger zerolog.Logger) TutorService {
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock()
	}
	validate := opts.Validator
	if validate == nil {
		validate = validator.New()
	}
	idleTTL := opts.IdleTTL
	if idleTTL == 0 {
		idleTTL = DefaultTutorIdleTTL
	}

	return &tutorService{
		provider:    opts.Provider,
		model:       opts.Model,
		feed:        opts.Feed,
		aiConfig:    opts.AiConfig,
		history:     opts.History,
		attachments: opts.Attachments,
		assembler:   opts.Assembler,
		clock:       clock,
		validator:   validate,
		idleTTL:     idleTTL,
		logger:      logger.With().Str("component", "tutor_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/mural-go-api/internal/service/tutor"),
		sessions:    make(map[string]*tutorSession),
	}
}

func (s *tutorService) Provider() string {
	return s.provider.Name()
}

func (s *tutorService) DemoMode() bool {
	_, demo := s.provider.(*ai.DemoProvider)
	return demo
}

func (s *tutorService) Open(ctx context.Context, sessionID string) (TutorSnapshot, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if err := s.checkID(sessionID); err != nil {
		return TutorSnapshot{}, err
	}

	session := s.acquire(sessionID)
	defer session.mu.Unlock()

	if session.handle == nil && session.state != TutorStateStreaming {
		if err := s.initialize(ctx, session); err != nil {
			return session.snapshot(), err
		}
	}
	return session.snapshot(), nil
}

func (s *tutorService) Get(ctx context.Context, sessionID string) (TutorSnapshot, error) {
	s.mu.Lock()
	session, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if ok {
		session.mu.Lock()
		defer session.mu.Unlock()
		return session.snapshot(), nil
	}

	transcript, err := s.history.Load(ctx, sessionID)
	if err != nil {
		return TutorSnapshot{}, err
	}
	if len(transcript) == 0 {
		return TutorSnapshot{}, ErrSessionNotFound
	}
	return TutorSnapshot{ID: sessionID, State: TutorStateUninitialized, Transcript: transcript}, nil
}

// Begin validates a user message, records the optimistic user and placeholder turns and
// returns the turn to run. The session stays in the streaming state until Run returns.
// The text reaches the model as typed; only surrounding whitespace is trimmed.
func (s *tutorService) Begin(ctx context.Context, sessionID, text string) (*TutorTurn, error) {
	if err := s.checkID(sessionID); err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if err := s.validator.Struct(dto.TutorMessageRequest{Text: text}); err != nil {
		return nil, invalid("text", "must be between 1 and 8000 characters")
	}

	session, err := s.resume(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer session.mu.Unlock()

	if session.state == TutorStateStreaming {
		observability.TutorTurns().WithLabelValues("rejected").Inc()
		return nil, ErrTurnInProgress
	}
	if session.handle == nil {
		if err := s.initialize(ctx, session); err != nil {
			return nil, err
		}
	}

	turn := &TutorTurn{
		service: s,
		session: session,
		handle:  session.handle,
		text:    text,
		ctx:     context.WithoutCancel(ctx),
	}

	if match := findAttachment(session.activities, text); match != nil {
		inline, err := s.attachments.Inline(ctx, *match.Attachment)
		if err != nil {
			s.logger.Warn().Err(err).Str("activity_id", match.ID).Msg("auto-attach skipped, attachment unreadable")
		} else {
			turn.attachment = inline
			observability.AutoAttachments().Inc()
			session.transcript = append(session.transcript, models.ChatMessage{
				Role:        models.ChatRoleModel,
				Text:        fmt.Sprintf("Attaching %q from %q to your question.", match.Attachment.Name, match.Title),
				IsSynthetic: true,
			})
		}
	}

	session.transcript = append(session.transcript,
		models.ChatMessage{Role: models.ChatRoleUser, Text: text},
		models.ChatMessage{Role: models.ChatRoleModel, IsLoading: true},
	)
	session.state = TutorStateStreaming
	s.persist(ctx, session)

	return turn, nil
}

func (s *tutorService) Submit(ctx context.Context, sessionID, text string, observer TurnObserver) (TutorSnapshot, error) {
	turn, err := s.Begin(ctx, sessionID, text)
	if err != nil {
		return TutorSnapshot{}, err
	}
	return turn.Run(observer), nil
}

func (s *tutorService) Reset(ctx context.Context, sessionID string) (TutorSnapshot, error) {
	if err := s.checkID(sessionID); err != nil {
		return TutorSnapshot{}, err
	}
	session, err := s.resume(ctx, sessionID)
	if err != nil {
		return TutorSnapshot{}, err
	}
	defer session.mu.Unlock()

	if session.state == TutorStateStreaming {
		return session.snapshot(), ErrTurnInProgress
	}
	if err := s.history.Clear(ctx, sessionID); err != nil {
		return session.snapshot(), fmt.Errorf("clear transcript: %w", err)
	}

	session.transcript = models.Transcript{}
	session.loaded = true
	session.handle = nil
	s.logger.Info().Str("session_id", sessionID).Msg("tutor session reset")

	if err := s.initialize(ctx, session); err != nil {
		return session.snapshot(), err
	}
	return session.snapshot(), nil
}

// Close drops the in-memory handle and keeps the saved transcript. A session that is
// streaming cannot be closed until its turn finishes.
func (s *tutorService) Close(sessionID string) error {
	s.mu.Lock()
	session, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	session.mu.Lock()
	defer session.mu.Unlock()
	if session.closed {
		return nil
	}
	if session.state == TutorStateStreaming {
		return ErrTurnInProgress
	}

	session.closed = true
	s.mu.Lock()
	if s.sessions[sessionID] == session {
		delete(s.sessions, sessionID)
		observability.TutorSessions().Dec()
	}
	s.mu.Unlock()
	return nil
}

func (s *tutorService) checkID(sessionID string) error {
	if sessionID == "" {
		return invalid("sessionId", "is required")
	}
	if err := s.validator.Struct(dto.TutorSessionRequest{SessionID: sessionID}); err != nil {
		return invalid("sessionId", "must be at most 64 printable characters")
	}
	return nil
}

// resume returns a locked session that was opened before, either still in memory or with a
// saved transcript. Ids that were never opened are not created here.
func (s *tutorService) resume(ctx context.Context, sessionID string) (*tutorSession, error) {
	s.mu.Lock()
	_, live := s.sessions[sessionID]
	s.mu.Unlock()

	if !live {
		transcript, err := s.history.Load(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("%w: load transcript: %w", ErrInitialization, err)
		}
		if len(transcript) == 0 {
			return nil, ErrSessionNotFound
		}
	}
	return s.acquire(sessionID), nil
}

// acquire returns the live session for id with its mutex held.
func (s *tutorService) acquire(id string) *tutorSession {
	for {
		session := s.session(id)
		session.mu.Lock()
		if !session.closed {
			session.lastUsed = s.clock.Now()
			return session
		}
		session.mu.Unlock()
	}
}

func (s *tutorService) session(id string) *tutorSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		now := s.clock.Now()
		s.sweepIdle(now)
		session = &tutorSession{id: id, state: TutorStateUninitialized, lastUsed: now}
		s.sessions[id] = session
		observability.TutorSessions().Inc()
	}
	return session
}

// sweepIdle must be called with s.mu held. It runs at most once per half TTL and skips
// sessions that are busy or streaming.
func (s *tutorService) sweepIdle(now time.Time) {
	if s.idleTTL < 0 || now.Sub(s.lastSweep) < s.idleTTL/2 {
		return
	}
	s.lastSweep = now

	for id, session := range s.sessions {
		if !session.mu.TryLock() {
			continue
		}
		if session.state != TutorStateStreaming && now.Sub(session.lastUsed) > s.idleTTL {
			session.closed = true
			delete(s.sessions, id)
			observability.TutorSessions().Dec()
			s.logger.Debug().Str("session_id", id).Msg("idle tutor session evicted")
		}
		session.mu.Unlock()
	}
}

// initialize must be called with session.mu held.
func (s *tutorService) initialize(ctx context.Context, session *tutorSession) error {
	ctx, span := s.tracer.Start(ctx, "tutor.initialize", trace.WithAttributes(
		attribute.String("tutor.session_id", session.id),
		attribute.String("tutor.provider", s.provider.Name()),
	))
	defer span.End()

	session.state = TutorStateInitializing
	session.initErr = nil

	fail := func(stage string, err error) error {
		session.state = TutorStateFailed
		session.initErr = err
		span.RecordError(err)
		span.SetStatus(codes.Error, stage)
		s.logger.Error().Err(err).Str("session_id", session.id).Str("stage", stage).Msg("tutor initialization failed")
		return fmt.Errorf("%w: %s: %w", ErrInitialization, stage, err)
	}

	if !session.loaded {
		transcript, err := s.history.Load(ctx, session.id)
		if err != nil {
			return fail("load transcript", err)
		}
		session.transcript = transcript
		session.loaded = true
	}

	activities, err := s.feed.Visible(ctx, dto.BoardFilter{})
	if err != nil {
		return fail("read activities", err)
	}
	cfg, err := s.aiConfig.Load(ctx)
	if err != nil {
		return fail("read ai config", err)
	}

	instruction := s.assembler.Build(cfg, activities, s.clock.Now())
	handle, err := s.provider.NewSession(ctx, ai.SessionConfig{
		Model:             s.model,
		SystemInstruction: instruction,
		History:           toProviderHistory(session.transcript.Seed()),
	})
	if err != nil {
		return fail("open provider session", err)
	}

	session.handle = handle
	session.activities = activities
	session.state = TutorStateReady
	span.SetAttributes(attribute.Int("tutor.activities", len(activities)))
	return nil
}

// persist must be called with session.mu held. History failures are logged, not fatal.
func (s *tutorService) persist(ctx context.Context, session *tutorSession) {
	if err := s.history.Save(ctx, session.id, session.transcript); err != nil {
		s.logger.Warn().Err(err).Str("session_id", session.id).Msg("failed to save transcript")
	}
}

func (session *tutorSession) snapshot() TutorSnapshot {
	snapshot := TutorSnapshot{
		ID:         session.id,
		State:      session.state,
		Transcript: session.transcript.Clone(),
	}
	if session.initErr != nil {
		snapshot.Err = ErrInitialization.Error()
	}
	return snapshot
}

// TutorTurn is an accepted user message whose reply has not been consumed yet.
type TutorTurn struct {
	service    *tutorService
	session    *tutorSession
	handle     ai.Session
	text       string
	attachment *ai.InlineAttachment
	ctx        context.Context
}

// Attached reports whether an activity attachment was included with the message.
func (t *TutorTurn) Attached() bool {
	return t.attachment != nil
}

// Run consumes the reply stream to completion, calling observer once per fragment and once
// at the end. It runs detached from the caller's cancellation so a disconnect does not
// abandon the turn.
func (t *TutorTurn) Run(observer TurnObserver) TutorSnapshot {
	s := t.service
	ctx, span := s.tracer.Start(t.ctx, "tutor.turn", trace.WithAttributes(
		attribute.String("tutor.session_id", t.session.id),
		attribute.Bool("tutor.attachment", t.attachment != nil),
	))
	defer span.End()

	started := time.Now()
	defer func() {
		observability.TutorTurnLatency().Observe(time.Since(started).Seconds())
	}()

	notify := func(transcript models.Transcript) {
		if observer != nil {
			observer(transcript)
		}
	}

	stream, err := t.handle.SendMessageStream(ctx, t.text, t.attachment)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		snapshot := t.fail(ctx, err)
		notify(snapshot.Transcript)
		return snapshot
	}
	defer stream.Close()

	for {
		fragment, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "stream failed")
			snapshot := t.fail(ctx, err)
			notify(snapshot.Transcript)
			return snapshot
		}
		if fragment == "" {
			continue
		}
		notify(t.append(ctx, fragment))
	}

	snapshot := t.complete(ctx)
	observability.TutorTurns().WithLabelValues("ok").Inc()
	notify(snapshot.Transcript)
	return snapshot
}

func (t *TutorTurn) append(ctx context.Context, fragment string) models.Transcript {
	session := t.session
	session.mu.Lock()
	defer session.mu.Unlock()

	last := &session.transcript[len(session.transcript)-1]
	last.Text += fragment
	last.IsLoading = false
	t.service.persist(ctx, session)
	return session.transcript.Clone()
}

func (t *TutorTurn) complete(ctx context.Context) TutorSnapshot {
	session := t.session
	session.mu.Lock()
	defer session.mu.Unlock()

	session.transcript[len(session.transcript)-1].IsLoading = false
	session.state = TutorStateReady
	t.service.persist(ctx, session)
	return session.snapshot()
}

// fail turns the placeholder into an error turn and drops the provider handle; the next
// submission rebuilds it.
func (t *TutorTurn) fail(ctx context.Context, cause error) TutorSnapshot {
	session := t.session
	session.mu.Lock()
	defer session.mu.Unlock()

	observability.TutorTurns().WithLabelValues("failed").Inc()
	t.service.logger.Error().Err(cause).Str("session_id", session.id).Msg("tutor stream failed")

	session.transcript[len(session.transcript)-1] = models.ChatMessage{
		Role:    models.ChatRoleModel,
		Text:    StreamFailureMessage,
		IsError: true,
	}
	session.handle = nil
	session.state = TutorStateReady
	t.service.persist(ctx, session)
	return session.snapshot()
}

// findAttachment returns the first activity with an attachment whose title or subject occurs
// in text, ignoring case. Activities arrive sorted by due date, so the nearest one wins.
func findAttachment(activities []models.Activity, text string) *models.Activity {
	lower := strings.ToLower(text)
	for i := range activities {
		activity := &activities[i]
		if activity.Attachment == nil {
			continue
		}
		for _, candidate := range []string{activity.Title, activity.Subject} {
			candidate = strings.ToLower(strings.TrimSpace(candidate))
			if candidate != "" && strings.Contains(lower, candidate) {
				return activity
			}
		}
	}
	return nil
}

func toProviderHistory(transcript models.Transcript) []ai.Message {
	history := make([]ai.Message, 0, len(transcript))
	for _, message := range transcript {
		role := ai.RoleUser
		if message.Role == models.ChatRoleModel {
			role = ai.RoleModel
		}
		history = append(history, ai.Message{Role: role, Text: message.Text})
	}
	return history
}
