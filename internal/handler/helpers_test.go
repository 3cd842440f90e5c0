package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mural-go-api/internal/config"
	"github.com/noah-isme/mural-go-api/internal/dto"
	"github.com/noah-isme/mural-go-api/internal/handler"
	"github.com/noah-isme/mural-go-api/internal/middleware"
	"github.com/noah-isme/mural-go-api/internal/models"
	"github.com/noah-isme/mural-go-api/internal/repository"
	"github.com/noah-isme/mural-go-api/internal/router"
	"github.com/noah-isme/mural-go-api/internal/service"
	"github.com/noah-isme/mural-go-api/pkg/ai"
)

const (
	testSecret     = "handler-test-secret"
	testPassphrase = "chalk and blackboard"
)

var boardNow = time.Date(2024, time.March, 12, 9, 0, 0, 0, time.UTC)

type apiFixture struct {
	app         *fiber.App
	store       *toggleStore
	activities  service.ActivityService
	feed        service.ActivityFeedService
	tutor       service.TutorService
	auth        service.AuthService
	attachments service.AttachmentService
}

type fixtureOptions struct {
	provider      ai.Provider
	adminDisabled bool
}

func newAPIFixture(t *testing.T, opts fixtureOptions) *apiFixture {
	t.Helper()

	logger := zerolog.New(io.Discard)
	validate := validator.New(validator.WithRequiredStructEnabled())
	clock := service.ClockFunc(func() time.Time { return boardNow })

	provider := opts.provider
	if provider == nil {
		provider = ai.NewDemoProvider()
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	store := &toggleStore{ActivityStore: repository.NewMemoryActivityStore()}
	feed := service.NewActivityFeedService(store, service.FeedOptions{Clock: clock, Location: time.UTC}, logger)
	feed.Start(ctx)

	attachments := service.NewAttachmentService(nil, config.AttachmentInline, logger)
	activities := service.NewActivityService(store, attachments, feed, validate, logger)

	blobs := repository.NewMemoryBlobStore()
	aiConfigRepo := repository.NewAiConfigRepository(blobs, models.DefaultAiConfig())

	passphrase := testPassphrase
	if opts.adminDisabled {
		passphrase = ""
	}
	auth := service.NewAuthService(service.AuthOptions{
		Passphrase: passphrase,
		Enabled:    passphrase != "",
		Secret:     testSecret,
		TTL:        time.Hour,
	}, validate, logger)

	tutor := service.NewTutorService(service.TutorOptions{
		Provider:    provider,
		Model:       "test-model",
		Feed:        feed,
		AiConfig:    aiConfigRepo,
		History:     repository.NewTranscriptRepository(blobs),
		Attachments: attachments,
		Assembler:   service.ContextAssembler{Persona: config.DefaultPersona, Location: time.UTC},
		Clock:       clock,
		Validator:   validate,
	}, logger)
	vision := service.NewVisionService(provider, "test-model", logger)

	cfg := config.Config{
		AppName:           "Mural API",
		AppEnv:            "test",
		StoreBackend:      config.StoreMemory,
		HistoryBackend:    config.HistoryMemory,
		AttachmentBackend: config.AttachmentInline,
		AIProvider:        config.ProviderGemini,
		JWTSecret:         testSecret,
	}

	app := fiber.New()
	app.Use(middleware.CorrelationID())
	router.Register(app, cfg, router.Dependencies{
		ActivityFeedHandler:  handler.NewActivityFeedHandler(feed, activities, attachments, logger),
		AdminActivityHandler: handler.NewAdminActivityHandler(activities, logger),
		AiConfigHandler:      handler.NewAiConfigHandler(service.NewAiConfigService(aiConfigRepo, validate, logger), logger),
		AuthHandler:          handler.NewAuthHandler(auth, logger),
		TutorHandler:         handler.NewTutorHandler(tutor, vision, logger),
	})

	return &apiFixture{
		app:         app,
		store:       store,
		activities:  activities,
		feed:        feed,
		tutor:       tutor,
		auth:        auth,
		attachments: attachments,
	}
}

func (f *apiFixture) adminToken(t *testing.T) string {
	t.Helper()
	resp, err := f.auth.Login(context.Background(), dto.LoginRequest{Passphrase: testPassphrase})
	require.NoError(t, err)
	return resp.Token
}

func (f *apiFixture) openSession(t *testing.T, id string) {
	t.Helper()
	_, err := f.tutor.Open(context.Background(), id)
	require.NoError(t, err)
}

func (f *apiFixture) seed(t *testing.T, title, date, activityType string) models.Activity {
	t.Helper()
	created, err := f.activities.Create(context.Background(), dto.ActivityRequest{
		Title:   title,
		Subject: "Physics",
		Date:    date,
		Type:    activityType,
	}, nil)
	require.NoError(t, err)
	return created
}

func signedToken(t *testing.T, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "someone",
		"role": role,
		"iss":  service.TokenIssuer,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func jsonRequest(t *testing.T, method, path string, body interface{}, token string) *http.Request {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

type apiEnvelope[T any] struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Data    T                 `json:"data"`
	Meta    map[string]any    `json:"meta"`
	Details map[string]string `json:"details"`
}

func decodeResponse(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, json.Unmarshal(data, target))
}

func startFiberServer(t *testing.T, app *fiber.App) (string, func()) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		if err := app.Listener(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Logf("fiber listener stopped: %v", err)
		}
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)

	shutdown := func() {
		_ = app.Shutdown()
		_ = listener.Close()
		select {
		case <-done:
		case <-time.After(100 * time.Millisecond):
		}
	}

	return "http://" + listener.Addr().String(), shutdown
}

// toggleStore wraps the memory store and fails reads and writes while down is set.
type toggleStore struct {
	repository.ActivityStore
	mu   sync.Mutex
	down bool
}

func (s *toggleStore) setDown(down bool) {
	s.mu.Lock()
	s.down = down
	s.mu.Unlock()
}

func (s *toggleStore) failing() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return errors.Join(repository.ErrStoreUnavailable, errors.New("dial tcp: connection refused"))
	}
	return nil
}

func (s *toggleStore) List(ctx context.Context) ([]models.Activity, error) {
	if err := s.failing(); err != nil {
		return nil, err
	}
	return s.ActivityStore.List(ctx)
}

func (s *toggleStore) Create(ctx context.Context, fields models.ActivityFields, attachment *models.Attachment) (models.Activity, error) {
	if err := s.failing(); err != nil {
		return models.Activity{}, err
	}
	return s.ActivityStore.Create(ctx, fields, attachment)
}

// gatedProvider holds every reply until release is closed.
type gatedProvider struct {
	release chan struct{}
}

func (p *gatedProvider) Name() string { return "gated" }

func (p *gatedProvider) NewSession(context.Context, ai.SessionConfig) (ai.Session, error) {
	return p, nil
}

func (p *gatedProvider) SendMessageStream(context.Context, string, *ai.InlineAttachment) (ai.Stream, error) {
	<-p.release
	return ai.NewSliceStream("released"), nil
}

// brokenProvider cannot open sessions.
type brokenProvider struct{}

func (brokenProvider) Name() string { return "broken" }

func (brokenProvider) NewSession(context.Context, ai.SessionConfig) (ai.Session, error) {
	return nil, errors.New("quota exceeded")
}
