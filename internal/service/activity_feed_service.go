package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/mural-go-api/internal/dto"
	"github.com/noah-isme/mural-go-api/internal/models"
	"github.com/noah-isme/mural-go-api/internal/observability"
	"github.com/noah-isme/mural-go-api/internal/repository"
)

// ActivityFeedService serves the visible board and pushes it to subscribers after changes.
type ActivityFeedService interface {
	Visible(ctx context.Context, filter dto.BoardFilter) ([]models.Activity, error)
	Today() models.Date
	Subscribe(fn func([]models.Activity)) func()
	NotifyChanged(ctx context.Context, reason string)
	Start(ctx context.Context)
}

// FeedOptions configures cross-node fanout. Both transports are optional.
type FeedOptions struct {
	Redis       *redis.Client
	NATS        *nats.Conn
	ChannelBase string
	Location    *time.Location
	Clock       Clock
}

type activityFeedService struct {
	store        repository.ActivityStore
	clock        Clock
	location     *time.Location
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	logger       zerolog.Logger
	tracer       trace.Tracer
	nodeID       string

	mu          sync.RWMutex
	subscribers map[uint64]func([]models.Activity)
	nextID      uint64
	dirty       chan struct{}
}

type feedEvent struct {
	Source string    `json:"source"`
	Reason string    `json:"reason"`
	SentAt time.Time `json:"sent_at"`
}

// NewActivityFeedService builds the feed over a store.
func NewActivityFeedService(store repository.ActivityStore, opts FeedOptions, logger zerolog.Logger) ActivityFeedService {
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock()
	}
	location := opts.Location
	if location == nil {
		location = time.UTC
	}

	channel := ""
	subject := ""
	if opts.ChannelBase != "" {
		channel = opts.ChannelBase + ":activities"
		subject = strings.ReplaceAll(opts.ChannelBase, ":", ".") + ".activities"
	}

	return &activityFeedService{
		store:        store,
		clock:        clock,
		location:     location,
		redis:        opts.Redis,
		redisChannel: channel,
		nats:         opts.NATS,
		natsSubject:  subject,
		logger:       logger.With().Str("component", "activity_feed_service").Logger(),
		tracer:       otel.Tracer("github.com/noah-isme/mural-go-api/internal/service/activity_feed"),
		nodeID:       uuid.NewString(),
		subscribers:  make(map[uint64]func([]models.Activity)),
		dirty:        make(chan struct{}, 1),
	}
}

func (s *activityFeedService) Today() models.Date {
	return Today(s.clock, s.location)
}

func (s *activityFeedService) Visible(ctx context.Context, filter dto.BoardFilter) ([]models.Activity, error) {
	ctx, span := s.tracer.Start(ctx, "activities.visible", trace.WithAttributes(
		attribute.String("activities.type_filter", string(filter.Type)),
	))
	defer span.End()

	items, err := s.store.List(ctx)
	if err != nil {
		observability.BoardRequests().WithLabelValues("unavailable").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "store unavailable")
		return []models.Activity{}, err
	}

	visible := VisibleActivities(items, s.Today())
	if filter.Type != "" {
		filtered := visible[:0]
		for _, item := range visible {
			if item.Type == filter.Type {
				filtered = append(filtered, item)
			}
		}
		visible = filtered
	}

	observability.BoardRequests().WithLabelValues("ok").Inc()
	span.SetAttributes(attribute.Int("activities.visible", len(visible)))
	return visible, nil
}

func (s *activityFeedService) Subscribe(fn func([]models.Activity)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subscribers[id] = fn
	s.mu.Unlock()
	observability.FeedSubscribers().Inc()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			s.mu.Unlock()
			observability.FeedSubscribers().Dec()
		})
	}
}

func (s *activityFeedService) NotifyChanged(ctx context.Context, reason string) {
	observability.FeedEvents().WithLabelValues("local").Inc()
	s.markDirty()

	if err := s.publish(ctx, reason); err != nil {
		s.logger.Warn().Err(err).Str("reason", reason).Msg("failed to publish activity change")
	}
}

// Start runs the refresh loop and the cross-node consumers until ctx is cancelled.
func (s *activityFeedService) Start(ctx context.Context) {
	go s.refreshLoop(ctx)
	if s.redis != nil && s.redisChannel != "" {
		go s.consumeRedis(ctx)
	}
	if s.nats != nil && s.natsSubject != "" {
		go s.consumeNATS(ctx)
	}
}

// markDirty coalesces bursts: at most one refresh is pending at a time.
func (s *activityFeedService) markDirty() {
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

func (s *activityFeedService) refreshLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.dirty:
			s.refresh(ctx)
		}
	}
}

func (s *activityFeedService) refresh(ctx context.Context) {
	s.mu.RLock()
	listeners := make([]func([]models.Activity), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		listeners = append(listeners, fn)
	}
	s.mu.RUnlock()

	if len(listeners) == 0 {
		return
	}

	visible, err := s.Visible(ctx, dto.BoardFilter{})
	if err != nil {
		s.logger.Warn().Err(err).Msg("skipping feed push, store unavailable")
		return
	}

	for _, fn := range listeners {
		snapshot := make([]models.Activity, len(visible))
		copy(snapshot, visible)
		fn(snapshot)
	}
}

func (s *activityFeedService) publish(ctx context.Context, reason string) error {
	if (s.redis == nil || s.redisChannel == "") && (s.nats == nil || s.natsSubject == "") {
		return nil
	}

	payload, err := json.Marshal(feedEvent{Source: s.nodeID, Reason: reason, SentAt: s.clock.Now().UTC()})
	if err != nil {
		return err
	}

	var errs []error
	if s.redis != nil && s.redisChannel != "" {
		if err := s.redis.Publish(ctx, s.redisChannel, payload).Err(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.nats != nil && s.natsSubject != "" {
		if err := s.nats.Publish(s.natsSubject, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *activityFeedService) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisChannel)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			s.logger.Error().Err(err).Msg("activity redis subscription closed")
			return
		}
		s.handleEvent("redis", []byte(msg.Payload))
	}
}

func (s *activityFeedService) consumeNATS(ctx context.Context) {
	// Every node must see every change, so this is a plain subscription rather than a queue group.
	sub, err := s.nats.Subscribe(s.natsSubject, func(msg *nats.Msg) {
		s.handleEvent("nats", msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats activity subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain activity nats subscription")
		}
	}()
}

func (s *activityFeedService) handleEvent(origin string, payload []byte) {
	var event feedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		s.logger.Warn().Err(err).Msg("invalid activity event payload")
		return
	}
	if event.Source == s.nodeID {
		return
	}

	observability.FeedEvents().WithLabelValues(origin).Inc()
	s.markDirty()
}

func sortByDate(items []models.Activity) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Date.Before(items[j].Date)
	})
}
