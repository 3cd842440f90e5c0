package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/mural-go-api/internal/dto"
	"github.com/noah-isme/mural-go-api/internal/middleware"
	"github.com/noah-isme/mural-go-api/internal/models"
	"github.com/noah-isme/mural-go-api/internal/service"
	"github.com/noah-isme/mural-go-api/internal/utils"
	"github.com/noah-isme/mural-go-api/pkg/attachment"
)

const feedPingInterval = 30 * time.Second

// ActivityFeedHandler serves the public board, attachment downloads and the live feed.
type ActivityFeedHandler struct {
	feed        service.ActivityFeedService
	activities  service.ActivityService
	attachments service.AttachmentService
	logger      zerolog.Logger
}

// NewActivityFeedHandler constructs the handler instance.
func NewActivityFeedHandler(feed service.ActivityFeedService, activities service.ActivityService, attachments service.AttachmentService, logger zerolog.Logger) *ActivityFeedHandler {
	return &ActivityFeedHandler{
		feed:        feed,
		activities:  activities,
		attachments: attachments,
		logger:      logger.With().Str("component", "activity_feed_handler").Logger(),
	}
}

// Register wires the board routes.
func (h *ActivityFeedHandler) Register(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("request_ctx", requestContext(c))
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	router.Get("/ws", websocket.New(h.stream))
	router.Get("", h.list)
	router.Get("/:id/attachment", h.download)
}

func (h *ActivityFeedHandler) list(c *fiber.Ctx) error {
	filter := dto.BoardFilter{}
	if raw := strings.TrimSpace(c.Query("type")); raw != "" {
		activityType, err := models.ParseActivityType(raw)
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid activity type")
		}
		filter.Type = activityType
	}

	items, err := h.feed.Visible(requestContext(c), filter)
	board := dto.NewBoardResponse(items, h.feed.Today())
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("board read degraded to empty list")
		return utils.SendErrorWithData(c, fiber.StatusServiceUnavailable, storeUnavailableMessage, board)
	}

	return utils.SendSuccess(c, "activities", board)
}

func (h *ActivityFeedHandler) download(c *fiber.Ctx) error {
	ctx := requestContext(c)
	activity, err := h.activities.Get(ctx, c.Params("id"))
	if err != nil {
		return respondError(c, h.logger, err, "failed to load activity")
	}
	if activity.Attachment == nil {
		return utils.SendError(c, fiber.StatusNotFound, "activity has no attachment")
	}

	if attachment.IsReference(activity.Attachment.Content) {
		return c.Redirect(activity.Attachment.Content, fiber.StatusFound)
	}

	payload, err := h.attachments.Open(ctx, *activity.Attachment)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Str("activity_id", activity.ID).Msg("attachment unreadable")
		return utils.SendError(c, fiber.StatusUnprocessableEntity, "attachment could not be decoded")
	}

	c.Set(fiber.HeaderContentType, payload.MimeType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", activity.Attachment.Name))
	return c.Status(fiber.StatusOK).Send(payload.Data)
}

func (h *ActivityFeedHandler) stream(conn *websocket.Conn) {
	ctx, _ := conn.Locals("request_ctx").(context.Context)
	if ctx == nil {
		ctx = context.Background()
	}
	logger := h.logger.With().Str("correlation_id", middleware.CorrelationIDFromContext(ctx)).Logger()

	// Only the latest list matters, so a slow client skips intermediate pushes.
	updates := make(chan []models.Activity, 1)
	unsubscribe := h.feed.Subscribe(func(items []models.Activity) {
		for {
			select {
			case updates <- items:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	})
	defer unsubscribe()

	items, err := h.feed.Visible(ctx, dto.BoardFilter{})
	if err != nil {
		err = conn.WriteJSON(dto.FeedMessage{Type: "unavailable", Message: storeUnavailableMessage})
	} else {
		err = h.writeSnapshot(conn, items)
	}
	if err != nil {
		logger.Debug().Err(err).Msg("failed to write initial board")
		return
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(feedPingInterval)
	defer ticker.Stop()

	logger.Debug().Msg("board websocket connected")
	for {
		select {
		case <-closed:
			logger.Debug().Msg("board websocket disconnected")
			return
		case items := <-updates:
			if err := h.writeSnapshot(conn, items); err != nil {
				logger.Debug().Err(err).Msg("failed to push board")
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}

func (h *ActivityFeedHandler) writeSnapshot(conn *websocket.Conn, items []models.Activity) error {
	board := dto.NewBoardResponse(items, h.feed.Today())
	return conn.WriteJSON(dto.FeedMessage{Type: "snapshot", Board: &board})
}
