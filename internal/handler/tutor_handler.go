package handler

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/mural-go-api/internal/dto"
	"github.com/noah-isme/mural-go-api/internal/models"
	"github.com/noah-isme/mural-go-api/internal/service"
	"github.com/noah-isme/mural-go-api/internal/utils"
	"github.com/noah-isme/mural-go-api/pkg/attachment"
)

// TutorHandler serves tutor sessions, streamed replies and image analysis.
type TutorHandler struct {
	tutor  service.TutorService
	vision service.VisionService
	logger zerolog.Logger
}

// NewTutorHandler constructs the handler.
func NewTutorHandler(tutor service.TutorService, vision service.VisionService, logger zerolog.Logger) *TutorHandler {
	return &TutorHandler{
		tutor:  tutor,
		vision: vision,
		logger: logger.With().Str("component", "tutor_handler").Logger(),
	}
}

// Register binds the tutor routes. messageLimit guards the endpoints that reach the model.
func (h *TutorHandler) Register(router fiber.Router, messageLimit fiber.Handler) {
	if messageLimit == nil {
		messageLimit = func(c *fiber.Ctx) error { return c.Next() }
	}

	router.Post("/sessions", h.open)
	router.Get("/sessions/:id", h.get)
	router.Post("/sessions/:id/messages", messageLimit, h.message)
	router.Post("/sessions/:id/reset", h.reset)
	router.Delete("/sessions/:id", h.close)
	router.Post("/vision", messageLimit, h.describe)
}

func (h *TutorHandler) open(c *fiber.Ctx) error {
	var req dto.TutorSessionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, errInvalidBody.Error())
		}
	}

	snapshot, err := h.tutor.Open(requestContext(c), req.SessionID)
	if err != nil {
		return h.sessionError(c, snapshot, err)
	}
	return utils.SendSuccess(c, "tutor session ready", h.response(snapshot))
}

func (h *TutorHandler) get(c *fiber.Ctx) error {
	snapshot, err := h.tutor.Get(requestContext(c), c.Params("id"))
	if err != nil {
		return respondError(c, h.logger, err, "failed to load tutor session")
	}
	return utils.SendSuccess(c, "tutor session", h.response(snapshot))
}

func (h *TutorHandler) reset(c *fiber.Ctx) error {
	snapshot, err := h.tutor.Reset(requestContext(c), c.Params("id"))
	if err != nil {
		return h.sessionError(c, snapshot, err)
	}
	return utils.SendSuccess(c, "tutor session reset", h.response(snapshot))
}

func (h *TutorHandler) close(c *fiber.Ctx) error {
	if err := h.tutor.Close(c.Params("id")); err != nil {
		return respondError(c, h.logger, err, "failed to close tutor session")
	}
	return utils.SendSuccess(c, "tutor session closed", nil)
}

// message accepts a user turn and streams the transcript back as server-sent events. Once the
// stream has started, failures are reported inside the transcript, not as HTTP errors.
func (h *TutorHandler) message(c *fiber.Ctx) error {
	var req dto.TutorMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, errInvalidBody.Error())
	}

	sessionID := c.Params("id")
	turn, err := h.tutor.Begin(requestContext(c), sessionID, req.Text)
	if err != nil {
		return respondError(c, h.logger, err, "failed to submit message")
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	logger := requestLogger(h.logger, c).With().Str("session_id", sessionID).Logger()

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		broken := false
		send := func(event dto.TutorStreamEvent) {
			if broken {
				return
			}
			if err := writeTutorEvent(w, event); err != nil {
				broken = true
				logger.Debug().Err(err).Msg("client left, finishing turn without streaming")
			}
		}

		snapshot := turn.Run(func(transcript models.Transcript) {
			send(dto.TutorStreamEvent{Type: "transcript", Transcript: transcript})
		})

		done := dto.TutorStreamEvent{Type: "done", Transcript: snapshot.Transcript}
		if last := len(snapshot.Transcript) - 1; last >= 0 && snapshot.Transcript[last].IsError {
			done.Type = "error"
			done.Message = snapshot.Transcript[last].Text
		}
		send(done)
	})

	return nil
}

func (h *TutorHandler) describe(c *fiber.Ctx) error {
	var req dto.VisionRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, errInvalidBody.Error())
	}

	upload, err := formUpload(c, "image")
	if err != nil {
		return respondError(c, h.logger, err, "invalid image upload")
	}
	if upload == nil {
		return utils.SendError(c, fiber.StatusBadRequest, "image is required")
	}

	resp, err := h.vision.Describe(requestContext(c), req.Prompt, *upload)
	if err != nil {
		if errors.Is(err, service.ErrValidation) || errors.Is(err, attachment.ErrTooLarge) {
			return respondError(c, h.logger, err, "invalid image")
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("vision request failed")
		return utils.SendError(c, fiber.StatusBadGateway, "the tutor could not analyse the image, please try again")
	}
	return utils.SendSuccess(c, "image analysed", resp)
}

func (h *TutorHandler) sessionError(c *fiber.Ctx, snapshot service.TutorSnapshot, err error) error {
	if errors.Is(err, service.ErrInitialization) {
		requestLogger(h.logger, c).Warn().Err(err).Str("session_id", snapshot.ID).Msg("tutor unavailable")
		return utils.SendErrorWithData(c, fiber.StatusServiceUnavailable, service.ErrInitialization.Error(), h.response(snapshot))
	}
	return respondError(c, h.logger, err, "tutor session failed")
}

func (h *TutorHandler) response(snapshot service.TutorSnapshot) dto.TutorSessionResponse {
	transcript := snapshot.Transcript
	if transcript == nil {
		transcript = models.Transcript{}
	}
	return dto.TutorSessionResponse{
		SessionID:  snapshot.ID,
		State:      string(snapshot.State),
		Provider:   h.tutor.Provider(),
		DemoMode:   h.tutor.DemoMode(),
		Error:      snapshot.Err,
		Transcript: transcript,
	}
}

func writeTutorEvent(w *bufio.Writer, event dto.TutorStreamEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	return w.Flush()
}
