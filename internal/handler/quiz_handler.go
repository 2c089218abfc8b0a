package handler

import (
	"context"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-submission-gateway/internal/dto"
	"github.com/noah-isme/gema-submission-gateway/internal/middleware"
	"github.com/noah-isme/gema-submission-gateway/internal/service"
	"github.com/noah-isme/gema-submission-gateway/internal/utils"
)

// QuizHandler saves drafts, submits attempts and streams the countdown.
type QuizHandler struct {
	service   service.QuizService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewQuizHandler constructs a quiz handler.
func NewQuizHandler(service service.QuizService, validator *validator.Validate, logger zerolog.Logger) *QuizHandler {
	return &QuizHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "quiz_handler").Logger(),
	}
}

// Register attaches the quiz routes under /quiz/attempts.
func (h *QuizHandler) Register(router fiber.Router) {
	router.Put("/:id/answers", h.saveDraft)
	router.Post("/:id/submit", h.submit)
	router.Get("/:id/timer", h.upgrade, websocket.New(h.timer))
}

func (h *QuizHandler) saveDraft(c *fiber.Ctx) error {
	learnerID := middleware.LearnerID(c)
	if learnerID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req dto.QuizDraftRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}
	if err := h.validator.Struct(req); err != nil {
		return utils.Fail(c, fiber.StatusUnprocessableEntity, "validation failed", fiber.Map{"field": "answers", "reason": "answers are required"})
	}

	draft, err := h.service.SaveDraft(requestContext(c), c.Params("id"), learnerID, req)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "draft saved", draft)
}

func (h *QuizHandler) submit(c *fiber.Ctx) error {
	learnerID := middleware.LearnerID(c)
	if learnerID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req dto.QuizSubmitRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
		}
	}

	result, err := h.service.Submit(requestContext(c), c.Params("id"), learnerID, req.Answers, service.SubmitReasonManual)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "quiz submitted", result)
}

func (h *QuizHandler) upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	// The fiber context is recycled once the connection is hijacked, so only values are carried over.
	ctx := backendContext(context.Background(), middleware.AccessToken(c), middleware.GetCorrelationID(c))
	c.Locals("request_ctx", ctx)
	return c.Next()
}

func (h *QuizHandler) timer(conn *websocket.Conn) {
	attemptID := conn.Params("id")
	learnerID, _ := conn.Locals(middleware.LocalUserID).(string)
	if learnerID == "" {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(closeCode(fiber.StatusUnauthorized), "unauthorized"))
		return
	}

	baseCtx, _ := conn.Locals("request_ctx").(context.Context)
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	var mu sync.Mutex
	closed := false
	emit := func(frame dto.TimerFrame) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		if err := conn.WriteJSON(frame); err != nil {
			h.logger.Debug().Err(err).Str("attempt_id", attemptID).Msg("timer frame not delivered")
		}
	}

	timer, err := h.service.OpenTimer(ctx, attemptID, learnerID, emit)
	if err != nil {
		status, message := errorStatus(err)
		h.logger.Warn().Err(err).Str("attempt_id", attemptID).Msg("quiz timer rejected")
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(closeCode(status), message))
		return
	}
	defer timer.Stop()

	h.logger.Info().Str("learner_id", learnerID).Str("attempt_id", attemptID).Bool("limited", timer.Limited()).Msg("quiz timer connected")

	// Client frames are ignored; reading only detects disconnects.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	select {
	case <-timer.Done():
	case <-ctx.Done():
	}

	mu.Lock()
	closed = true
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "timer finished"))
	mu.Unlock()

	h.logger.Info().Str("learner_id", learnerID).Str("attempt_id", attemptID).Bool("fired", timer.Fired()).Msg("quiz timer disconnected")
}

// closeCode places HTTP statuses in the application range of websocket close codes.
func closeCode(status int) int {
	return 4000 + status
}
