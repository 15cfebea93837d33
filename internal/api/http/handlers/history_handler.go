package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/doc-history/internal/api/dto"
	"github.com/spec-kit/doc-history/internal/history"
	"github.com/spec-kit/doc-history/internal/service"
	apperrors "github.com/spec-kit/doc-history/pkg/util"
)

// HistoryHandler exposes the audit trail of documents.
type HistoryHandler struct {
	service *service.DocumentService
}

// NewHistoryHandler constructs handler.
func NewHistoryHandler(documentService *service.DocumentService) *HistoryHandler {
	return &HistoryHandler{service: documentService}
}

// List GET /collections/:collection/documents/:id/history.
func (h *HistoryHandler) List(c *fiber.Ctx) error {
	events, err := h.service.ListHistory(c.UserContext(), c.Params("collection"), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewHistoryResponse(events)})
}

// Revise POST /collections/:collection/documents/:id/revise.
func (h *HistoryHandler) Revise(c *fiber.Ctx) error {
	var req dto.ReviseRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	selector, err := reviseSelector(req)
	if err != nil {
		return err
	}

	doc, event, err := h.service.Revise(c.UserContext(), c.Params("collection"), c.Params("id"), service.ReviseInput{
		Selector: selector,
		Deep:     req.Deep,
		Persist:  req.Persist,
	}, authorOf(c))
	if err != nil {
		return err
	}
	if req.Persist {
		if err := setETag(c, doc); err != nil {
			return err
		}
	}

	response := fiber.Map{"data": dto.NewDocumentResponse(doc, false)}
	if event != nil {
		response["event"] = dto.NewHistoryEventResponse(*event)
	}
	return c.JSON(response)
}

// Forget DELETE /collections/:collection/documents/:id/history/:eventId.
// With ?single=true only that event is removed, otherwise it and all older ones.
func (h *HistoryHandler) Forget(c *fiber.Ctx) error {
	doc, removed, err := h.service.Forget(c.UserContext(), c.Params("collection"), c.Params("id"), c.Params("eventId"), c.QueryBool("single", false), authorOf(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.ForgetResponse{Removed: removed, Remaining: len(doc.History)}})
}

func reviseSelector(req dto.ReviseRequest) (history.Selector, error) {
	set := 0
	for _, present := range []bool{req.EventID != "", req.ChangeID != "", req.At != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return history.Selector{}, apperrors.NewValidationError("exactly one of event_id, change_id, at required", nil)
	}

	switch {
	case req.At != nil:
		return history.AtTime(*req.At), nil
	case req.EventID != "":
		return history.ByID(req.EventID), nil
	default:
		return history.ByID(req.ChangeID), nil
	}
}
