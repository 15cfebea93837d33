package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/doc-history/internal/api/dto"
	"github.com/spec-kit/doc-history/internal/auth"
	"github.com/spec-kit/doc-history/internal/domain"
	"github.com/spec-kit/doc-history/internal/service"
	apperrors "github.com/spec-kit/doc-history/pkg/util"
)

// DocumentsHandler serves document reads and writes.
type DocumentsHandler struct {
	service *service.DocumentService
}

// NewDocumentsHandler constructs handler.
func NewDocumentsHandler(documentService *service.DocumentService) *DocumentsHandler {
	return &DocumentsHandler{service: documentService}
}

// Create POST /collections/:collection/documents.
func (h *DocumentsHandler) Create(c *fiber.Ctx) error {
	req, err := parseWriteRequest(c)
	if err != nil {
		return err
	}
	doc, err := h.service.Create(c.UserContext(), c.Params("collection"), req.Fields, authorOf(c))
	if err != nil {
		return err
	}
	if err := setETag(c, doc); err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewDocumentResponse(doc, true)})
}

// Get GET /collections/:collection/documents/:id.
func (h *DocumentsHandler) Get(c *fiber.Ctx) error {
	doc, err := h.service.Get(c.UserContext(), c.Params("collection"), c.Params("id"))
	if err != nil {
		return err
	}
	if err := setETag(c, doc); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewDocumentResponse(doc, c.QueryBool("history", false))})
}

// Replace PUT /collections/:collection/documents/:id.
func (h *DocumentsHandler) Replace(c *fiber.Ctx) error {
	req, err := parseWriteRequest(c)
	if err != nil {
		return err
	}
	doc, event, err := h.service.Update(c.UserContext(), c.Params("collection"), c.Params("id"), req.Fields, authorOf(c), c.Get(fiber.HeaderIfMatch))
	if err != nil {
		return err
	}
	if err := setETag(c, doc); err != nil {
		return err
	}
	response := fiber.Map{"data": dto.NewDocumentResponse(doc, false)}
	if event != nil {
		response["event"] = dto.NewHistoryEventResponse(*event)
	}
	return c.JSON(response)
}

// Delete DELETE /collections/:collection/documents/:id
func (h *DocumentsHandler) Delete(c *fiber.Ctx) error {
	if err := h.service.Delete(c.UserContext(), c.Params("collection"), c.Params("id"), authorOf(c), c.Get(fiber.HeaderIfMatch)); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Find POST /collections/:collection/documents/find. The body is a JSON
// field filter that may carry $revision and $deepRevision.
func (h *DocumentsHandler) Find(c *fiber.Ctx) error {
	query, err := service.ParseFindQuery(c.Body())
	if err != nil {
		return err
	}

	if c.QueryBool("one", false) {
		doc, err := h.service.FindOne(c.UserContext(), c.Params("collection"), query)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"data": dto.NewDocumentResponse(doc, false)})
	}

	limit, offset, err := pagination(c)
	if err != nil {
		return err
	}
	docs, err := h.service.Find(c.UserContext(), c.Params("collection"), query, limit, offset)
	if err != nil {
		return err
	}
	items := make([]dto.DocumentResponse, 0, len(docs))
	for _, doc := range docs {
		items = append(items, dto.NewDocumentResponse(doc, false))
	}
	return c.JSON(fiber.Map{"data": items})
}

func parseWriteRequest(c *fiber.Ctx) (dto.WriteDocumentRequest, error) {
	var req dto.WriteDocumentRequest
	if err := c.BodyParser(&req); err != nil {
		return req, apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Fields == nil {
		return req, apperrors.NewValidationError("fields required", nil)
	}
	return req, nil
}

func pagination(c *fiber.Ctx) (int, int, error) {
	limit, err := strconv.Atoi(c.Query("limit", "20"))
	if err != nil || limit <= 0 || limit > 100 {
		return 0, 0, apperrors.NewValidationError("limit must be between 1 and 100", nil)
	}
	offset, err := strconv.Atoi(c.Query("offset", "0"))
	if err != nil || offset < 0 {
		return 0, 0, apperrors.NewValidationError("offset must be a non-negative integer", nil)
	}
	return limit, offset, nil
}

func setETag(c *fiber.Ctx, doc *domain.Document) error {
	fingerprint, err := doc.Fingerprint()
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	c.Set(fiber.HeaderETag, `"`+fingerprint+`"`)
	return nil
}

// authorOf returns the caller's subject id, used as the history author reference.
func authorOf(c *fiber.Ctx) string {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return ""
	}
	return principal.SubjectID
}
