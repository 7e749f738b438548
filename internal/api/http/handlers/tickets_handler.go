package handlers

import (
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/access"
	"github.com/spec-kit/support-desk/internal/api/dto"
	"github.com/spec-kit/support-desk/internal/auth"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/service"
	"github.com/spec-kit/support-desk/internal/storage"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

const attachmentField = "attachment"

// TicketsHandler manages ticket endpoints.
type TicketsHandler struct {
	service  *service.TicketService
	resolver *storage.URLResolver
	logger   *zap.Logger
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService, resolver *storage.URLResolver, logger *zap.Logger) *TicketsHandler {
	return &TicketsHandler{service: ticketService, resolver: resolver, logger: logger}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	var input service.TicketCreateInput
	if isMultipart(c) {
		form, err := c.MultipartForm()
		if err != nil {
			return apperrors.NewValidationError("invalid multipart payload", nil)
		}
		input.Title = formValue(form, "title")
		input.Description = formValue(form, "description")
		input.Category = formValue(form, "category")
		input.Status = optionalFormValue(form, "status")
		upload, closer, err := attachmentFromForm(form)
		if err != nil {
			return err
		}
		defer closer()
		input.Attachment = upload
	} else {
		var req dto.CreateTicketRequest
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
		input = service.TicketCreateInput{
			Title:       req.Title,
			Description: req.Description,
			Category:    req.Category,
			Status:      req.Status,
		}
	}

	ticket, err := h.service.CreateTicket(c.UserContext(), auth.CallerFromContext(c), input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": h.ticketResponse(ticket)})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	query := service.TicketListQuery{
		Category: c.Query("category"),
		Status:   c.Query("status"),
		Search:   c.Query("search"),
		Ordering: c.Query("ordering"),
		Page:     parseInt(c.Query("page"), 1),
		PageSize: parseInt(c.Query("page_size"), 0),
	}
	page, err := h.service.ListTickets(c.UserContext(), auth.CallerFromContext(c), query)
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(page.Tickets))
	for i := range page.Tickets {
		items = append(items, h.ticketResponse(&page.Tickets[i]))
	}
	return c.JSON(fiber.Map{
		"data": items,
		"meta": dto.ListMeta{Page: page.Page, PageSize: page.PageSize, Total: page.Total},
	})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, err := h.service.GetTicket(c.UserContext(), auth.CallerFromContext(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": h.ticketResponse(ticket)})
}

// UpdateTicket PUT and PATCH /tickets/:id.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	caller := auth.CallerFromContext(c)
	if err := h.service.AuthorizeAction(caller, access.ActionUpdate); err != nil {
		return err
	}

	var input service.TicketUpdateInput
	if isMultipart(c) {
		form, err := c.MultipartForm()
		if err != nil {
			return apperrors.NewValidationError("invalid multipart payload", nil)
		}
		input.Title = optionalFormValue(form, "title")
		input.Description = optionalFormValue(form, "description")
		input.Category = optionalFormValue(form, "category")
		input.Status = optionalFormValue(form, "status")
		upload, closer, err := attachmentFromForm(form)
		if err != nil {
			return err
		}
		defer closer()
		input.Attachment = upload
	} else {
		var req dto.UpdateTicketRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return apperrors.NewValidationError("invalid payload", nil)
			}
		}
		input = service.TicketUpdateInput{
			Title:       req.Title,
			Description: req.Description,
			Category:    req.Category,
			Status:      req.Status,
		}
	}

	ticket, err := h.service.UpdateTicket(c.UserContext(), caller, c.Params("id"), input)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": h.ticketResponse(ticket)})
}

// SetStatus PATCH /tickets/:id/status.
func (h *TicketsHandler) SetStatus(c *fiber.Ctx) error {
	caller := auth.CallerFromContext(c)
	if err := h.service.AuthorizeAction(caller, access.ActionSetStatus); err != nil {
		return err
	}

	var req dto.SetStatusRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	ticket, err := h.service.SetStatus(c.UserContext(), caller, c.Params("id"), req.Status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": h.ticketResponse(ticket)})
}

// DeleteTicket DELETE /tickets/:id.
func (h *TicketsHandler) DeleteTicket(c *fiber.Ctx) error {
	if err := h.service.DeleteTicket(c.UserContext(), auth.CallerFromContext(c), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

func (h *TicketsHandler) ticketResponse(ticket *domain.Ticket) dto.TicketResponse {
	return dto.TicketResponse{
		ID:            ticket.ID,
		Title:         ticket.Title,
		Description:   ticket.Description,
		Category:      ticket.Category,
		Status:        ticket.Status,
		Attachment:    h.attachmentURL(ticket),
		CreatedBy:     dto.NewUserSummaryResponse(ticket.CreatedBy),
		CreatedAt:     ticket.CreatedAt,
		StatusHistory: dto.NewStatusHistoryResponses(ticket.StatusHistory),
	}
}

// attachmentURL never fails the response: an unresolvable attachment is
// rendered as null.
func (h *TicketsHandler) attachmentURL(ticket *domain.Ticket) *string {
	if ticket.Attachment == nil || *ticket.Attachment == "" || h.resolver == nil {
		return nil
	}
	resolved, err := h.resolver.Resolve(*ticket.Attachment)
	if err != nil {
		h.logger.Warn("attachment url resolution failed",
			zap.String("ticket_id", ticket.ID),
			zap.String("public_id", *ticket.Attachment),
			zap.Error(err))
		return nil
	}
	return &resolved
}

func isMultipart(c *fiber.Ctx) bool {
	return strings.HasPrefix(string(c.Request().Header.ContentType()), fiber.MIMEMultipartForm)
}

func formValue(form *multipart.Form, key string) string {
	if values := form.Value[key]; len(values) > 0 {
		return values[0]
	}
	return ""
}

func optionalFormValue(form *multipart.Form, key string) *string {
	values, ok := form.Value[key]
	if !ok || len(values) == 0 {
		return nil
	}
	return &values[0]
}

// attachmentFromForm opens the uploaded file, if any. The returned closer is
// always safe to call.
func attachmentFromForm(form *multipart.Form) (*service.AttachmentUpload, func(), error) {
	files := form.File[attachmentField]
	if len(files) == 0 {
		return nil, func() {}, nil
	}
	header := files[0]
	file, err := header.Open()
	if err != nil {
		return nil, func() {}, apperrors.NewValidationError("unreadable attachment", map[string]any{
			attachmentField: err.Error(),
		})
	}
	upload := &service.AttachmentUpload{
		FileName:    header.Filename,
		ContentType: header.Header.Get(fiber.HeaderContentType),
		Size:        header.Size,
		Content:     file,
	}
	return upload, func() { _ = file.Close() }, nil
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
