package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/access"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/repository"
	"github.com/spec-kit/support-desk/internal/storage"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

const (
	maxTitleLength  = 255
	defaultPageSize = 50
	maxPageSize     = 200
)

// TicketService coordinates ticket workflows. Every status change it makes is
// written to the status history ledger in the same transaction as the ticket.
type TicketService struct {
	store       repository.Store
	policy      *access.Policy
	attachments storage.BlobStore
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	maxUpload   int64
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	Store          repository.Store
	Policy         *access.Policy
	BlobStore      storage.BlobStore
	Dispatcher     events.Dispatcher
	Logger         *zap.Logger
	MaxUploadBytes int64
}

// AttachmentUpload is a file received with a create or update request.
type AttachmentUpload struct {
	FileName    string
	ContentType string
	Size        int64
	Content     io.Reader
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title       string
	Description string
	Category    string
	Status      *string
	Attachment  *AttachmentUpload
}

// TicketUpdateInput carries the fields to change; nil fields keep their value.
type TicketUpdateInput struct {
	Title       *string
	Description *string
	Category    *string
	Status      *string
	Attachment  *AttachmentUpload
}

// TicketListQuery describes list filters as received from the client.
type TicketListQuery struct {
	Category string
	Status   string
	Search   string
	Ordering string
	Page     int
	PageSize int
}

// TicketPage is one page of a ticket listing.
type TicketPage struct {
	Tickets  []domain.Ticket
	Total    int
	Page     int
	PageSize int
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		store:       deps.Store,
		policy:      deps.Policy,
		attachments: deps.BlobStore,
		dispatcher:  deps.Dispatcher,
		logger:      logger,
		maxUpload:   deps.MaxUploadBytes,
	}
}

// AuthorizeAction runs the role check for an action class on its own, so
// transports can reject a caller before reading the request body.
func (s *TicketService) AuthorizeAction(caller *domain.User, action access.Action) error {
	return s.policy.Authorize(caller, action)
}

// CreateTicket persists a ticket owned by caller together with the history
// entry for its initial status.
func (s *TicketService) CreateTicket(ctx context.Context, caller *domain.User, input TicketCreateInput) (*domain.Ticket, error) {
	if err := s.policy.Authorize(caller, access.ActionCreate); err != nil {
		return nil, err
	}

	details := map[string]any{}
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	validateTitle(title, details)
	if description == "" {
		details["description"] = "this field is required"
	}
	category, ok := domain.ParseCategory(strings.TrimSpace(input.Category))
	switch {
	case strings.TrimSpace(input.Category) == "":
		details["category"] = "this field is required"
	case !ok:
		details["category"] = invalidChoice(input.Category, domain.Categories)
	}
	status := domain.TicketStatusNew
	if input.Status != nil && strings.TrimSpace(*input.Status) != "" {
		parsed, ok := domain.ParseTicketStatus(strings.TrimSpace(*input.Status))
		if !ok {
			details["status"] = invalidChoice(*input.Status, domain.TicketStatuses)
		}
		status = parsed
	}
	s.validateAttachment(input.Attachment, details)
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid ticket", details)
	}

	publicID, err := s.upload(ctx, input.Attachment)
	if err != nil {
		return nil, err
	}

	ticket := &domain.Ticket{
		Title:       title,
		Description: description,
		Category:    category,
		Status:      status,
		Attachment:  publicID,
		CreatedByID: caller.ID,
	}
	err = s.store.WithTx(ctx, func(stores repository.StoreProvider) error {
		if err := stores.Tickets().Create(ctx, ticket); err != nil {
			return fmt.Errorf("create ticket: %w", err)
		}
		entry := &domain.StatusHistoryEntry{
			TicketID:    ticket.ID,
			Status:      ticket.Status,
			ChangedByID: &caller.ID,
		}
		if err := stores.StatusHistory().Append(ctx, entry); err != nil {
			return fmt.Errorf("record initial status: %w", err)
		}
		entry.ChangedBy = caller.Summary()
		ticket.StatusHistory = []domain.StatusHistoryEntry{*entry}
		return nil
	})
	if err != nil {
		s.discardBlob(ctx, publicID)
		return nil, err
	}
	ticket.CreatedBy = caller.Summary()

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    actorOf(caller),
		Payload: events.TicketCreatedPayload{
			Category: ticket.Category,
			Status:   ticket.Status,
			Title:    ticket.Title,
		},
	})
	return ticket, nil
}

// ListTickets returns the caller's visible tickets, filtered, ordered and paged.
func (s *TicketService) ListTickets(ctx context.Context, caller *domain.User, query TicketListQuery) (*TicketPage, error) {
	if err := s.policy.Authorize(caller, access.ActionList); err != nil {
		return nil, err
	}

	filter := repository.TicketFilter{
		CreatedByID: access.ListScope(caller),
		Ordering:    repository.ParseTicketOrdering(query.Ordering),
	}
	details := map[string]any{}
	if raw := strings.TrimSpace(query.Category); raw != "" {
		category, ok := domain.ParseCategory(raw)
		if !ok {
			details["category"] = invalidChoice(raw, domain.Categories)
		}
		filter.Category = &category
	}
	if raw := strings.TrimSpace(query.Status); raw != "" {
		status, ok := domain.ParseTicketStatus(raw)
		if !ok {
			details["status"] = invalidChoice(raw, domain.TicketStatuses)
		}
		filter.Status = &status
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid filter", details)
	}
	if search := strings.TrimSpace(query.Search); search != "" {
		filter.SearchTerm = &search
	}

	page, pageSize := normalizePage(query.Page, query.PageSize)
	filter.Limit = pageSize

	total, err := s.store.Tickets().Count(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("count tickets: %w", err)
	}
	// pages past the end are empty; checking first keeps the offset from overflowing
	if lastPage := (total + pageSize - 1) / pageSize; page > lastPage {
		return &TicketPage{Tickets: []domain.Ticket{}, Total: total, Page: page, PageSize: pageSize}, nil
	}
	filter.Offset = (page - 1) * pageSize
	tickets, err := s.store.Tickets().List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}

	ids := make([]string, 0, len(tickets))
	for _, ticket := range tickets {
		ids = append(ids, ticket.ID)
	}
	histories, err := s.store.StatusHistory().ListByTickets(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}
	for i := range tickets {
		tickets[i].StatusHistory = histories[tickets[i].ID]
		if tickets[i].StatusHistory == nil {
			tickets[i].StatusHistory = []domain.StatusHistoryEntry{}
		}
	}

	return &TicketPage{Tickets: tickets, Total: total, Page: page, PageSize: pageSize}, nil
}

// GetTicket returns a ticket with its history if the caller may see it.
func (s *TicketService) GetTicket(ctx context.Context, caller *domain.User, ticketID string) (*domain.Ticket, error) {
	if err := s.policy.Authorize(caller, access.ActionRead); err != nil {
		return nil, err
	}
	ticket, err := s.store.Tickets().GetByID(ctx, ticketID)
	if err != nil {
		return nil, ticketLookupError(err)
	}
	if err := s.policy.AuthorizeTicket(caller, ticket); err != nil {
		return nil, err
	}
	history, err := s.store.StatusHistory().ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}
	ticket.StatusHistory = history
	return ticket, nil
}

// UpdateTicket applies the supplied fields over the stored ticket. It serves both
// full and partial updates: omitted fields always keep their current value. A
// history entry is appended only when the resulting status differs from the
// status the ticket had before the call.
func (s *TicketService) UpdateTicket(ctx context.Context, caller *domain.User, ticketID string, input TicketUpdateInput) (*domain.Ticket, error) {
	if err := s.policy.Authorize(caller, access.ActionUpdate); err != nil {
		return nil, err
	}

	details := map[string]any{}
	var title, description *string
	if input.Title != nil {
		trimmed := strings.TrimSpace(*input.Title)
		validateTitle(trimmed, details)
		title = &trimmed
	}
	if input.Description != nil {
		trimmed := strings.TrimSpace(*input.Description)
		if trimmed == "" {
			details["description"] = "this field may not be blank"
		}
		description = &trimmed
	}
	var category *domain.Category
	if input.Category != nil {
		parsed, ok := domain.ParseCategory(strings.TrimSpace(*input.Category))
		if !ok {
			details["category"] = invalidChoice(*input.Category, domain.Categories)
		}
		category = &parsed
	}
	var status *domain.TicketStatus
	if input.Status != nil {
		parsed, ok := domain.ParseTicketStatus(strings.TrimSpace(*input.Status))
		if !ok {
			details["status"] = invalidChoice(*input.Status, domain.TicketStatuses)
		}
		status = &parsed
	}
	s.validateAttachment(input.Attachment, details)
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid ticket", details)
	}

	publicID, err := s.upload(ctx, input.Attachment)
	if err != nil {
		return nil, err
	}

	var (
		updated       *domain.Ticket
		oldStatus     domain.TicketStatus
		oldAttachment *string
		changed       []string
	)
	err = s.store.WithTx(ctx, func(stores repository.StoreProvider) error {
		ticket, err := stores.Tickets().GetByIDForUpdate(ctx, ticketID)
		if err != nil {
			return ticketLookupError(err)
		}
		if err := s.policy.AuthorizeTicket(caller, ticket); err != nil {
			return err
		}
		oldStatus = ticket.Status
		oldAttachment = ticket.Attachment

		if title != nil && *title != ticket.Title {
			ticket.Title = *title
			changed = append(changed, "title")
		}
		if description != nil && *description != ticket.Description {
			ticket.Description = *description
			changed = append(changed, "description")
		}
		if category != nil && *category != ticket.Category {
			ticket.Category = *category
			changed = append(changed, "category")
		}
		if status != nil && *status != ticket.Status {
			ticket.Status = *status
			changed = append(changed, "status")
		}
		if publicID != nil {
			ticket.Attachment = publicID
			changed = append(changed, "attachment")
		}

		if err := stores.Tickets().Update(ctx, ticket); err != nil {
			return fmt.Errorf("update ticket: %w", err)
		}
		if err := s.recordStatusChange(ctx, stores, caller, ticket, oldStatus); err != nil {
			return err
		}
		updated = ticket
		return nil
	})
	if err != nil {
		s.discardBlob(ctx, publicID)
		return nil, err
	}
	if publicID != nil {
		s.discardBlob(ctx, oldAttachment)
	}

	if len(changed) > 0 {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketUpdated,
			TicketID: updated.ID,
			Actor:    actorOf(caller),
			Payload:  events.TicketUpdatedPayload{Fields: changed},
		})
	}
	s.publishStatusChange(ctx, caller, updated, oldStatus)
	return updated, nil
}

// SetStatus changes only the status of a ticket. Repeating the current status
// saves the ticket unchanged and leaves the history alone.
func (s *TicketService) SetStatus(ctx context.Context, caller *domain.User, ticketID string, rawStatus *string) (*domain.Ticket, error) {
	if err := s.policy.Authorize(caller, access.ActionSetStatus); err != nil {
		return nil, err
	}
	if rawStatus == nil || strings.TrimSpace(*rawStatus) == "" {
		return nil, apperrors.NewValidationError("status field is required", map[string]any{
			"status": "this field is required",
		})
	}
	newStatus, ok := domain.ParseTicketStatus(strings.TrimSpace(*rawStatus))
	if !ok {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("invalid status, must be one of: %s", joinChoices(domain.TicketStatuses)),
			map[string]any{"status": invalidChoice(*rawStatus, domain.TicketStatuses)},
		)
	}

	var (
		updated   *domain.Ticket
		oldStatus domain.TicketStatus
	)
	err := s.store.WithTx(ctx, func(stores repository.StoreProvider) error {
		ticket, err := stores.Tickets().GetByIDForUpdate(ctx, ticketID)
		if err != nil {
			return ticketLookupError(err)
		}
		if err := s.policy.AuthorizeTicket(caller, ticket); err != nil {
			return err
		}
		oldStatus = ticket.Status
		ticket.Status = newStatus
		if err := stores.Tickets().Update(ctx, ticket); err != nil {
			return fmt.Errorf("update ticket status: %w", err)
		}
		if err := s.recordStatusChange(ctx, stores, caller, ticket, oldStatus); err != nil {
			return err
		}
		updated = ticket
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishStatusChange(ctx, caller, updated, oldStatus)
	return updated, nil
}

// DeleteTicket removes a ticket and, through the store, its whole history.
func (s *TicketService) DeleteTicket(ctx context.Context, caller *domain.User, ticketID string) error {
	if err := s.policy.Authorize(caller, access.ActionDelete); err != nil {
		return err
	}

	var deleted *domain.Ticket
	err := s.store.WithTx(ctx, func(stores repository.StoreProvider) error {
		ticket, err := stores.Tickets().GetByIDForUpdate(ctx, ticketID)
		if err != nil {
			return ticketLookupError(err)
		}
		if err := s.policy.AuthorizeTicket(caller, ticket); err != nil {
			return err
		}
		if err := stores.Tickets().Delete(ctx, ticket.ID); err != nil {
			return fmt.Errorf("delete ticket: %w", err)
		}
		deleted = ticket
		return nil
	})
	if err != nil {
		return err
	}
	s.discardBlob(ctx, deleted.Attachment)

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketDeleted,
		TicketID: deleted.ID,
		Actor:    actorOf(caller),
		Payload:  events.TicketDeletedPayload{Title: deleted.Title},
	})
	return nil
}

// recordStatusChange appends a history entry when ticket.Status differs from
// oldStatus, then reloads the ticket's history inside the same transaction.
func (s *TicketService) recordStatusChange(ctx context.Context, stores repository.StoreProvider, caller *domain.User, ticket *domain.Ticket, oldStatus domain.TicketStatus) error {
	if ticket.Status != oldStatus {
		entry := &domain.StatusHistoryEntry{
			TicketID:    ticket.ID,
			Status:      ticket.Status,
			ChangedByID: &caller.ID,
		}
		if err := stores.StatusHistory().Append(ctx, entry); err != nil {
			return fmt.Errorf("record status change: %w", err)
		}
	}
	history, err := stores.StatusHistory().ListByTicket(ctx, ticket.ID)
	if err != nil {
		return fmt.Errorf("list status history: %w", err)
	}
	ticket.StatusHistory = history
	return nil
}

func (s *TicketService) publishStatusChange(ctx context.Context, caller *domain.User, ticket *domain.Ticket, oldStatus domain.TicketStatus) {
	if ticket.Status == oldStatus {
		return
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		Actor:    actorOf(caller),
		Payload: events.TicketStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: ticket.Status,
		},
	})
}

// validateAttachment accepts only listed extensions whose content sniffs as
// the matching type. The sniffed bytes are stitched back onto Content.
func (s *TicketService) validateAttachment(upload *AttachmentUpload, details map[string]any) {
	if upload == nil {
		return
	}
	ext, ok := storage.AttachmentExtension(upload.FileName)
	if !ok {
		details["attachment"] = "only PNG, JPEG, GIF, WebP or PDF files are accepted"
		return
	}
	if s.maxUpload > 0 && upload.Size > s.maxUpload {
		details["attachment"] = fmt.Sprintf("file exceeds the %d byte limit", s.maxUpload)
		return
	}
	if upload.Content == nil {
		details["attachment"] = "the submitted file is empty"
		return
	}
	head := make([]byte, storage.SniffLength)
	n, err := io.ReadFull(upload.Content, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		details["attachment"] = "the submitted file could not be read"
		return
	}
	head = head[:n]
	if !storage.MatchesExtension(ext, head) {
		details["attachment"] = fmt.Sprintf("file content does not match the %s extension", ext)
		return
	}
	upload.Content = io.MultiReader(bytes.NewReader(head), upload.Content)
}

func (s *TicketService) upload(ctx context.Context, upload *AttachmentUpload) (*string, error) {
	if upload == nil {
		return nil, nil
	}
	if s.attachments == nil {
		return nil, apperrors.NewValidationError("attachments are not supported", map[string]any{
			"attachment": "no attachment store configured",
		})
	}
	publicID, err := s.attachments.Put(ctx, upload.FileName, upload.Content)
	if err != nil {
		return nil, fmt.Errorf("store attachment: %w", err)
	}
	return &publicID, nil
}

// discardBlob removes a blob that is no longer referenced. Failures only cost
// disk space, so they are logged and dropped.
func (s *TicketService) discardBlob(ctx context.Context, publicID *string) {
	if publicID == nil || s.attachments == nil {
		return
	}
	if err := s.attachments.Delete(context.WithoutCancel(ctx), *publicID); err != nil {
		s.logger.Warn("failed to delete attachment", zap.String("public_id", *publicID), zap.Error(err))
	}
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

func ticketLookupError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound("ticket", nil)
	}
	return fmt.Errorf("load ticket: %w", err)
}

func validateTitle(title string, details map[string]any) {
	switch {
	case title == "":
		details["title"] = "this field is required"
	case utf8.RuneCountInString(title) > maxTitleLength:
		details["title"] = fmt.Sprintf("ensure this field has no more than %d characters", maxTitleLength)
	}
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

func invalidChoice[T ~string](value string, choices []T) string {
	return fmt.Sprintf("%q is not a valid choice, must be one of: %s", value, joinChoices(choices))
}

func joinChoices[T ~string](choices []T) string {
	parts := make([]string, len(choices))
	for i, c := range choices {
		parts[i] = string(c)
	}
	return strings.Join(parts, ", ")
}

func actorOf(caller *domain.User) events.Actor {
	return events.Actor{UserID: caller.ID, Staff: caller.IsStaff}
}
