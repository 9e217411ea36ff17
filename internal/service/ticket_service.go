package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/locate-service/internal/deadline"
	"github.com/spec-kit/locate-service/internal/domain"
	"github.com/spec-kit/locate-service/internal/events"
	"github.com/spec-kit/locate-service/internal/repository"
	"github.com/spec-kit/locate-service/internal/risk"
	"github.com/spec-kit/locate-service/internal/worker"
	apperrors "github.com/spec-kit/locate-service/pkg/util/errorutil"
)

// TicketService coordinates the locate ticket lifecycle.
type TicketService struct {
	base
	deadlines *deadline.Calculator
	alerts    *AlertService
}

// TicketDependencies bundles collaborators of the ticket service.
type TicketDependencies struct {
	Dependencies
	Deadlines *deadline.Calculator
	Alerts    *AlertService
}

// UtilityInput names one utility notified for a ticket.
type UtilityInput struct {
	Code     string
	Name     string
	Facility domain.FacilityKind
}

// TicketCreateInput describes ticket intake.
type TicketCreateInput struct {
	TicketNumber   string
	OrganizationID string
	ProjectID      *string
	CreatedBy      *string
	Jurisdiction   string
	Type           domain.TicketType
	WorkType       domain.WorkType
	Address        string
	Point          *domain.GeoPoint
	Utilities      []UtilityInput
}

// ResponseInput is a utility's positive response.
type ResponseInput struct {
	UtilityCode  string
	ResponseType domain.ResponseType
	Evidence     domain.Evidence
}

// VerificationInput is a crew's on-site check of one utility's response.
type VerificationInput struct {
	UtilityCode string
	VerifiedBy  string
	Result      domain.VerificationResult
	Evidence    domain.Evidence
}

// TicketView is the status snapshot returned to callers.
type TicketView struct {
	Ticket        *domain.Ticket
	Responses     []domain.UtilityResponse
	OpenConflicts []domain.Conflict
}

// ResponseOutcome is the state after recording a response. Alert is the
// most urgent alert the response triggered, if any.
type ResponseOutcome struct {
	Ticket   *domain.Ticket
	Response *domain.UtilityResponse
	Alert    *domain.TicketAlert
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		base:      newBase(deps.Dependencies),
		deadlines: deps.Deadlines,
		alerts:    deps.Alerts,
	}
}

// CreateTicket stamps deadlines, creates one response row per utility and
// moves the ticket to PENDING once those rows exist.
func (s *TicketService) CreateTicket(ctx context.Context, input TicketCreateInput) (*domain.Ticket, error) {
	if err := validateCreate(input); err != nil {
		return nil, err
	}
	number := strings.TrimSpace(input.TicketNumber)
	if number == "" {
		number = generateTicketNumber()
	} else if _, err := s.store.Tickets().GetByNumber(ctx, number); err == nil {
		return nil, apperrors.NewConflict("ticket number already exists", map[string]any{"ticket_number": number})
	} else if !repository.IsNotFound(err) {
		return nil, err
	}

	var ticket *domain.Ticket
	var result *transition
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		var err error
		ticket, result, err = s.insertTicket(ctx, tx, input, number, nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	actor := creatorActor(input.CreatedBy)
	s.publish(ctx, append([]events.Event{{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    actor,
		Payload: events.TicketCreatedPayload{
			TicketNumber: ticket.TicketNumber,
			Type:         ticket.Type,
			Jurisdiction: ticket.Jurisdiction,
			Utilities:    ticket.TotalUtilities,
			RiskScore:    ticket.RiskScore,
		},
	}}, result.events(actor)...)...)
	s.emitFor(ctx, ticket.ID)
	return ticket, nil
}

func (s *TicketService) insertTicket(ctx context.Context, tx repository.Store, input TicketCreateInput, number string, parentID *string) (*domain.Ticket, *transition, error) {
	now := s.now()
	deadlines, err := s.deadlines.Compute(ctx, input.Jurisdiction, input.Type, now)
	if err != nil {
		return nil, nil, err
	}

	ticket := &domain.Ticket{
		ID:             uuid.NewString(),
		TicketNumber:   number,
		OrganizationID: input.OrganizationID,
		ProjectID:      input.ProjectID,
		CreatedBy:      input.CreatedBy,
		Jurisdiction:   input.Jurisdiction,
		Type:           input.Type,
		WorkType:       input.WorkType,
		Site:           domain.DigSite{Address: strings.TrimSpace(input.Address), Point: input.Point},
		Status:         domain.TicketStatusReceived,
		LegalDigDate:   deadlines.LegalDigDate,
		ExpiresAt:      deadlines.ExpiresAt,
		UpdateByDate:   deadlines.UpdateByDate,
		ParentTicketID: parentID,
		CreatedAt:      now,
	}
	ticket.RiskScore = risk.Score(risk.InputFor(ticket, nil, 0), now)
	if err := tx.Tickets().Create(ctx, ticket); err != nil {
		return nil, nil, fmt.Errorf("create ticket: %w", err)
	}

	for _, u := range input.Utilities {
		response := &domain.UtilityResponse{
			ID:                     uuid.NewString(),
			TicketID:               ticket.ID,
			UtilityCode:            strings.TrimSpace(u.Code),
			UtilityName:            strings.TrimSpace(u.Name),
			Facility:               u.Facility,
			Status:                 domain.ResponseStatusPending,
			ResponseWindowOpensAt:  deadlines.ResponseWindowOpensAt,
			ResponseWindowClosesAt: deadlines.ResponseWindowClosesAt,
			CreatedAt:              now,
		}
		if err := tx.Responses().Create(ctx, response); err != nil {
			return nil, nil, fmt.Errorf("create utility response: %w", err)
		}
	}

	actor := creatorActor(input.CreatedBy)
	err = s.appendHistory(ctx, tx, ticket.ID, actor, domain.ChangeTypeStatus, nil,
		map[string]any{
			"status":         ticket.Status,
			"legal_dig_date": ticket.LegalDigDate,
			"expires_at":     ticket.ExpiresAt,
			"utilities":      len(input.Utilities),
		}, now)
	if err != nil {
		return nil, nil, err
	}
	result, err := s.reconcile(ctx, tx, ticket, actor, "responses_created", now)
	if err != nil {
		return nil, nil, err
	}
	return ticket, result, nil
}

// GetTicketStatus returns the ticket with its responses and open conflicts.
func (s *TicketService) GetTicketStatus(ctx context.Context, organizationID, ticketID string) (*TicketView, error) {
	ticket, err := ticketFor(ctx, s.store, ticketID, organizationID)
	if err != nil {
		return nil, err
	}
	responses, err := s.store.Responses().ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	open, err := s.store.Conflicts().ListOpenByTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	return &TicketView{Ticket: ticket, Responses: responses, OpenConflicts: open}, nil
}

// RecordUtilityResponse stores a utility's response, runs conflict
// detection, advances the ticket and re-scores it. Alerts the change makes
// due are emitted before returning.
func (s *TicketService) RecordUtilityResponse(ctx context.Context, organizationID, ticketID string, input ResponseInput) (*ResponseOutcome, error) {
	code := strings.TrimSpace(input.UtilityCode)
	if code == "" {
		return nil, apperrors.NewValidationError("utility_code is required", nil)
	}
	if !input.ResponseType.Valid() {
		return nil, apperrors.NewValidationError("unknown response type", map[string]any{"response_type": input.ResponseType})
	}
	actor := domain.UtilityActor(code)

	var (
		response *domain.UtilityResponse
		result   *transition
	)
	err := s.withTicketRetry(ctx, ticketID, func(tx repository.Store) error {
		now := s.now()
		ticket, err := s.openTicket(ctx, tx, organizationID, ticketID)
		if err != nil {
			return err
		}
		r, err := tx.Responses().GetByTicketAndUtility(ctx, ticketID, code)
		if err != nil {
			return notFound(err, "utility response", map[string]any{"ticket_id": ticketID, "utility_code": code})
		}
		old := map[string]any{"status": r.Status, "revision": r.Revision}
		if r.ResponseType != nil {
			old["response_type"] = *r.ResponseType
		}

		rt := input.ResponseType
		r.ResponseType = &rt
		r.Status = rt.Status()
		r.RespondedAt = &now
		r.MarkedAt = nil
		if rt == domain.ResponseMarked || rt == domain.ResponsePartiallyMarked {
			r.MarkedAt = &now
		}
		r.Evidence = input.Evidence
		r.VerifiedAt = nil
		r.VerifiedBy = nil
		r.VerificationResult = nil
		r.VerificationEvidence = domain.Evidence{}
		r.Revision++
		r.UpdatedAt = now
		if err := tx.Responses().Update(ctx, r); err != nil {
			return fmt.Errorf("update utility response: %w", err)
		}
		err = s.appendHistory(ctx, tx, ticketID, actor, domain.ChangeTypeResponse, old,
			map[string]any{"status": r.Status, "response_type": rt, "revision": r.Revision, "utility_code": code},
			now)
		if err != nil {
			return err
		}
		response = r
		result, err = s.reconcile(ctx, tx, ticket, actor, "utility_response", now)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, append([]events.Event{{
		Type:     events.EventResponseRecorded,
		TicketID: ticketID,
		Actor:    actor,
		Payload:  events.ResponseRecordedPayload{UtilityCode: code, Status: response.Status, Revision: response.Revision},
	}}, result.events(actor)...)...)

	return &ResponseOutcome{Ticket: result.ticket, Response: response, Alert: s.emitFor(ctx, ticketID)}, nil
}

// RecordFieldVerification stores a crew's check of the marks a utility
// reported. A mismatch raises a conflict.
func (s *TicketService) RecordFieldVerification(ctx context.Context, organizationID, ticketID string, input VerificationInput) (*domain.Ticket, error) {
	code := strings.TrimSpace(input.UtilityCode)
	switch {
	case code == "":
		return nil, apperrors.NewValidationError("utility_code is required", nil)
	case strings.TrimSpace(input.VerifiedBy) == "":
		return nil, apperrors.NewValidationError("verified_by is required", nil)
	case input.Result != domain.VerificationMatch && input.Result != domain.VerificationMismatch:
		return nil, apperrors.NewValidationError("result must be MATCH or MISMATCH", map[string]any{"result": input.Result})
	}
	actor := domain.UserActor(input.VerifiedBy)

	var result *transition
	err := s.withTicketRetry(ctx, ticketID, func(tx repository.Store) error {
		now := s.now()
		ticket, err := s.openTicket(ctx, tx, organizationID, ticketID)
		if err != nil {
			return err
		}
		r, err := tx.Responses().GetByTicketAndUtility(ctx, ticketID, code)
		if err != nil {
			return notFound(err, "utility response", map[string]any{"ticket_id": ticketID, "utility_code": code})
		}
		if !r.Status.Responded() {
			return apperrors.NewValidationError("utility has not responded yet", map[string]any{"utility_code": code})
		}
		verdict := input.Result
		verifiedBy := input.VerifiedBy
		r.VerifiedAt = &now
		r.VerifiedBy = &verifiedBy
		r.VerificationResult = &verdict
		r.VerificationEvidence = input.Evidence
		r.UpdatedAt = now
		if err := tx.Responses().Update(ctx, r); err != nil {
			return fmt.Errorf("update utility response: %w", err)
		}
		err = s.appendHistory(ctx, tx, ticketID, actor, domain.ChangeTypeVerification,
			map[string]any{"status": r.Status, "revision": r.Revision},
			map[string]any{"utility_code": code, "result": verdict},
			now)
		if err != nil {
			return err
		}
		result, err = s.reconcile(ctx, tx, ticket, actor, "field_verification", now)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, result.events(actor)...)
	s.emitFor(ctx, ticketID)
	return result.ticket, nil
}

// CancelTicket closes a ticket. No further alerts are evaluated for it and
// its open acknowledgements are superseded.
func (s *TicketService) CancelTicket(ctx context.Context, organizationID, ticketID, cancelledBy, reason string) (*domain.Ticket, error) {
	if strings.TrimSpace(cancelledBy) == "" {
		return nil, apperrors.NewValidationError("cancelled_by is required", nil)
	}
	actor := domain.UserActor(cancelledBy)
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "cancelled"
	}

	var result *transition
	err := s.withTicketRetry(ctx, ticketID, func(tx repository.Store) error {
		ticket, err := ticketFor(ctx, tx, ticketID, organizationID)
		if err != nil {
			return err
		}
		result, err = s.moveTo(ctx, tx, ticket, domain.TicketStatusCancelled, actor, reason, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, result.events(actor)...)
	return result.ticket, nil
}

// CreateRenewal opens a successor ticket for work that continues past the
// parent's expiry. Deadlines are stamped fresh; the parent is left as is.
func (s *TicketService) CreateRenewal(ctx context.Context, organizationID, parentID, requestedBy string) (*domain.Ticket, error) {
	if strings.TrimSpace(requestedBy) == "" {
		return nil, apperrors.NewValidationError("requested_by is required", nil)
	}
	actor := domain.UserActor(requestedBy)

	var (
		renewal *domain.Ticket
		result  *transition
	)
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		parent, err := ticketFor(ctx, tx, parentID, organizationID)
		if err != nil {
			return err
		}
		if parent.Status == domain.TicketStatusCancelled {
			return apperrors.NewConflict("cancelled tickets cannot be renewed", map[string]any{"ticket_id": parentID})
		}
		existing, err := tx.Tickets().ListRenewals(ctx, parentID)
		if err != nil {
			return err
		}
		for _, r := range existing {
			if !r.Status.Terminal() {
				return apperrors.NewConflict("ticket already has an active renewal",
					map[string]any{"ticket_id": parentID, "renewal_id": r.ID})
			}
		}
		responses, err := tx.Responses().ListByTicket(ctx, parentID)
		if err != nil {
			return err
		}

		input := TicketCreateInput{
			OrganizationID: parent.OrganizationID,
			ProjectID:      parent.ProjectID,
			CreatedBy:      &requestedBy,
			Jurisdiction:   parent.Jurisdiction,
			Type:           parent.Type,
			WorkType:       parent.WorkType,
			Address:        parent.Site.Address,
			Point:          parent.Site.Point,
		}
		for _, r := range responses {
			input.Utilities = append(input.Utilities, UtilityInput{Code: r.UtilityCode, Name: r.UtilityName, Facility: r.Facility})
		}
		number := fmt.Sprintf("%s-R%d", parent.TicketNumber, len(existing)+1)
		renewal, result, err = s.insertTicket(ctx, tx, input, number, &parent.ID)
		if err != nil {
			return err
		}
		return s.appendHistory(ctx, tx, parentID, actor, domain.ChangeTypeRenewal, nil,
			map[string]any{"renewal_id": renewal.ID, "ticket_number": renewal.TicketNumber}, s.now())
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, append([]events.Event{{
		Type:     events.EventTicketCreated,
		TicketID: renewal.ID,
		Actor:    actor,
		Payload: events.TicketCreatedPayload{
			TicketNumber: renewal.TicketNumber,
			Type:         renewal.Type,
			Jurisdiction: renewal.Jurisdiction,
			Utilities:    renewal.TotalUtilities,
			RiskScore:    renewal.RiskScore,
		},
	}}, result.events(actor)...)...)
	s.emitFor(ctx, renewal.ID)
	return renewal, nil
}

// ListFlagged returns tickets awaiting manual review. An empty organization
// lists every organization.
func (s *TicketService) ListFlagged(ctx context.Context, organizationID string) ([]domain.Ticket, error) {
	return s.store.Tickets().ListFlagged(ctx, organizationID)
}

// ClearFlag records that an operator reviewed a flagged ticket.
func (s *TicketService) ClearFlag(ctx context.Context, organizationID, ticketID, clearedBy string) (*domain.Ticket, error) {
	var ticket *domain.Ticket
	err := s.withTicketRetry(ctx, ticketID, func(tx repository.Store) error {
		now := s.now()
		t, err := ticketFor(ctx, tx, ticketID, organizationID)
		if err != nil {
			return err
		}
		if !t.Flagged() {
			ticket = t
			return nil
		}
		old := map[string]any{"processing_error": t.ProcessingError, "flagged_at": t.FlaggedAt}
		t.ProcessingError = nil
		t.FlaggedAt = nil
		t.UpdatedAt = now
		if err := tx.Tickets().Update(ctx, t); err != nil {
			return err
		}
		ticket = t
		return s.appendHistory(ctx, tx, ticketID, domain.UserActor(clearedBy), domain.ChangeTypeFlag, old,
			map[string]any{"cleared": true}, now)
	})
	return ticket, err
}

// ListHistory returns the audit trail of a ticket, oldest first.
func (s *TicketService) ListHistory(ctx context.Context, organizationID, ticketID string) ([]domain.TicketHistory, error) {
	if _, err := ticketFor(ctx, s.store, ticketID, organizationID); err != nil {
		return nil, err
	}
	return s.store.History().ListByTicket(ctx, ticketID)
}

// ExpireSweep expires tickets past expires_at and re-scores the rest. CLEAR
// tickets stay CLEAR after expiry.
func (s *TicketService) ExpireSweep(ctx context.Context) (SweepReport, error) {
	now := s.now()
	report := SweepReport{Sweep: "expiry", StartedAt: now}
	tickets, err := s.store.Tickets().ListActive(ctx)
	if err != nil {
		return report, fmt.Errorf("list active tickets: %w", err)
	}
	report.Scanned = len(tickets)

	var mu sync.Mutex
	actor := domain.SystemActor("auto_expire")
	err = worker.ForEach(ctx, s.concurrency, tickets, func(ctx context.Context, t domain.Ticket) error {
		expired, err := s.expireOne(ctx, t.ID, actor, now)
		if repository.IsUnavailable(err) {
			return fmt.Errorf("expire ticket %s: %w", t.ID, err)
		}
		if err != nil {
			s.flagTicket(ctx, t.ID, actor, err)
			mu.Lock()
			report.Flagged++
			mu.Unlock()
			return nil
		}
		if expired == nil {
			return nil
		}
		mu.Lock()
		report.Changed++
		mu.Unlock()

		if s.alerts == nil {
			return nil
		}
		alert, err := s.alerts.EmitExpired(ctx, expired)
		mu.Lock()
		defer mu.Unlock()
		switch {
		case err != nil:
			report.Failed++
			s.logger.Error("expiry alert failed", zap.String("ticket_id", t.ID), zap.Error(err))
		case alert != nil:
			report.Emitted++
		default:
			report.Suppressed++
		}
		return nil
	})
	return report, err
}

// expireOne returns the ticket if this call expired it.
func (s *TicketService) expireOne(ctx context.Context, ticketID string, actor domain.Actor, now time.Time) (*domain.Ticket, error) {
	var result *transition
	err := s.withTicketRetry(ctx, ticketID, func(tx repository.Store) error {
		result = nil
		ticket, err := tx.Tickets().GetByID(ctx, ticketID)
		if err != nil {
			return err
		}
		if ticket.Status.Terminal() {
			return nil
		}
		if ticket.Status != domain.TicketStatusClear && !now.Before(ticket.ExpiresAt) {
			result, err = s.moveTo(ctx, tx, ticket, domain.TicketStatusExpired, actor, "auto_expire", now)
			return err
		}
		return s.rescore(ctx, tx, ticket, now)
	})
	if err != nil || result == nil {
		return nil, err
	}
	s.publish(ctx, result.events(actor)...)
	return result.ticket, nil
}

// rescore writes the ticket's risk score if the passage of time changed it.
func (s *TicketService) rescore(ctx context.Context, tx repository.Store, ticket *domain.Ticket, now time.Time) error {
	responses, err := tx.Responses().ListByTicket(ctx, ticket.ID)
	if err != nil {
		return fmt.Errorf("list responses: %w", err)
	}
	open, err := tx.Conflicts().ListOpenByTicket(ctx, ticket.ID)
	if err != nil {
		return fmt.Errorf("list conflicts: %w", err)
	}
	score := risk.Score(risk.InputFor(ticket, responses, len(open)), now)
	if score == ticket.RiskScore {
		return nil
	}
	ticket.RiskScore = score
	ticket.UpdatedAt = now
	return tx.Tickets().Update(ctx, ticket)
}

// openTicket loads a ticket that still accepts response writes.
func (s *TicketService) openTicket(ctx context.Context, tx repository.Store, organizationID, ticketID string) (*domain.Ticket, error) {
	ticket, err := ticketFor(ctx, tx, ticketID, organizationID)
	if err != nil {
		return nil, err
	}
	if ticket.Status.Terminal() {
		return nil, apperrors.NewConflict("ticket is closed", map[string]any{"ticket_id": ticketID, "status": ticket.Status})
	}
	return ticket, nil
}

// emitFor evaluates alert rules right after a write. Failures are logged;
// the next sweep picks up whatever was missed.
func (s *TicketService) emitFor(ctx context.Context, ticketID string) *domain.TicketAlert {
	if s.alerts == nil {
		return nil
	}
	alert, err := s.alerts.EmitForTicket(ctx, ticketID)
	if err != nil {
		s.logger.Warn("alert evaluation after write failed", zap.String("ticket_id", ticketID), zap.Error(err))
	}
	return alert
}

func validateCreate(input TicketCreateInput) error {
	details := map[string]any{}
	if strings.TrimSpace(input.OrganizationID) == "" {
		details["organization_id"] = "required"
	}
	if strings.TrimSpace(input.Jurisdiction) == "" {
		details["jurisdiction"] = "required"
	}
	if !input.Type.Valid() {
		details["type"] = "unknown ticket type"
	}
	if !input.WorkType.Valid() {
		details["work_type"] = "unknown work type"
	}
	if strings.TrimSpace(input.Address) == "" {
		details["address"] = "required"
	}
	seen := map[string]bool{}
	for i, u := range input.Utilities {
		code := strings.TrimSpace(u.Code)
		switch {
		case code == "":
			details[fmt.Sprintf("utilities[%d].code", i)] = "required"
		case seen[code]:
			details[fmt.Sprintf("utilities[%d].code", i)] = "duplicate utility " + code
		case !u.Facility.Valid():
			details[fmt.Sprintf("utilities[%d].facility", i)] = "unknown facility kind"
		}
		seen[code] = true
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid ticket", details)
	}
	return nil
}

func creatorActor(createdBy *string) domain.Actor {
	if createdBy != nil && *createdBy != "" {
		return domain.UserActor(*createdBy)
	}
	return domain.SystemActor("intake")
}

func generateTicketNumber() string {
	return "LT-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}
