package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/locate-service/internal/alerting"
	"github.com/spec-kit/locate-service/internal/deadline"
	"github.com/spec-kit/locate-service/internal/domain"
	"github.com/spec-kit/locate-service/internal/events"
	"github.com/spec-kit/locate-service/internal/notify"
	"github.com/spec-kit/locate-service/internal/repository"
	"github.com/spec-kit/locate-service/internal/worker"
	apperrors "github.com/spec-kit/locate-service/pkg/util/errorutil"
)

// redeliverAfter is how long a claimed alert may stay unsent before a
// sweep takes over its delivery.
const redeliverAfter = 2 * time.Minute

const redeliverBatch = 100

var errLimiter = errors.New("dispatch limiter")

// Notifier hands alerts to the transport sinks.
type Notifier interface {
	Allow(ctx context.Context) (bool, error)
	Deliver(ctx context.Context, base notify.Contract, targets []notify.Target) notify.Result
}

// AlertService evaluates the rule table, claims alerts and dispatches them.
type AlertService struct {
	base
	rules     *alerting.RuleSet
	notifier  Notifier
	calendars deadline.CalendarProvider
	digestLoc *time.Location
}

// AlertDependencies bundles collaborators of the alert service.
type AlertDependencies struct {
	Dependencies
	Rules     *alerting.RuleSet
	Notifier  Notifier
	Calendars deadline.CalendarProvider
	// DigestLocation decides the local day of organization digests.
	DigestLocation *time.Location
}

// NewAlertService constructs the service.
func NewAlertService(deps AlertDependencies) *AlertService {
	loc := deps.DigestLocation
	if loc == nil {
		loc = time.UTC
	}
	return &AlertService{
		base:      newBase(deps.Dependencies),
		rules:     deps.Rules,
		notifier:  deps.Notifier,
		calendars: deps.Calendars,
		digestLoc: loc,
	}
}

// Rules returns the active rule table.
func (s *AlertService) Rules() *alerting.RuleSet {
	return s.rules
}

// pendingAlert is a due candidate with what it needs to be rendered.
type pendingAlert struct {
	alerting.Candidate
	ticket  *domain.Ticket
	digest  []domain.Ticket
	isDaily bool
}

// RunSweep emits every due alert not yet claimed, most urgent first, until
// the dispatch budget runs out. The alert that found the budget spent stays
// claimed for redelivery; candidates after it wait for the next run.
func (s *AlertService) RunSweep(ctx context.Context) (SweepReport, error) {
	now := s.now()
	report := SweepReport{Sweep: "alerts", StartedAt: now}

	due, err := s.collect(ctx, now, &report)
	if err != nil {
		return report, err
	}
	for i := range due {
		p := &due[i]
		exists, err := s.store.Alerts().ExistsByDedupKey(ctx, p.DedupKey)
		if err != nil {
			return report, fmt.Errorf("check alert %s: %w", p.DedupKey, err)
		}
		if exists {
			continue
		}
		alert, deferred, err := s.emit(ctx, p, now)
		if errors.Is(err, errLimiter) {
			return report, err
		}
		if err != nil {
			report.Failed++
			s.logger.Error("emit alert failed", zap.String("dedup_key", p.DedupKey), zap.Error(err))
			continue
		}
		if alert == nil {
			report.Suppressed++
			continue
		}
		if deferred {
			report.Deferred = len(due) - i
			s.logger.Info("dispatch budget exhausted", zap.Int("deferred", report.Deferred))
			break
		}
		report.Emitted++
	}

	if report.Deferred == 0 {
		if err := s.redeliver(ctx, now, &report); err != nil {
			return report, err
		}
	}
	return report, nil
}

// ListDueAlerts returns the alerts a sweep would emit now, without
// emitting them.
func (s *AlertService) ListDueAlerts(ctx context.Context) ([]alerting.Candidate, error) {
	now := s.now()
	var report SweepReport
	due, err := s.collect(ctx, now, &report)
	if err != nil {
		return nil, err
	}
	out := make([]alerting.Candidate, 0, len(due))
	for _, p := range due {
		exists, err := s.store.Alerts().ExistsByDedupKey(ctx, p.DedupKey)
		if err != nil {
			return nil, err
		}
		if !exists {
			out = append(out, p.Candidate)
		}
	}
	return out, nil
}

// EmitForTicket evaluates one ticket's rules immediately and emits what is
// due. It returns the most urgent alert emitted, if any.
func (s *AlertService) EmitForTicket(ctx context.Context, ticketID string) (*domain.TicketAlert, error) {
	now := s.now()
	ticket, err := s.store.Tickets().GetByID(ctx, ticketID)
	if err != nil {
		return nil, notFound(err, "ticket", map[string]any{"ticket_id": ticketID})
	}
	facts, err := s.factsFor(ctx, ticket)
	if err != nil {
		return nil, err
	}
	candidates := alerting.EvaluateTicket(s.rules, facts, now)
	alerting.SortCandidates(candidates)

	var first *domain.TicketAlert
	for _, c := range candidates {
		exists, err := s.store.Alerts().ExistsByDedupKey(ctx, c.DedupKey)
		if err != nil {
			return first, err
		}
		if exists {
			continue
		}
		alert, deferred, err := s.emit(ctx, &pendingAlert{Candidate: c, ticket: ticket}, now)
		if err != nil {
			return first, err
		}
		if alert != nil && first == nil {
			first = alert
		}
		if deferred {
			break
		}
	}
	return first, nil
}

// EmitExpired claims the TICKET_EXPIRED alert of a ticket the expiry sweep
// just closed. Terminal tickets are never evaluated again, so the claim is
// taken even when the dispatch budget is spent; delivery then happens on a
// later sweep.
func (s *AlertService) EmitExpired(ctx context.Context, ticket *domain.Ticket) (*domain.TicketAlert, error) {
	rule := s.rules.Expired()
	const occurrence = "expired"
	p := &pendingAlert{
		Candidate: alerting.Candidate{
			Rule:           rule,
			TicketID:       ticket.ID,
			OrganizationID: ticket.OrganizationID,
			Occurrence:     occurrence,
			DedupKey:       alerting.DedupKey(ticket.ID, rule.AlertType, occurrence),
		},
		ticket: ticket,
	}
	alert, _, err := s.emit(ctx, p, s.now())
	return alert, err
}

// collect evaluates every active ticket and organization digest. Listing
// failures abort; a ticket whose facts cannot be loaded is flagged and
// skipped.
func (s *AlertService) collect(ctx context.Context, now time.Time, report *SweepReport) ([]pendingAlert, error) {
	tickets, err := s.store.Tickets().ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active tickets: %w", err)
	}
	report.Scanned = len(tickets)

	var (
		mu  sync.Mutex
		due []pendingAlert
	)
	actor := domain.SystemActor("alert-sweep")
	err = worker.ForEach(ctx, s.concurrency, tickets, func(ctx context.Context, t domain.Ticket) error {
		facts, err := s.factsFor(ctx, &t)
		if repository.IsUnavailable(err) {
			return fmt.Errorf("evaluate ticket %s: %w", t.ID, err)
		}
		if err != nil {
			s.flagTicket(ctx, t.ID, actor, err)
			mu.Lock()
			report.Flagged++
			mu.Unlock()
			return nil
		}
		candidates := alerting.EvaluateTicket(s.rules, facts, now)
		mu.Lock()
		for _, c := range candidates {
			due = append(due, pendingAlert{Candidate: c, ticket: facts.Ticket})
		}
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}

	byOrg := map[string][]domain.Ticket{}
	for _, t := range tickets {
		byOrg[t.OrganizationID] = append(byOrg[t.OrganizationID], t)
	}
	for orgID, orgTickets := range byOrg {
		for _, c := range alerting.EvaluateDigest(s.rules, orgID, s.digestLoc, now) {
			due = append(due, pendingAlert{Candidate: c, digest: orgTickets, isDaily: true})
		}
	}

	candidates := make([]alerting.Candidate, len(due))
	index := make(map[string]pendingAlert, len(due))
	for i, p := range due {
		candidates[i] = p.Candidate
		index[p.DedupKey] = p
	}
	alerting.SortCandidates(candidates)
	sorted := make([]pendingAlert, 0, len(candidates))
	for _, c := range candidates {
		sorted = append(sorted, index[c.DedupKey])
	}
	return sorted, nil
}

func (s *AlertService) factsFor(ctx context.Context, ticket *domain.Ticket) (alerting.TicketFacts, error) {
	facts := alerting.TicketFacts{Ticket: ticket}
	responses, err := s.store.Responses().ListByTicket(ctx, ticket.ID)
	if err != nil {
		return facts, fmt.Errorf("list responses: %w", err)
	}
	open, err := s.store.Conflicts().ListOpenByTicket(ctx, ticket.ID)
	if err != nil {
		return facts, fmt.Errorf("list conflicts: %w", err)
	}
	renewals, err := s.store.Tickets().ListRenewals(ctx, ticket.ID)
	if err != nil {
		return facts, fmt.Errorf("list renewals: %w", err)
	}
	facts.Responses = responses
	facts.OpenConflicts = open
	for _, r := range renewals {
		if r.Status != domain.TicketStatusCancelled {
			facts.HasRenewal = true
			break
		}
	}
	return facts, nil
}

// emit resolves recipients, claims the alert and delivers it. A nil alert
// means another writer claimed the same occurrence first. The budget is
// only consulted once the claim is won; deferred reports a claimed alert
// left for redelivery because the budget was spent.
func (s *AlertService) emit(ctx context.Context, p *pendingAlert, now time.Time) (*domain.TicketAlert, bool, error) {
	rule := p.Rule
	subs, err := s.store.Subscriptions().ListActiveByOrganization(ctx, p.OrganizationID)
	if err != nil {
		return nil, false, fmt.Errorf("list subscriptions: %w", err)
	}
	recipients := alerting.ResolveRecipients(subs, p.OrganizationID, p.ticket, rule)

	var msg alerting.Message
	if p.isDaily {
		msg = alerting.RenderDigest(p.Occurrence, p.digest, s.digestLoc)
	} else {
		msg = alerting.RenderTicket(rule.AlertType, p.ticket, p.Occurrence, s.locationFor(p.ticket))
	}

	alert := &domain.TicketAlert{
		ID:             uuid.NewString(),
		TicketID:       p.TicketID,
		OrganizationID: p.OrganizationID,
		AlertType:      rule.AlertType,
		DedupKey:       p.DedupKey,
		RuleName:       rule.Name,
		Channels:       rule.Channels,
		Priority:       rule.Priority,
		Subject:        msg.Subject,
		Body:           msg.Body,
		Recipients:     recipientIDs(recipients),
		RequiresAck:    rule.RequiresAck,
		CreatedAt:      now,
	}

	// Nobody can acknowledge an alert that reached nobody, so its
	// escalation is claimed together with it.
	var (
		escalation  *domain.TicketAlert
		supervisors []domain.User
	)
	if alert.RequiresAck && len(alert.Recipients) == 0 {
		supervisors, err = s.supervisors(ctx, alert.OrganizationID)
		if err != nil {
			return nil, false, err
		}
		escalation = s.escalationFor(alert, supervisors, unroutedMessage(alert, p.ticket), now)
	}

	actor := domain.SystemActor("alert-scheduler")
	claimed := false
	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		var err error
		claimed, err = s.claim(ctx, tx, alert, rule.AckWithin, actor, now)
		if err != nil || !claimed || escalation == nil {
			return err
		}
		_, err = s.claim(ctx, tx, escalation, 0, actor, now)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if !claimed {
		s.logger.Debug("duplicate alert suppressed", zap.String("dedup_key", alert.DedupKey))
		s.metrics.AlertSuppressed(string(alert.AlertType))
		return nil, false, nil
	}

	if escalation != nil {
		s.logger.Warn("alert requires acknowledgement but has no recipients, escalating",
			zap.String("alert_id", alert.ID), zap.String("alert_type", string(alert.AlertType)))
		reason := "no recipients for " + string(alert.AlertType)
		if err := s.sendEscalation(ctx, alert, escalation, supervisors, reason, actor); err != nil {
			s.logger.Error("escalation of unrouted alert failed", zap.String("alert_id", alert.ID), zap.Error(err))
		}
	}

	allowed, err := s.notifier.Allow(ctx)
	if err != nil {
		return alert, false, fmt.Errorf("%w: %w", errLimiter, err)
	}
	if !allowed {
		s.logger.Info("alert claimed, delivery deferred", zap.String("alert_id", alert.ID))
		return alert, true, nil
	}
	if err := s.deliver(ctx, alert, targetsFor(recipients)); err != nil {
		return alert, false, err
	}
	return alert, false, nil
}

// claim inserts the alert row and, when the alert requires one, an open
// acknowledgement row per targeted recipient due ackWithin from now. Rows
// exist whatever the delivery outcome, so an unreached recipient still
// escalates. It must run inside a transaction.
func (s *AlertService) claim(ctx context.Context, tx repository.Store, alert *domain.TicketAlert, ackWithin time.Duration, actor domain.Actor, now time.Time) (bool, error) {
	created, err := tx.Alerts().CreateIfAbsent(ctx, alert)
	if err != nil || !created {
		return false, err
	}
	var acks []domain.AlertAcknowledgement
	if alert.RequiresAck {
		acks = ackRows(alert, now.Add(ackWithin), now)
	}
	for i := range acks {
		if err := tx.Acknowledgements().Create(ctx, &acks[i]); err != nil {
			return false, err
		}
	}
	if alert.TicketID != "" {
		if err := tx.Tickets().RecordAlert(ctx, alert.TicketID, now); err != nil {
			return false, err
		}
	}
	err = s.appendAudit(ctx, tx, domain.AuditEntityAlert, alert.ID, alert.TicketID, "EMITTED", actor,
		map[string]any{
			"dedup_key":  alert.DedupKey,
			"rule":       alert.RuleName,
			"priority":   alert.Priority,
			"recipients": alert.Recipients,
			"acks":       len(acks),
		}, now)
	return err == nil, err
}

// deliver sends a claimed alert and records the outcome. Any target that
// could not be reached is reported as a failure, even when others were.
func (s *AlertService) deliver(ctx context.Context, alert *domain.TicketAlert, targets []notify.Target) error {
	if len(targets) == 0 {
		s.logger.Warn("alert has no reachable recipients",
			zap.String("alert_id", alert.ID), zap.String("alert_type", string(alert.AlertType)))
	}
	res := s.notifier.Deliver(ctx, notify.Contract{
		AlertID:        alert.ID,
		TicketID:       alert.TicketID,
		OrganizationID: alert.OrganizationID,
		AlertType:      alert.AlertType,
		Priority:       alert.Priority,
		Subject:        alert.Subject,
		Body:           alert.Body,
		RequiresAck:    alert.RequiresAck,
	}, targets)

	finished := s.now()
	alert.Attempts += res.Attempts
	action := "SENT"
	if res.OK() {
		alert.SentAt = &finished
		alert.FailedAt = nil
		alert.FailureReason = nil
	} else {
		action = "FAILED"
		reason := "dispatch failed"
		if res.LastError != nil {
			reason = res.LastError.Error()
		}
		alert.FailedAt = &finished
		alert.FailureReason = &reason
	}

	actor := domain.SystemActor("dispatcher")
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		if err := tx.Alerts().UpdateDelivery(ctx, alert); err != nil {
			return err
		}
		return s.appendAudit(ctx, tx, domain.AuditEntityAlert, alert.ID, alert.TicketID, action, actor,
			map[string]any{
				"attempts":  alert.Attempts,
				"delivered": len(res.Delivered),
				"failed":    len(res.Failed),
			}, finished)
	})
	if err != nil {
		return fmt.Errorf("record delivery of %s: %w", alert.ID, err)
	}

	payload := events.AlertPayload{
		AlertID:    alert.ID,
		AlertType:  alert.AlertType,
		Priority:   alert.Priority,
		Recipients: len(alert.Recipients),
		Attempts:   alert.Attempts,
	}
	if !res.OK() {
		failure := apperrors.NewDispatchFailure(alert.ID, alert.Attempts, res.LastError)
		s.logger.Error("alert dispatch failed",
			zap.String("alert_id", alert.ID),
			zap.String("ticket_id", alert.TicketID),
			zap.String("alert_type", string(alert.AlertType)),
			zap.Error(failure))
		payload.Reason = *alert.FailureReason
		s.publish(ctx, events.Event{Type: events.EventAlertFailed, TicketID: alert.TicketID, Actor: actor, Payload: payload})
		return nil
	}
	if len(res.Failed) > 0 {
		partial := payload
		partial.Reason = partialFailure(res)
		s.logger.Warn("alert partially delivered",
			zap.String("alert_id", alert.ID),
			zap.String("ticket_id", alert.TicketID),
			zap.Int("failed", len(res.Failed)),
			zap.Error(res.LastError))
		s.publish(ctx, events.Event{Type: events.EventAlertFailed, TicketID: alert.TicketID, Actor: actor, Payload: partial})
	}
	s.metrics.AlertEmitted(string(alert.AlertType), string(alert.Priority))
	s.publish(ctx, events.Event{Type: events.EventAlertEmitted, TicketID: alert.TicketID, Actor: actor, Payload: payload})
	return nil
}

// redeliver takes over alerts whose claimer never recorded an outcome.
func (s *AlertService) redeliver(ctx context.Context, now time.Time, report *SweepReport) error {
	pending, err := s.store.Alerts().ListUndelivered(ctx, redeliverBatch)
	if err != nil {
		return fmt.Errorf("list undelivered alerts: %w", err)
	}
	for i := range pending {
		alert := &pending[i]
		if alert.CreatedAt.After(now.Add(-redeliverAfter)) {
			continue
		}
		allowed, err := s.notifier.Allow(ctx)
		if err != nil {
			return fmt.Errorf("dispatch limiter: %w", err)
		}
		if !allowed {
			return nil
		}
		targets, err := s.targetsForStored(ctx, alert)
		if err != nil {
			report.Failed++
			s.logger.Error("resolve recipients for redelivery failed", zap.String("alert_id", alert.ID), zap.Error(err))
			continue
		}
		if err := s.deliver(ctx, alert, targets); err != nil {
			report.Failed++
			s.logger.Error("redelivery failed", zap.String("alert_id", alert.ID), zap.Error(err))
			continue
		}
		report.Redelivered++
	}
	return nil
}

// targetsForStored rebuilds the targets of a claimed alert, limited to the
// recipients chosen when it was claimed.
func (s *AlertService) targetsForStored(ctx context.Context, alert *domain.TicketAlert) ([]notify.Target, error) {
	rule, ok := s.rules.Named(alert.RuleName)
	if !ok {
		rule = alerting.Rule{Name: alert.RuleName, AlertType: alert.AlertType, Priority: alert.Priority, Channels: alert.Channels}
	}
	rule.Channels = alert.Channels
	wanted := map[string]bool{}
	for _, id := range alert.Recipients {
		wanted[id] = true
	}

	if alert.AlertType == domain.AlertEscalation {
		supervisors, err := s.supervisors(ctx, alert.OrganizationID)
		if err != nil {
			return nil, err
		}
		var kept []domain.User
		for _, u := range supervisors {
			if wanted[u.ID] {
				kept = append(kept, u)
			}
		}
		return supervisorTargets(kept, rule.Channels), nil
	}

	var ticket *domain.Ticket
	if alert.TicketID != "" {
		t, err := s.store.Tickets().GetByID(ctx, alert.TicketID)
		if err != nil {
			return nil, err
		}
		ticket = t
	}
	subs, err := s.store.Subscriptions().ListActiveByOrganization(ctx, alert.OrganizationID)
	if err != nil {
		return nil, err
	}
	var kept []alerting.Recipient
	for _, r := range alerting.ResolveRecipients(subs, alert.OrganizationID, ticket, rule) {
		if wanted[r.UserID] {
			kept = append(kept, r)
		}
	}
	return targetsFor(kept), nil
}

func (s *AlertService) supervisors(ctx context.Context, orgID string) ([]domain.User, error) {
	users, err := s.store.Users().ListByRole(ctx, orgID, domain.RoleSupervisor)
	if err != nil {
		return nil, fmt.Errorf("list supervisors: %w", err)
	}
	active := users[:0]
	for _, u := range users {
		if u.Active {
			active = append(active, u)
		}
	}
	return active, nil
}

func (s *AlertService) locationFor(ticket *domain.Ticket) *time.Location {
	if ticket == nil || s.calendars == nil {
		return s.digestLoc
	}
	cal, err := s.calendars.Get(ticket.Jurisdiction)
	if err != nil {
		return s.digestLoc
	}
	return cal.Location()
}

func recipientIDs(recipients []alerting.Recipient) []string {
	ids := make([]string, 0, len(recipients))
	for _, r := range recipients {
		ids = append(ids, r.UserID)
	}
	return ids
}

func targetsFor(recipients []alerting.Recipient) []notify.Target {
	var out []notify.Target
	for _, r := range recipients {
		for _, ch := range r.Channels {
			endpoint := r.Contacts.For(ch)
			if endpoint == "" {
				continue
			}
			out = append(out, notify.Target{UserID: r.UserID, Channel: ch, Endpoint: endpoint})
		}
	}
	return out
}

func supervisorTargets(users []domain.User, channels []domain.Channel) []notify.Target {
	var out []notify.Target
	for _, u := range users {
		contacts := domain.ContactEndpoints{Email: u.Email, Phone: u.Phone}
		for _, ch := range channels {
			if endpoint := contacts.For(ch); endpoint != "" {
				out = append(out, notify.Target{UserID: u.ID, Channel: ch, Endpoint: endpoint})
			}
		}
	}
	return out
}

// partialFailure names the targets a delivery could not reach.
func partialFailure(res notify.Result) string {
	unreached := make([]string, 0, len(res.Failed))
	for _, t := range res.Failed {
		unreached = append(unreached, t.UserID+"/"+string(t.Channel))
	}
	reason := fmt.Sprintf("%d of %d target(s) unreached: %s",
		len(res.Failed), len(res.Failed)+len(res.Delivered), strings.Join(unreached, ", "))
	if res.LastError != nil {
		reason += ": " + res.LastError.Error()
	}
	return reason
}

// ackRows builds one acknowledgement row per distinct targeted recipient.
func ackRows(alert *domain.TicketAlert, ackDeadline, now time.Time) []domain.AlertAcknowledgement {
	seen := map[string]bool{}
	var users []string
	for _, id := range alert.Recipients {
		if !seen[id] {
			seen[id] = true
			users = append(users, id)
		}
	}
	sort.Strings(users)
	rows := make([]domain.AlertAcknowledgement, 0, len(users))
	for _, userID := range users {
		rows = append(rows, domain.AlertAcknowledgement{
			ID:          uuid.NewString(),
			AlertID:     alert.ID,
			TicketID:    alert.TicketID,
			UserID:      userID,
			Status:      domain.AckStatusSent,
			AckDeadline: ackDeadline,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	return rows
}

func joinIDs(users []domain.User) string {
	return strings.Join(userIDs(users), ",")
}
