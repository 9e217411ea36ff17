// Package lifecycle holds the locate ticket state machine rules. It is pure:
// persistence, auditing and retries live in the ticket service.
package lifecycle

import (
	"github.com/spec-kit/locate-service/internal/domain"
	apperrors "github.com/spec-kit/locate-service/pkg/util/errorutil"
)

var allowedTransitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusReceived: {
		domain.TicketStatusPending, domain.TicketStatusConflict,
		domain.TicketStatusExpired, domain.TicketStatusCancelled,
	},
	domain.TicketStatusPending: {
		domain.TicketStatusInProgress, domain.TicketStatusConflict,
		domain.TicketStatusExpired, domain.TicketStatusCancelled,
	},
	domain.TicketStatusInProgress: {
		domain.TicketStatusClear, domain.TicketStatusConflict,
		domain.TicketStatusExpired, domain.TicketStatusCancelled,
	},
	// A utility revising its reply reopens a clear ticket; clear tickets
	// are never expired automatically.
	domain.TicketStatusClear: {
		domain.TicketStatusInProgress, domain.TicketStatusConflict, domain.TicketStatusCancelled,
	},
	domain.TicketStatusConflict: {
		domain.TicketStatusInProgress, domain.TicketStatusClear,
		domain.TicketStatusExpired, domain.TicketStatusCancelled,
	},
	domain.TicketStatusExpired:   {},
	domain.TicketStatusCancelled: {},
}

// CanTransition reports whether from -> to is a single legal step.
func CanTransition(from, to domain.TicketStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// Validate returns InvalidTransition unless from -> to is legal.
func Validate(from, to domain.TicketStatus) error {
	if !CanTransition(from, to) {
		return apperrors.NewInvalidTransition(string(from), string(to))
	}
	return nil
}

// Summary aggregates per-utility response state.
type Summary struct {
	Total        int
	Responded    int
	Satisfied    int
	HasConflicts bool
}

// AllSatisfied reports whether every utility is CLEAR or MARKED.
func (s Summary) AllSatisfied() bool {
	return s.Total > 0 && s.Satisfied == s.Total
}

// Summarize counts responses.
func Summarize(responses []domain.UtilityResponse) Summary {
	s := Summary{Total: len(responses)}
	for i := range responses {
		st := responses[i].Status
		if st.Responded() {
			s.Responded++
		}
		if st.Satisfied() {
			s.Satisfied++
		}
		if st == domain.ResponseStatusConflict {
			s.HasConflicts = true
		}
	}
	return s
}

// Target derives the status a ticket should be in given its responses and
// the number of unresolved conflict records. Terminal statuses are kept.
func Target(current domain.TicketStatus, responses []domain.UtilityResponse, openConflicts int) domain.TicketStatus {
	if current.Terminal() {
		return current
	}
	if openConflicts > 0 {
		return domain.TicketStatusConflict
	}
	s := Summarize(responses)
	switch {
	case s.Total == 0:
		if current == domain.TicketStatusConflict {
			return domain.TicketStatusInProgress
		}
		return current
	case s.AllSatisfied():
		return domain.TicketStatusClear
	case s.Responded == 0 && (current == domain.TicketStatusReceived || current == domain.TicketStatusPending):
		return domain.TicketStatusPending
	default:
		return domain.TicketStatusInProgress
	}
}

// Plan returns the legal steps that lead from current to target, excluding
// current. An empty plan means no change. It fails with InvalidTransition
// when target is unreachable.
func Plan(current, target domain.TicketStatus) ([]domain.TicketStatus, error) {
	if current == target {
		return nil, nil
	}
	prev := map[domain.TicketStatus]domain.TicketStatus{}
	visited := map[domain.TicketStatus]bool{current: true}
	queue := []domain.TicketStatus{current}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for _, next := range allowedTransitions[node] {
			if visited[next] {
				continue
			}
			visited[next] = true
			prev[next] = node
			if next == target {
				return unwind(prev, current, target), nil
			}
			// CONFLICT is only ever a destination, never a detour.
			if next == domain.TicketStatusConflict {
				continue
			}
			queue = append(queue, next)
		}
	}
	return nil, apperrors.NewInvalidTransition(string(current), string(target))
}

func unwind(prev map[domain.TicketStatus]domain.TicketStatus, from, to domain.TicketStatus) []domain.TicketStatus {
	var path []domain.TicketStatus
	for node := to; node != from; node = prev[node] {
		path = append([]domain.TicketStatus{node}, path...)
	}
	return path
}
