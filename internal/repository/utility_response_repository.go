package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/locate-service/internal/domain"
)

// UtilityResponseRepository persists per-utility replies.
type UtilityResponseRepository interface {
	Create(ctx context.Context, response *domain.UtilityResponse) error
	Update(ctx context.Context, response *domain.UtilityResponse) error
	GetByTicketAndUtility(ctx context.Context, ticketID, utilityCode string) (*domain.UtilityResponse, error)
	ListByTicket(ctx context.Context, ticketID string) ([]domain.UtilityResponse, error)
}

type utilityResponseRepository struct {
	db Querier
}

// NewUtilityResponseRepository builds repository.
func NewUtilityResponseRepository(db Querier) UtilityResponseRepository {
	return &utilityResponseRepository{db: db}
}

const responseColumns = `id, ticket_id, utility_code, utility_name, facility, response_type, status,
               window_opens_at, window_closes_at, responded_at, marked_at, evidence, verified_at, verified_by,
               verification_result, verification_evidence, revision, created_at, updated_at`

func (r *utilityResponseRepository) Create(ctx context.Context, response *domain.UtilityResponse) error {
	const query = `
        INSERT INTO utility_responses (id, ticket_id, utility_code, utility_name, facility, status,
            window_opens_at, window_closes_at, evidence, verification_evidence, revision, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$12)`
	_, err := r.db.Exec(ctx, query,
		response.ID,
		response.TicketID,
		response.UtilityCode,
		response.UtilityName,
		response.Facility,
		response.Status,
		response.ResponseWindowOpensAt,
		response.ResponseWindowClosesAt,
		response.Evidence,
		response.VerificationEvidence,
		response.Revision,
		response.CreatedAt,
	)
	return err
}

func (r *utilityResponseRepository) Update(ctx context.Context, response *domain.UtilityResponse) error {
	const query = `
        UPDATE utility_responses SET response_type=$1, status=$2, responded_at=$3, marked_at=$4, evidence=$5,
            verified_at=$6, verified_by=$7, verification_result=$8, verification_evidence=$9,
            revision=$10, updated_at=$11
        WHERE id=$12`
	cmd, err := r.db.Exec(ctx, query,
		response.ResponseType,
		response.Status,
		response.RespondedAt,
		response.MarkedAt,
		response.Evidence,
		response.VerifiedAt,
		response.VerifiedBy,
		response.VerificationResult,
		response.VerificationEvidence,
		response.Revision,
		response.UpdatedAt,
		response.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *utilityResponseRepository) GetByTicketAndUtility(ctx context.Context, ticketID, utilityCode string) (*domain.UtilityResponse, error) {
	query := `SELECT ` + responseColumns + ` FROM utility_responses WHERE ticket_id=$1 AND utility_code=$2`
	return scanResponse(r.db.QueryRow(ctx, query, ticketID, utilityCode))
}

func (r *utilityResponseRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.UtilityResponse, error) {
	query := `SELECT ` + responseColumns + ` FROM utility_responses WHERE ticket_id=$1 ORDER BY utility_code ASC`
	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.UtilityResponse
	for rows.Next() {
		response, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *response)
	}
	return result, rows.Err()
}

func scanResponse(row pgx.Row) (*domain.UtilityResponse, error) {
	var response domain.UtilityResponse
	if err := row.Scan(
		&response.ID,
		&response.TicketID,
		&response.UtilityCode,
		&response.UtilityName,
		&response.Facility,
		&response.ResponseType,
		&response.Status,
		&response.ResponseWindowOpensAt,
		&response.ResponseWindowClosesAt,
		&response.RespondedAt,
		&response.MarkedAt,
		&response.Evidence,
		&response.VerifiedAt,
		&response.VerifiedBy,
		&response.VerificationResult,
		&response.VerificationEvidence,
		&response.Revision,
		&response.CreatedAt,
		&response.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &response, nil
}
