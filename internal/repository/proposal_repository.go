package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/devlinkhq/marketplace-backend/internal/models"
	"github.com/devlinkhq/marketplace-backend/internal/repository/common"
)

var (
	ErrProposalNotFound   = errors.New("proposal not found")
	ErrDuplicateProposal  = errors.New("developer already has a proposal on this project")
	ErrProjectNotOpen     = errors.New("project is not open for proposals")
	ErrProposalNotPending = errors.New("proposal is not pending")
)

type ProposalRepository struct {
	db *sqlx.DB
}

func NewProposalRepository(db *sqlx.DB) *ProposalRepository {
	return &ProposalRepository{db: db}
}

func (r *ProposalRepository) Create(ctx context.Context, p *models.Proposal) error {
	query := `
		INSERT INTO proposals (project_id, developer_id, cover_letter, status)
		VALUES ($1, $2, $3, 'pending')
		RETURNING id, status, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query, p.ProjectID, p.DeveloperID, p.CoverLetter).
		Scan(&p.ID, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if common.IsUniqueViolation(err, "proposals_project_id_developer_id_key") {
			return ErrDuplicateProposal
		}
		return fmt.Errorf("proposal repository: create: %w", err)
	}
	return nil
}

func (r *ProposalRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Proposal, error) {
	return common.GetByID[models.Proposal](ctx, r.db, "proposals", id, ErrProposalNotFound)
}

func (r *ProposalRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.Proposal, error) {
	var proposals []models.Proposal
	err := r.db.SelectContext(ctx, &proposals, `
		SELECT * FROM proposals WHERE project_id = $1 ORDER BY created_at
	`, projectID)
	return proposals, err
}

func (r *ProposalRepository) ListByDeveloper(ctx context.Context, developerID uuid.UUID, limit, offset int) ([]models.Proposal, error) {
	var proposals []models.Proposal
	err := r.db.SelectContext(ctx, &proposals, `
		SELECT * FROM proposals WHERE developer_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, developerID, limit, offset)
	return proposals, err
}

// Withdraw flips a pending proposal to withdrawn.
func (r *ProposalRepository) Withdraw(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE proposals SET status = 'withdrawn', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id)
	if err != nil {
		return fmt.Errorf("proposal repository: withdraw: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrProposalNotPending
	}
	return nil
}

// AcceptResult carries what the acceptance transaction changed, so the
// service can notify the losing developers without re-querying.
type AcceptResult struct {
	Proposal           *models.Proposal
	RejectedDevelopers []uuid.UUID
}

// Accept applies proposal acceptance as one atomic unit: reject siblings,
// accept the chosen proposal, bind the developer to the project and move
// it in_progress. The conditional update on projects.status = 'open' is
// the serialization point; of two concurrent accepts exactly one sees the
// row still open.
func (r *ProposalRepository) Accept(ctx context.Context, proposalID uuid.UUID) (*AcceptResult, error) {
	result := &AcceptResult{}

	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		var p models.Proposal
		err := tx.GetContext(ctx, &p, `SELECT * FROM proposals WHERE id = $1 FOR UPDATE`, proposalID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrProposalNotFound
		}
		if err != nil {
			return fmt.Errorf("proposal repository: lock proposal: %w", err)
		}
		if p.Status != models.ProposalStatusPending {
			return ErrProposalNotPending
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE projects
			SET status = 'in_progress', selected_developer_id = $2, selected_proposal_id = $3, updated_at = NOW()
			WHERE id = $1 AND status = 'open'
		`, p.ProjectID, p.DeveloperID, p.ID)
		if err != nil {
			return fmt.Errorf("proposal repository: bind project: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrProjectNotOpen
		}

		rows, err := tx.QueryContext(ctx, `
			UPDATE proposals SET status = 'rejected', updated_at = NOW()
			WHERE project_id = $1 AND id <> $2 AND status = 'pending'
			RETURNING developer_id
		`, p.ProjectID, p.ID)
		if err != nil {
			return fmt.Errorf("proposal repository: reject siblings: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var developerID uuid.UUID
			if err := rows.Scan(&developerID); err != nil {
				return err
			}
			result.RejectedDevelopers = append(result.RejectedDevelopers, developerID)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		err = tx.GetContext(ctx, &p, `
			UPDATE proposals SET status = 'accepted', updated_at = NOW()
			WHERE id = $1
			RETURNING *
		`, p.ID)
		if err != nil {
			return fmt.Errorf("proposal repository: accept: %w", err)
		}

		result.Proposal = &p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
