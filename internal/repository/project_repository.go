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
	ErrProjectNotFound   = errors.New("project not found")
	ErrMilestoneNotFound = errors.New("milestone not found")
	ErrStatusConflict    = errors.New("entity is no longer in the expected status")
)

type ProjectRepository struct {
	db *sqlx.DB
}

func NewProjectRepository(db *sqlx.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// CreateWithMilestones inserts the project and its milestones as one
// transaction. Milestone validation (count, percentage sum) happens in
// the service before this is called.
func (r *ProjectRepository) CreateWithMilestones(ctx context.Context, project *models.Project, milestones []models.Milestone) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO projects (client_id, title, description, budget_cents, currency, status)
			VALUES ($1, $2, $3, $4, $5, 'draft')
			RETURNING id, status, created_at, updated_at
		`, project.ClientID, project.Title, project.Description, project.BudgetCents, project.Currency).
			Scan(&project.ID, &project.Status, &project.CreatedAt, &project.UpdatedAt)
		if err != nil {
			return fmt.Errorf("project repository: insert project: %w", err)
		}

		for i := range milestones {
			m := &milestones[i]
			m.ProjectID = project.ID
			err := tx.QueryRowContext(ctx, `
				INSERT INTO milestones (project_id, title, definition_of_done, payment_percentage, sort_order)
				VALUES ($1, $2, $3, $4, $5)
				RETURNING id, status, created_at, updated_at
			`, m.ProjectID, m.Title, m.DefinitionOfDone, m.PaymentPercentage, m.SortOrder).
				Scan(&m.ID, &m.Status, &m.CreatedAt, &m.UpdatedAt)
			if err != nil {
				return fmt.Errorf("project repository: insert milestone %d: %w", m.SortOrder, err)
			}
		}

		project.Milestones = milestones
		return nil
	})
}

func (r *ProjectRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	return common.GetByID[models.Project](ctx, r.db, "projects", id, ErrProjectNotFound)
}

// GetWithMilestones loads the project and its milestones ordered by
// sort_order.
func (r *ProjectRepository) GetWithMilestones(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	project, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	err = r.db.SelectContext(ctx, &project.Milestones, `
		SELECT * FROM milestones WHERE project_id = $1 ORDER BY sort_order
	`, id)
	if err != nil {
		return nil, fmt.Errorf("project repository: load milestones: %w", err)
	}
	return project, nil
}

func (r *ProjectRepository) ListByClient(ctx context.Context, clientID uuid.UUID, limit, offset int) ([]models.Project, error) {
	var projects []models.Project
	err := r.db.SelectContext(ctx, &projects, `
		SELECT * FROM projects WHERE client_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, clientID, limit, offset)
	return projects, err
}

func (r *ProjectRepository) ListByDeveloper(ctx context.Context, developerID uuid.UUID, limit, offset int) ([]models.Project, error) {
	var projects []models.Project
	err := r.db.SelectContext(ctx, &projects, `
		SELECT * FROM projects WHERE selected_developer_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, developerID, limit, offset)
	return projects, err
}

func (r *ProjectRepository) ListOpen(ctx context.Context, limit, offset int) ([]models.Project, error) {
	var projects []models.Project
	err := r.db.SelectContext(ctx, &projects, `
		SELECT * FROM projects WHERE status = 'open' ORDER BY created_at DESC LIMIT $1 OFFSET $2
	`, limit, offset)
	return projects, err
}

// UpdateStatus moves the project from expected to next. ErrStatusConflict
// means another writer got there first; callers treat it as an invalid
// state transition.
func (r *ProjectRepository) UpdateStatus(ctx context.Context, id uuid.UUID, expected, next models.ProjectStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE projects SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2
	`, id, expected, next)
	if err != nil {
		return fmt.Errorf("project repository: update status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (r *ProjectRepository) GetMilestone(ctx context.Context, id uuid.UUID) (*models.Milestone, error) {
	return common.GetByID[models.Milestone](ctx, r.db, "milestones", id, ErrMilestoneNotFound)
}

// GetMilestoneWithProject loads a milestone together with its owning
// project in one round trip so authorization decisions see a consistent
// pair.
func (r *ProjectRepository) GetMilestoneWithProject(ctx context.Context, milestoneID uuid.UUID) (*models.Milestone, *models.Project, error) {
	milestone, err := r.GetMilestone(ctx, milestoneID)
	if err != nil {
		return nil, nil, err
	}
	project, err := r.GetByID(ctx, milestone.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	return milestone, project, nil
}

// UpdateMilestoneStatus is a conditional transition: the row only moves
// when it is still in the expected status, which is what makes racing
// writers serialize correctly.
func (r *ProjectRepository) UpdateMilestoneStatus(ctx context.Context, id uuid.UUID, expected, next models.MilestoneStatus) error {
	var stampColumn string
	switch next {
	case models.MilestoneStatusReadyForReview:
		stampColumn = "completed_at"
	case models.MilestoneStatusApproved:
		stampColumn = "approved_at"
	case models.MilestoneStatusDisputed:
		stampColumn = "disputed_at"
	}

	query := `UPDATE milestones SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`
	if stampColumn != "" {
		query = fmt.Sprintf(
			`UPDATE milestones SET status = $3, %s = NOW(), updated_at = NOW() WHERE id = $1 AND status = $2`,
			stampColumn,
		)
	}

	res, err := r.db.ExecContext(ctx, query, id, expected, next)
	if err != nil {
		return fmt.Errorf("project repository: update milestone status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrStatusConflict
	}
	return nil
}

// AllMilestonesApproved reports whether every milestone of the project
// has been approved, which completes the project.
func (r *ProjectRepository) AllMilestonesApproved(ctx context.Context, projectID uuid.UUID) (bool, error) {
	var remaining int
	err := r.db.GetContext(ctx, &remaining, `
		SELECT COUNT(*) FROM milestones WHERE project_id = $1 AND status <> 'approved'
	`, projectID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return remaining == 0, nil
}
