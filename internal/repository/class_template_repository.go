package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutor-schedule-api/internal/models"
)

// ClassTemplateRepository reads classes together with their raw weekly templates.
type ClassTemplateRepository struct {
	db *sqlx.DB
}

// NewClassTemplateRepository builds the repository.
func NewClassTemplateRepository(db *sqlx.DB) *ClassTemplateRepository {
	return &ClassTemplateRepository{db: db}
}

// ListActive returns active classes ordered by id, optionally restricted to one class.
func (r *ClassTemplateRepository) ListActive(ctx context.Context, classID string) ([]models.ClassTemplateRow, error) {
	query := `SELECT id, name, default_teacher_id, default_rate, weekly_slots, is_active, created_at, updated_at
FROM class_templates WHERE is_active = TRUE`
	args := []interface{}{}
	if classID != "" {
		query += " AND id = $1"
		args = append(args, classID)
	}
	query += " ORDER BY id ASC"

	var rows []models.ClassTemplateRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list class templates: %w", err)
	}
	return rows, nil
}
