package repository

import (
	"context"
	"fmt"
	"time"

	"mailflow/internal/model"

	"gorm.io/gorm"
)

// StatsWindow bounds the KPI aggregation on the mail creation date.
type StatsWindow struct {
	From *time.Time
	To   *time.Time
}

// CycleAverages are mean durations in days. A nil value means no row had
// both timestamps.
type CycleAverages struct {
	AcquisitionToIndex *float64
	Treatment          *float64
	FullCycle          *float64
}

type WorkflowStatsRepository interface {
	CountByStatus(ctx context.Context, window StatsWindow) ([]model.StatusCount, error)
	CountByService(ctx context.Context, window StatsWindow) ([]model.StatusCount, error)
	Averages(ctx context.Context, window StatsWindow) (CycleAverages, error)
}

type workflowStatsRepository struct {
	db *gorm.DB
}

func NewWorkflowStatsRepository(db *gorm.DB) WorkflowStatsRepository {
	return &workflowStatsRepository{db: db}
}

func (r *workflowStatsRepository) scoped(ctx context.Context, window StatsWindow) *gorm.DB {
	query := GetDB(ctx, r.db).Model(&model.IncomingMail{})
	if window.From != nil {
		query = query.Where("created_at >= ?", *window.From)
	}
	if window.To != nil {
		query = query.Where("created_at <= ?", *window.To)
	}
	return query
}

func (r *workflowStatsRepository) CountByStatus(ctx context.Context, window StatsWindow) ([]model.StatusCount, error) {
	var rows []model.StatusCount
	if err := r.scoped(ctx, window).
		Select("statut_global as key, COUNT(*) as count").
		Group("statut_global").
		Order("count DESC").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count mails by status: %w", err)
	}
	return rows, nil
}

func (r *workflowStatsRepository) CountByService(ctx context.Context, window StatsWindow) ([]model.StatusCount, error) {
	var rows []model.StatusCount
	if err := r.scoped(ctx, window).
		Select("COALESCE(NULLIF(assigned_service, ''), 'INCONNU') as key, COUNT(*) as count").
		Group("1").
		Order("count DESC").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count mails by service: %w", err)
	}
	return rows, nil
}

func (r *workflowStatsRepository) Averages(ctx context.Context, window StatsWindow) (CycleAverages, error) {
	const day = 86400.0
	var result CycleAverages
	err := r.scoped(ctx, window).
		Select(fmt.Sprintf(
			"AVG(EXTRACT(EPOCH FROM (date_indexation - COALESCE(date_reception, created_at))) / %[1]f) as acquisition_to_index, "+
				"AVG(EXTRACT(EPOCH FROM (treatment_completed_at - treatment_started_at)) / %[1]f) as treatment, "+
				"AVG(EXTRACT(EPOCH FROM (date_archivage - COALESCE(date_reception, created_at))) / %[1]f) as full_cycle", day)).
		Scan(&result).Error
	if err != nil {
		return CycleAverages{}, fmt.Errorf("failed to compute cycle averages: %w", err)
	}
	return result, nil
}
