package service

import (
	"context"
	"time"

	"mailflow/internal/model"
	"mailflow/internal/repository"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

type KPIFilter struct {
	From *time.Time
	To   *time.Time
}

type WorkflowStatsService interface {
	GetKPI(ctx context.Context, filter KPIFilter) (*model.WorkflowKPI, error)
}

type workflowStatsService struct {
	repo repository.WorkflowStatsRepository
}

func NewWorkflowStatsService(repo repository.WorkflowStatsRepository) WorkflowStatsService {
	return &workflowStatsService{repo: repo}
}

// GetKPI runs the three aggregations concurrently and rounds durations and
// the archive rate to two decimals.
func (s *workflowStatsService) GetKPI(ctx context.Context, filter KPIFilter) (*model.WorkflowKPI, error) {
	window := repository.StatsWindow{From: filter.From, To: filter.To}

	var (
		byStatus  []model.StatusCount
		byService []model.StatusCount
		averages  repository.CycleAverages
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		byStatus, err = s.repo.CountByStatus(gctx, window)
		return err
	})
	g.Go(func() error {
		var err error
		byService, err = s.repo.CountByService(gctx, window)
		return err
	})
	g.Go(func() error {
		var err error
		averages, err = s.repo.Averages(gctx, window)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	kpi := &model.WorkflowKPI{
		ByStatus:              byStatus,
		ByService:             byService,
		AvgAcquisitionToIndex: roundDays(averages.AcquisitionToIndex),
		AvgTreatmentDays:      roundDays(averages.Treatment),
		AvgFullCycleDays:      roundDays(averages.FullCycle),
		ArchiveRate:           decimal.Zero,
	}
	for _, row := range byStatus {
		kpi.Total += row.Count
		if row.Key == string(model.StatusArchive) {
			kpi.Archived += row.Count
		}
	}
	if kpi.Total > 0 {
		kpi.ArchiveRate = decimal.NewFromInt(kpi.Archived).
			Mul(decimal.NewFromInt(100)).
			Div(decimal.NewFromInt(kpi.Total)).
			Round(2)
	}
	return kpi, nil
}

func roundDays(v *float64) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromFloat(*v).Round(2)
}
