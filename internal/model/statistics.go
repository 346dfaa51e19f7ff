package model

import "github.com/shopspring/decimal"

// StatusCount is a per-status or per-service counter row
type StatusCount struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// WorkflowKPI aggregates lifecycle counts and durations for the dashboard.
type WorkflowKPI struct {
	Total                 int64           `json:"total"`
	Archived              int64           `json:"archived"`
	ByStatus              []StatusCount   `json:"by_status"`
	ByService             []StatusCount   `json:"by_service"`
	AvgAcquisitionToIndex decimal.Decimal `json:"avg_acquisition_to_indexation_days"`
	AvgTreatmentDays      decimal.Decimal `json:"avg_treatment_days"`
	AvgFullCycleDays      decimal.Decimal `json:"avg_full_cycle_days"`
	ArchiveRate           decimal.Decimal `json:"archive_rate"`
}
