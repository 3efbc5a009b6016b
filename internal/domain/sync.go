package domain

import "time"

type SyncMode string

const (
	SyncIncremental SyncMode = "incremental"
	SyncFull        SyncMode = "full"
	SyncBackfill    SyncMode = "backfill"
)

// SyncPhase is the orchestrator state.
type SyncPhase string

const (
	PhaseIdle         SyncPhase = "idle"
	PhaseFetchingMaps SyncPhase = "fetching_maps"
	PhasePaging       SyncPhase = "paging"
	PhaseDone         SyncPhase = "done"
	PhaseFailed       SyncPhase = "failed"
)

// SyncStats holds statistics about a sync operation.
type SyncStats struct {
	Mode       SyncMode      `json:"mode"`
	Fetched    int           `json:"fetched"`
	New        int           `json:"new"`
	Updated    int           `json:"updated"`
	Pages      int           `json:"pages"`
	Backfilled int           `json:"backfilled"`
	Errors     int           `json:"errors"`
	Skipped    int           `json:"skipped"`
	Published  int           `json:"published"`
	Duration   time.Duration `json:"duration"`
}

// Processed is the number of orders written to the store.
func (s *SyncStats) Processed() int {
	if s == nil {
		return 0
	}
	return s.New + s.Updated
}

// SyncState is the persisted watermark of one sync mode.
type SyncState struct {
	ID           int64     `db:"id"`
	Mode         string    `db:"mode"`
	LastSyncedAt time.Time `db:"last_synced_at"`
	LastOrderID  string    `db:"last_order_id"`
	TotalSynced  int64     `db:"total_synced"`
}

// SyncStatus is the observable state of the orchestrator.
type SyncStatus struct {
	Phase      SyncPhase  `json:"phase"`
	Mode       SyncMode   `json:"mode,omitempty"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	LastStats  *SyncStats `json:"lastStats,omitempty"`
	LastError  string     `json:"lastError,omitempty"`
}

// Upstream list sort orders.
const (
	SortOrderedAtDesc = "orderedAtDesc"
	SortUpdatedAtDesc = "updatedAtDesc"
)

// OrderQuery selects one page of the upstream order list.
type OrderQuery struct {
	Offset       int
	Limit        int
	Sort         string
	OrderedAfter *time.Time
	UpdatedAfter *time.Time
}
