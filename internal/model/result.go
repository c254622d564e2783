package model

import (
	"time"

	"commerce-sync/internal/syncerr"
)

// SyncCursor is the last upstream id extracted for one store and entity type.
type SyncCursor struct {
	StoreID string     `json:"store_id"`
	Entity  EntityType `json:"entity_type"`
	LastID  int64      `json:"last_id"`
}

// Advance moves the cursor forward to id. It never moves backwards.
func (c *SyncCursor) Advance(id int64) {
	if id > c.LastID {
		c.LastID = id
	}
}

// WriteCounts tallies the outcome of writing records for one entity type.
type WriteCounts struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
}

// Add accumulates other into c.
func (c *WriteCounts) Add(other WriteCounts) {
	c.Inserted += other.Inserted
	c.Updated += other.Updated
	c.Skipped += other.Skipped
}

// Total returns every record accounted for.
func (c WriteCounts) Total() int {
	return c.Inserted + c.Updated + c.Skipped
}

// SyncResult is the outcome of one store's pass.
type SyncResult struct {
	StoreID    string                      `json:"store_id"`
	PassID     string                      `json:"pass_id,omitempty"`
	Success    bool                        `json:"success"`
	Counts     map[EntityType]*WriteCounts `json:"counts"`
	Error      string                      `json:"error,omitempty"`
	ErrorKind  syncerr.Kind                `json:"error_kind,omitempty"`
	FailedAt   EntityType                  `json:"failed_entity,omitempty"`
	StartedAt  time.Time                   `json:"started_at"`
	FinishedAt time.Time                   `json:"finished_at"`
}

// NewSyncResult returns an empty, not yet successful result for storeID.
func NewSyncResult(storeID string) SyncResult {
	return SyncResult{
		StoreID:   storeID,
		Counts:    make(map[EntityType]*WriteCounts),
		StartedAt: time.Now().UTC(),
	}
}

// CountsFor returns the mutable counts for entity, creating them on first use.
func (r *SyncResult) CountsFor(entity EntityType) *WriteCounts {
	if r.Counts == nil {
		r.Counts = make(map[EntityType]*WriteCounts)
	}
	c, ok := r.Counts[entity]
	if !ok {
		c = &WriteCounts{}
		r.Counts[entity] = c
	}
	return c
}

// Fail records err as the first failure of the pass. Later failures are ignored.
func (r *SyncResult) Fail(entity EntityType, err error) {
	if err == nil || r.Error != "" {
		return
	}
	r.Success = false
	r.Error = err.Error()
	r.ErrorKind = syncerr.KindOf(err)
	r.FailedAt = entity
}

// Finish stamps the end of the pass and settles the success flag.
func (r *SyncResult) Finish() {
	r.FinishedAt = time.Now().UTC()
	r.Success = r.Error == ""
}

// Duration returns how long the pass took.
func (r SyncResult) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
