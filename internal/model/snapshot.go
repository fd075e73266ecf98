package model

import "time"

// Snapshot is one persisted pipeline run. Exactly one snapshot is current.
type Snapshot struct {
	ID        string         `json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	CreatedBy string         `json:"created_by,omitempty"`
	Note      string         `json:"note,omitempty"`
	IsCurrent bool           `json:"is_current"`
	Meta      map[string]any `json:"meta,omitempty"`
	Subzones  int            `json:"subzones"`
}
