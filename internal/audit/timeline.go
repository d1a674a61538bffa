package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Record is one stored audit log row.
type Record struct {
	ID         int64           `json:"id"`
	At         time.Time       `json:"at"`
	ActorID    *uuid.UUID      `json:"actor_id"`
	Action     Action          `json:"action"`
	EntityType EntityType      `json:"entity_type"`
	EntityID   *string         `json:"entity_id"`
	Details    json.RawMessage `json:"details"`
}

// TimelineFilters narrows the audit timeline.
type TimelineFilters struct {
	EntityType string
	EntityID   string
	Action     string
	Page       int
	PageSize   int
}

// Query is the repository-level form of TimelineFilters.
type Query struct {
	EntityType string
	EntityID   string
	Action     string
	Offset     int
	Limit      int
}

// PagingInfo holds simple next/prev paging metadata.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// Result wraps one timeline page.
type Result struct {
	Rows   []Record   `json:"rows"`
	Paging PagingInfo `json:"paging"`
}

// Matches reports whether r satisfies the equality filters of q.
func (q Query) Matches(r Record) bool {
	if q.EntityType != "" && string(r.EntityType) != q.EntityType {
		return false
	}
	if q.Action != "" && string(r.Action) != q.Action {
		return false
	}
	if q.EntityID != "" && (r.EntityID == nil || *r.EntityID != q.EntityID) {
		return false
	}
	return true
}
