package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TimelineFilters holds the audit timeline filters. CompanyID is mandatory.
type TimelineFilters struct {
	CompanyID uuid.UUID
	From      time.Time
	To        time.Time
	Actor     string
	Entity    string
	Action    string
	Page      int
	PageSize  int
}

// TimelineRow is one audit event.
type TimelineRow struct {
	ID        int64           `json:"id"`
	At        time.Time       `json:"at"`
	ActorID   *uuid.UUID      `json:"actor_id,omitempty"`
	ActorName string          `json:"actor_name,omitempty"`
	Action    string          `json:"action"`
	Entity    string          `json:"entity"`
	EntityID  string          `json:"entity_id"`
	Meta      json.RawMessage `json:"meta,omitempty"`
}

// PagingInfo is window-style paging: the total is never counted.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// Result wraps one timeline page.
type Result struct {
	Rows   []TimelineRow `json:"rows"`
	Paging PagingInfo    `json:"paging"`
}
