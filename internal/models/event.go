package models

import (
	"fmt"
	"time"
)

// EventType identifies the kind of GitHub activity an event was derived from.
type EventType string

const (
	EventTypeCommit  EventType = "commit"
	EventTypeIssue   EventType = "issue"
	EventTypeRelease EventType = "release"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventTypeCommit, EventTypeIssue, EventTypeRelease:
		return true
	}
	return false
}

// Event represents one persisted commit/issue/release record.
type Event struct {
	ID        string    `json:"id"`
	EventID   string    `json:"event_id"` // natural key: commit SHA, issue number, or release tag
	EventType EventType `json:"event_type"`

	Title       string `json:"title"`
	Description string `json:"description"`
	Author      string `json:"author"`
	URL         string `json:"url"`
	Repository  string `json:"repository"`

	// RawData preserves the original upstream payload verbatim for audit.
	RawData string `json:"raw_data"`

	// Exactly one of these is set, matching EventType.
	CommitHash     *string `json:"commit_hash,omitempty"`
	IssueNumber    *int    `json:"issue_number,omitempty"`
	ReleaseVersion *string `json:"release_version,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// ValidateTypeFields checks that exactly the type-specific field matching
// EventType is populated.
func (e *Event) ValidateTypeFields() error {
	if !e.EventType.Valid() {
		return fmt.Errorf("unknown event type %q", e.EventType)
	}

	set := 0
	if e.CommitHash != nil {
		set++
	}
	if e.IssueNumber != nil {
		set++
	}
	if e.ReleaseVersion != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("exactly one type-specific field must be set, got %d", set)
	}

	switch e.EventType {
	case EventTypeCommit:
		if e.CommitHash == nil {
			return fmt.Errorf("commit event requires commit_hash")
		}
	case EventTypeIssue:
		if e.IssueNumber == nil {
			return fmt.Errorf("issue event requires issue_number")
		}
	case EventTypeRelease:
		if e.ReleaseVersion == nil {
			return fmt.Errorf("release event requires release_version")
		}
	}
	return nil
}

// CreateEventRequest represents the request to create a new event
type CreateEventRequest struct {
	EventID        string    `json:"event_id"`
	EventType      EventType `json:"event_type"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Author         string    `json:"author"`
	URL            string    `json:"url"`
	Repository     string    `json:"repository"`
	RawData        string    `json:"raw_data"`
	CommitHash     *string   `json:"commit_hash,omitempty"`
	IssueNumber    *int      `json:"issue_number,omitempty"`
	ReleaseVersion *string   `json:"release_version,omitempty"`
}

// UpdateEventRequest represents a partial update. Only non-nil fields are
// applied; absent fields leave the stored value untouched.
type UpdateEventRequest struct {
	EventID        *string    `json:"event_id,omitempty"`
	EventType      *EventType `json:"event_type,omitempty"`
	Title          *string    `json:"title,omitempty"`
	Description    *string    `json:"description,omitempty"`
	Author         *string    `json:"author,omitempty"`
	URL            *string    `json:"url,omitempty"`
	Repository     *string    `json:"repository,omitempty"`
	RawData        *string    `json:"raw_data,omitempty"`
	CommitHash     *string    `json:"commit_hash,omitempty"`
	IssueNumber    *int       `json:"issue_number,omitempty"`
	ReleaseVersion *string    `json:"release_version,omitempty"`
}

// ListEventsRequest represents query parameters for listing events
type ListEventsRequest struct {
	Search string
	SortBy string
	Desc   bool
	Page   int

	// Limit of -1 returns all records in a single page.
	Limit int
}

// ListEventsResponse is the paged list envelope.
type ListEventsResponse struct {
	PageNumber  int      `json:"page_number"`
	PageSize    int      `json:"page_size"`
	TotalPages  int      `json:"total_pages"`
	TotalRecord int      `json:"total_record"`
	Content     []*Event `json:"content"`
}
