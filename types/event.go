package types

import "time"

// EventAction names the change an ElementEvent reports.
type EventAction string

const (
	ActionCreated         EventAction = "created"
	ActionUpdated         EventAction = "updated"
	ActionDeleted         EventAction = "deleted"
	ActionRelationAdded   EventAction = "relation_added"
	ActionRelationRemoved EventAction = "relation_removed"
)

// ElementEvent is published to the message broker after a catalog change has
// been committed.
type ElementEvent struct {
	// ID uniquely identifies the event for consumer-side deduplication.
	ID string `json:"id"`

	// Action is the kind of change.
	Action EventAction `json:"action"`

	// Kind and ElementID identify the element the change was made through.
	Kind      Kind `json:"kind"`
	ElementID int  `json:"element_id"`

	// Relation, MemberKind and MemberID are set for relation changes only.
	Relation   string `json:"relation,omitempty"`
	MemberKind Kind   `json:"member_kind,omitempty"`
	MemberID   int    `json:"member_id,omitempty"`

	// At is the commit time of the change.
	At time.Time `json:"at"`
}
