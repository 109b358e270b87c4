package events

import "time"

// Event defines the contract for all back-office mutation events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "FIELD_UPDATED").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

const (
	TypeFieldUpdated    = "FIELD_UPDATED"
	TypeRelationAdded   = "RELATION_ADDED"
	TypeRelationRemoved = "RELATION_REMOVED"
	TypeRecordDeleted   = "RECORD_DELETED"
)

// BaseEvent is the concrete event carried on the bus.
type BaseEvent struct {
	Type       string                 `json:"type"`
	Data       map[string]interface{} `json:"data"`
	OccurredAt time.Time              `json:"occurred_at"`
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

func FieldUpdated(kind, id, field string, value interface{}) BaseEvent {
	return BaseEvent{
		Type: TypeFieldUpdated,
		Data: map[string]interface{}{
			"entity": kind,
			"id":     id,
			"field":  field,
			"value":  value,
		},
		OccurredAt: time.Now(),
	}
}

func RelationAdded(relation, movieId, childId, role string) BaseEvent {
	data := map[string]interface{}{
		"relation": relation,
		"movie_id": movieId,
		"child_id": childId,
	}
	if role != "" {
		data["role"] = role
	}
	return BaseEvent{Type: TypeRelationAdded, Data: data, OccurredAt: time.Now()}
}

func RelationRemoved(relation, movieId, childId string) BaseEvent {
	return BaseEvent{
		Type: TypeRelationRemoved,
		Data: map[string]interface{}{
			"relation": relation,
			"movie_id": movieId,
			"child_id": childId,
		},
		OccurredAt: time.Now(),
	}
}

func RecordDeleted(kind, id string) BaseEvent {
	return BaseEvent{
		Type: TypeRecordDeleted,
		Data: map[string]interface{}{
			"entity": kind,
			"id":     id,
		},
		OccurredAt: time.Now(),
	}
}
