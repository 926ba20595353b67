package types

import "time"

// Entity carries creation and modification timestamps for persisted sale
// records. Embed it in domain types.
type Entity struct {
	CreatedAt time.Time `json:"created_at" bson:"created_at" grove:"created_at,notnull"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at" grove:"updated_at,notnull"`
}

// NewEntity creates a new Entity with current timestamps.
func NewEntity() Entity {
	return NewEntityAt(time.Now())
}

// NewEntityAt creates a new Entity stamped with t, normalized to UTC.
// Engines with an injected clock use this instead of NewEntity.
func NewEntityAt(t time.Time) Entity {
	t = t.UTC()
	return Entity{
		CreatedAt: t,
		UpdatedAt: t,
	}
}

// Touch updates the UpdatedAt timestamp to now.
func (e *Entity) Touch() {
	e.TouchAt(time.Now())
}

// TouchAt updates the UpdatedAt timestamp to t.
func (e *Entity) TouchAt(t time.Time) {
	e.UpdatedAt = t.UTC()
}

// Age returns how long ago the entity was created.
func (e Entity) Age() time.Duration {
	return time.Since(e.CreatedAt)
}

// LastModified returns how long ago the entity was last updated.
func (e Entity) LastModified() time.Duration {
	return time.Since(e.UpdatedAt)
}
