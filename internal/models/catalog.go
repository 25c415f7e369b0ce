package models

// LocationKind distinguishes buildings from rooms.
type LocationKind string

const (
	LocationKindBuilding LocationKind = "building"
	LocationKindRoom     LocationKind = "room"
)

// Location is immutable reference data. Reports reference room-level ids.
type Location struct {
	ID       string       `db:"id" json:"id"`
	Name     string       `db:"name" json:"name"`
	Building string       `db:"building" json:"building"`
	Floor    *int         `db:"floor" json:"floor,omitempty"`
	Kind     LocationKind `db:"kind" json:"kind"`
	ParentID *string      `db:"parent_id" json:"parentId,omitempty"`
}

// Symptom is immutable reference data.
type Symptom struct {
	ID       string  `db:"id" json:"id"`
	Key      string  `db:"key" json:"key"`
	Name     string  `db:"name" json:"name"`
	Category string  `db:"category" json:"category"`
	Icon     string  `db:"icon" json:"icon"`
	Severity float64 `db:"severity" json:"severity"`
}
