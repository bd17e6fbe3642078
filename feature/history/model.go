package history

import "time"

// Entry is one executed query.
type Entry struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	RayID        string    `gorm:"size:64;index" json:"ray_id"`
	Query        string    `gorm:"type:text" json:"q"`
	Spec         string    `gorm:"type:text" json:"spec"`
	MatchedCount int       `json:"matched_count"`
	DurationMs   int64     `json:"duration_ms"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName pins the table name independent of GORM pluralization.
func (Entry) TableName() string {
	return "query_history"
}
