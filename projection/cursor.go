package projection

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// cursorRow is the persisted per-projection cursor - the global position of
// the last event the projection has applied, plus the stale flag set when an
// apply fails after its event was already durably committed. The cursor lives
// next to the projection's own tables and is touched by no one else.
type cursorRow struct {
	ProjectionID string `gorm:"primaryKey"`
	Position     uint64
	Stale        bool
	UpdatedAt    time.Time
}

// TableName returns the gorm table name
func (cursorRow) TableName() string { return "projection_cursor" }

func loadCursor(db *gorm.DB, id string) (cursorRow, error) {
	row := cursorRow{ProjectionID: id}

	err := db.Where("projection_id = ?", id).Limit(1).Find(&row).Error

	return row, err
}

func saveCursor(db *gorm.DB, row cursorRow) error {
	row.UpdatedAt = time.Now().UTC()

	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "projection_id"}},
		UpdateAll: true,
	}).Create(&row).Error
}
