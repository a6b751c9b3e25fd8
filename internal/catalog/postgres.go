package catalog

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/DoyleJ11/guess-the-track-backend/internal/engine"
)

type Track struct {
	ID      string `gorm:"primaryKey"`
	Name    string `gorm:"not null"` // the answer players must type
	Src     string `gorm:"not null"`
	Enabled bool   `gorm:"not null;default:true"`
}

func (Track) TableName() string { return "tracks" }

func (t Track) Item() engine.Item {
	return engine.Item{
		ID:        t.ID,
		Title:     strings.TrimSpace(t.Name),
		AnswerKey: engine.Normalize(t.Name),
		MediaRef:  t.Src,
	}
}

func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open catalog db: %w", err)
	}
	return db, nil
}

func Migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(&Track{}); err != nil {
		return fmt.Errorf("migrate tracks: %w", err)
	}
	return nil
}

// LoadTracks reads every enabled track. Rows without a name or source are
// skipped since they can never be guessed or played.
func LoadTracks(ctx context.Context, db *gorm.DB) ([]engine.Item, error) {
	var rows []Track
	if err := db.WithContext(ctx).Where("enabled = ?", true).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load tracks: %w", err)
	}
	return toItems(rows), nil
}

func toItems(rows []Track) []engine.Item {
	items := make([]engine.Item, 0, len(rows))
	for _, row := range rows {
		if strings.TrimSpace(row.Name) == "" || strings.TrimSpace(row.Src) == "" {
			continue
		}
		items = append(items, row.Item())
	}
	return items
}
