package database

import (
	"errors"
	"time"

	"github.com/InkwellLabs/inkwell/backend/internal/posts"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationInstallPostsSearchIndex = "2026-08-20_install_posts_search_index"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationInstallPostsSearchIndex, apply: installPostsSearchIndex},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// installPostsSearchIndex creates the FTS5 table and sync triggers, then
// rebuilds the index so posts written before the migration become searchable.
func installPostsSearchIndex(db *gorm.DB) error {
	for _, statement := range posts.FTSStatements() {
		if err := db.Exec(statement).Error; err != nil {
			return err
		}
	}
	return db.Exec(`INSERT INTO posts_fts(posts_fts) VALUES ('rebuild');`).Error
}
