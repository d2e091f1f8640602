package database

import (
	"fmt"

	"github.com/InkwellLabs/inkwell/backend/internal/comments"
	"github.com/InkwellLabs/inkwell/backend/internal/identity"
	"github.com/InkwellLabs/inkwell/backend/internal/posts"
	"github.com/InkwellLabs/inkwell/backend/internal/profiles"
	"github.com/InkwellLabs/inkwell/backend/internal/uploads"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OpenSQLite establishes a SQLite connection and performs schema migrations.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&identity.Account{},
		&identity.Identity{},
		&profiles.Profile{},
		&posts.Post{},
		&comments.Comment{},
		&uploads.Image{},
		&migrationRecord{},
	); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}
