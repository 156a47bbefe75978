package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	slogGorm "github.com/orandin/slog-gorm"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/barazo-forum/barazo-api-sub003/models"
)

func setupDatabase(dbUrl string, logger *slog.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	isSqlite := false
	maxOpenConns := 80

	if strings.HasPrefix(dbUrl, "sqlite://") {
		sqlitePath := dbUrl[len("sqlite://"):]
		if err := os.MkdirAll(filepath.Dir(sqlitePath), os.ModePerm); err != nil {
			return nil, err
		}
		dialector = sqlite.Open(sqlitePath + "?_journal_mode=WAL&_busy_timeout=10000&_synchronous=NORMAL&_temp_store=MEMORY&_cache_size=8000")
		isSqlite = true
		maxOpenConns = 1
	} else if strings.HasPrefix(dbUrl, "postgresql://") || strings.HasPrefix(dbUrl, "postgres://") {
		dialector = postgres.Open(dbUrl)
	} else {
		return nil, fmt.Errorf("unsupported database URL scheme: must start with sqlite://, postgres://, or postgresql://")
	}

	gormLogger := slogGorm.New(
		slogGorm.WithLogger(logger.With("component", "gorm")),
		slogGorm.SetLogLevel(slogGorm.ErrorLogType, slog.LevelError),
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	if isSqlite {
		db.Exec("PRAGMA journal_mode=WAL;")
		db.Exec("PRAGMA synchronous=NORMAL;")
		db.Exec("PRAGMA busy_timeout=10000;")
		db.Exec("PRAGMA temp_store=MEMORY;")
		db.Exec("PRAGMA cache_size=8000;")
	} else {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(maxOpenConns)
		sqlDB.SetMaxIdleConns(maxOpenConns)
		sqlDB.SetConnMaxIdleTime(time.Hour)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.TrackedRepo{},
		&models.Topic{},
		&models.Reply{},
		&models.Reaction{},
		&models.Notification{},
		&models.UserPreference{},
		&models.CommunitySettings{},
		&models.FirehoseCursor{},
		&models.ModerationQueueItem{},
		&models.AccountTrust{},
	); err != nil {
		return nil, err
	}

	return db, nil
}

func closeDatabase(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
