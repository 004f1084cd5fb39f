// Package db stores the call audit with gorm on postgres or sqlite.
package db

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"omvstack.control/internal/core/domain"
)

type Repository struct {
	db *gorm.DB
}

// Open connects to url and migrates the schema. postgres:// and
// postgresql:// URLs use the postgres driver, sqlite://<path> a sqlite file.
func Open(url string) (*Repository, error) {
	dialector, err := dialectorFor(url)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&domain.CallRecord{}); err != nil {
		return nil, err
	}

	return &Repository{db: db}, nil
}

func dialectorFor(url string) (gorm.Dialector, error) {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return postgres.Open(url), nil
	case strings.HasPrefix(url, "sqlite://"):
		path := strings.TrimPrefix(url, "sqlite://")
		if path == "" {
			return nil, fmt.Errorf("sqlite url %q has no path", url)
		}
		return sqlite.Open(path), nil
	}
	return nil, fmt.Errorf("unsupported database url %q", url)
}

func (r *Repository) Create(ctx context.Context, record *domain.CallRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// ListCalls returns the newest records first. An empty service matches all.
func (r *Repository) ListCalls(ctx context.Context, service string, limit int) ([]*domain.CallRecord, error) {
	var records []*domain.CallRecord
	q := r.db.WithContext(ctx).Order("created_at desc").Limit(limit)
	if service != "" {
		q = q.Where("service = ?", service)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *Repository) CountCalls(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.CallRecord{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *Repository) DB() *gorm.DB {
	return r.db
}

func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
