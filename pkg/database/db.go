package database

import (
	"fmt"
	"time"

	"github.com/arnavshah/timetable-wizard-go/internal/config"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// APIKey represents the api_keys table
type APIKey struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Key        string     `gorm:"unique;not null" json:"-"`
	KeyPreview string     `json:"key_preview"`
	Name       string     `gorm:"not null" json:"name"`
	RateLimit  int        `gorm:"default:10000" json:"rate_limit"`
	Revoked    bool       `gorm:"default:false" json:"revoked"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsed   *time.Time `json:"last_used"`
}

// APIUsage represents the api_usage table: one row per key per day
type APIUsage struct {
	ID               uint   `gorm:"primaryKey" json:"id"`
	KeyID            uint   `gorm:"uniqueIndex:idx_key_date;not null" json:"key_id"`
	Date             string `gorm:"uniqueIndex:idx_key_date;not null" json:"date"`
	RequestCount     int    `gorm:"default:0" json:"request_count"`
	TotalAssignments int    `gorm:"default:0" json:"total_assignments"`
	TotalConstraints int    `gorm:"default:0" json:"total_constraints"`
	TotalExtractions int    `gorm:"default:0" json:"total_extractions"`
}

// MasterUser represents the master_users table
type MasterUser struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"unique;not null" json:"username"`
	PasswordHash string    `gorm:"not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// InitDB opens postgres when a URL is configured, sqlite otherwise, and migrates the schema.
func InitDB(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}

	if cfg.URL != "" {
		dialector = postgres.New(postgres.Config{
			DSN:                  cfg.URL,
			PreferSimpleProtocol: true,
		})
	} else {
		path := cfg.Path
		if path == "" {
			path = "wizard.db"
		}
		dialector = sqlite.Open(path)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := db.AutoMigrate(&APIKey{}, &APIUsage{}, &MasterUser{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return db, nil
}

// Usage is one increment of a key's daily counters.
type Usage struct {
	Requests    int
	Assignments int
	Constraints int
	Extractions int
}

// RecordUsage adds u to today's row for keyID with a single upsert.
func RecordUsage(db *gorm.DB, keyID uint, u Usage, now time.Time) error {
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key_id"}, {Name: "date"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"request_count":     gorm.Expr("api_usages.request_count + ?", u.Requests),
			"total_assignments": gorm.Expr("api_usages.total_assignments + ?", u.Assignments),
			"total_constraints": gorm.Expr("api_usages.total_constraints + ?", u.Constraints),
			"total_extractions": gorm.Expr("api_usages.total_extractions + ?", u.Extractions),
		}),
	}).Create(&APIUsage{
		KeyID:            keyID,
		Date:             now.Format("2006-01-02"),
		RequestCount:     u.Requests,
		TotalAssignments: u.Assignments,
		TotalConstraints: u.Constraints,
		TotalExtractions: u.Extractions,
	}).Error
}

// UsageOn returns the row of keyID for date, or a zero row when there is none yet.
func UsageOn(db *gorm.DB, keyID uint, date string) (APIUsage, error) {
	var usage APIUsage
	err := db.Where("key_id = ? AND date = ?", keyID, date).Limit(1).Find(&usage).Error
	return usage, err
}

// RecentUsage returns up to the last 30 daily rows of a key, newest first.
func RecentUsage(db *gorm.DB, keyID uint) ([]APIUsage, error) {
	var usage []APIUsage
	err := db.Where("key_id = ?", keyID).Order("date desc").Limit(30).Find(&usage).Error
	return usage, err
}
