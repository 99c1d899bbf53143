package repository

import (
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewSQLiteDB opens (or creates) the state database at path and migrates
// the schema. Pass ":memory:" for an ephemeral database in tests.
func NewSQLiteDB(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Lock{}, &ShiftState{}, &CanaryRecord{}); err != nil {
		return nil, err
	}
	return db, nil
}
