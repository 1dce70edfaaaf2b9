package db_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/oggyb/fritter-graph/internal/db"
)

func TestSeedTestData(t *testing.T) {
	dbase, err := gorm.Open(sqlite.Open("file:seed?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := dbase.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.Migrate(dbase))

	// stale rows are cleared
	require.NoError(t, dbase.Create(&db.User{Username: "stale", Email: "stale@test.com", PasswordHash: "x"}).Error)

	ids, err := db.SeedTestData(dbase)
	require.NoError(t, err)
	assert.Len(t, ids, 20)

	var users int64
	require.NoError(t, dbase.Model(&db.User{}).Count(&users).Error)
	assert.EqualValues(t, 20, users)

	var freets, replies int64
	require.NoError(t, dbase.Model(&db.ContentItem{}).Where("kind = ?", db.KindFreet).Count(&freets).Error)
	require.NoError(t, dbase.Model(&db.ContentItem{}).Where("kind = ? AND parent_id IS NOT NULL", db.KindReply).Count(&replies).Error)
	assert.EqualValues(t, 60, freets)
	assert.EqualValues(t, 20, replies)

	var stale int64
	require.NoError(t, dbase.Model(&db.User{}).Where("username = ?", "stale").Count(&stale).Error)
	assert.Zero(t, stale)
}
