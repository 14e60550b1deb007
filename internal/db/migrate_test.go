package db

import (
	"testing"

	"github.com/ikkim/delivery-tracker/internal/app/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeed_Idempotent(t *testing.T) {
	testDB, err := SetupTestDB()
	require.NoError(t, err)
	defer CleanupTestDB(testDB)

	require.NoError(t, Seed(testDB))
	require.NoError(t, Seed(testDB))

	var stores, templates int64
	require.NoError(t, testDB.Model(&model.Store{}).Count(&stores).Error)
	require.NoError(t, testDB.Model(&model.MessageTemplate{}).Count(&templates).Error)

	assert.Equal(t, int64(len(model.DefaultStores)), stores)
	assert.Equal(t, stores*int64(len(model.Events())), templates)
}

func TestSeed_FillsMissingTemplates(t *testing.T) {
	testDB, err := SetupTestDB()
	require.NoError(t, err)
	defer CleanupTestDB(testDB)

	store := model.Store{Name: "Allen"}
	require.NoError(t, testDB.Create(&store).Error)
	custom := model.MessageTemplate{StoreID: store.ID, Event: model.EventDriverComplete, Content: "Done!", Active: false}
	require.NoError(t, testDB.Omit("Store").Create(&custom).Error)

	require.NoError(t, Seed(testDB))

	var stores int64
	require.NoError(t, testDB.Model(&model.Store{}).Count(&stores).Error)
	assert.Equal(t, int64(1), stores, "existing stores suppress the defaults")

	var kept model.MessageTemplate
	require.NoError(t, testDB.Where("store_id = ? AND event = ?", store.ID, model.EventDriverComplete).First(&kept).Error)
	assert.Equal(t, "Done!", kept.Content)
	assert.False(t, kept.Active)

	var templates int64
	require.NoError(t, testDB.Model(&model.MessageTemplate{}).Where("store_id = ?", store.ID).Count(&templates).Error)
	assert.Equal(t, int64(len(model.Events())), templates)
}
