package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/techzone/intervention-manager/config"
	"github.com/techzone/intervention-manager/services"
	"github.com/techzone/intervention-manager/sessions"
	"github.com/techzone/intervention-manager/testutil"
)

func TestSetupLogger(t *testing.T) {
	previous := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(previous) })

	tests := []struct {
		name  string
		level string
		want  zerolog.Level
	}{
		{"debug", "debug", zerolog.DebugLevel},
		{"warn", "warn", zerolog.WarnLevel},
		{"empty falls back to info", "", zerolog.InfoLevel},
		{"unknown falls back to info", "chatty", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupLogger(&config.Config{GoEnv: "test", LogLevel: tt.level})
			assert.Equal(t, tt.want, zerolog.GlobalLevel())
		})
	}
}

func TestNewSessionStore_Database(t *testing.T) {
	db := testutil.NewTestDB(t)
	cfg := &config.Config{SessionStore: config.SessionStoreDatabase}

	store, closeStore, err := newSessionStore(context.Background(), cfg, db)
	require.NoError(t, err)
	defer closeStore()

	assert.IsType(t, &sessions.GormStore{}, store)
}

func TestNewSessionStore_RedisUnreachable(t *testing.T) {
	db := testutil.NewTestDB(t)
	cfg := &config.Config{SessionStore: config.SessionStoreRedis, RedisURL: "not a url"}

	_, _, err := newSessionStore(context.Background(), cfg, db)
	assert.Error(t, err)
}

func TestNewImageService_Local(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")
	cfg := &config.Config{UploadDir: dir}

	images, uploadDir, err := newImageService(context.Background(), cfg)
	require.NoError(t, err)

	assert.IsType(t, &services.LocalImageService{}, images)
	assert.Equal(t, dir, uploadDir)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
