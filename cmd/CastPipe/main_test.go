package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BTreeMap/CastPipe/internal/poller"
	"github.com/BTreeMap/CastPipe/internal/store"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"NEYNAR_API_KEY", "FARCASTER_SIGNER_UUID", "FARCASTER_FID",
		"REDIS_URL", "DATABASE_URL", "CASTPIPE_STATE_DIR", "HANDLED_PATH",
		"API_ADDR", "ADMIN_TOKEN", "OPENAI_API_KEY", "WEATHER_API_KEY",
		"DAILY_CAST_CRON", "DISABLE_POLLING",
		"POLL_INTERVAL", "POLL_MIN_INTERVAL", "POLL_MAX_INTERVAL",
	} {
		os.Unsetenv(key)
	}
}

func TestLoadEnvironmentConfigDefaults(t *testing.T) {
	clearEnv(t)

	config := loadEnvironmentConfig()

	if config.StateDir != DefaultStateDir {
		t.Errorf("Expected default state dir %q, got %q", DefaultStateDir, config.StateDir)
	}
	expectedHandled := filepath.Join(DefaultStateDir, DefaultHandledFileName)
	if config.HandledPath != expectedHandled {
		t.Errorf("Expected default handled path %q, got %q", expectedHandled, config.HandledPath)
	}
	if config.PollInterval != poller.DefaultInterval {
		t.Errorf("Expected default poll interval %v, got %v", poller.DefaultInterval, config.PollInterval)
	}
	if config.DisablePolling {
		t.Error("Polling should be enabled by default")
	}
}

func TestLoadEnvironmentConfigCustomStateDir(t *testing.T) {
	clearEnv(t)
	customStateDir := "/tmp/custom_castpipe"
	os.Setenv("CASTPIPE_STATE_DIR", customStateDir)
	defer os.Unsetenv("CASTPIPE_STATE_DIR")

	config := loadEnvironmentConfig()

	if config.StateDir != customStateDir {
		t.Errorf("Expected custom state dir %q, got %q", customStateDir, config.StateDir)
	}
	expectedHandled := filepath.Join(customStateDir, DefaultHandledFileName)
	if config.HandledPath != expectedHandled {
		t.Errorf("Expected handled path in custom state dir %q, got %q", expectedHandled, config.HandledPath)
	}
}

func TestLoadEnvironmentConfigExplicitHandledPath(t *testing.T) {
	clearEnv(t)
	os.Setenv("HANDLED_PATH", "/tmp/markers.json")
	defer os.Unsetenv("HANDLED_PATH")

	config := loadEnvironmentConfig()
	if config.HandledPath != "/tmp/markers.json" {
		t.Errorf("Expected explicit handled path, got %q", config.HandledPath)
	}
}

func TestLoadEnvironmentConfigPollKnobs(t *testing.T) {
	clearEnv(t)
	os.Setenv("POLL_INTERVAL", "30s")
	os.Setenv("DISABLE_POLLING", "true")
	defer func() {
		os.Unsetenv("POLL_INTERVAL")
		os.Unsetenv("DISABLE_POLLING")
	}()

	config := loadEnvironmentConfig()
	if config.PollInterval != 30*time.Second {
		t.Errorf("Expected 30s poll interval, got %v", config.PollInterval)
	}
	if !config.DisablePolling {
		t.Error("Expected polling to be disabled")
	}
}

func TestBuildStoreFileTierOnly(t *testing.T) {
	dir := t.TempDir()
	handledPath := filepath.Join(dir, "handled.json")
	emptyURL := ""

	flags := Flags{
		redisURL:    &emptyURL,
		dbDSN:       &emptyURL,
		handledPath: &handledPath,
	}

	st := buildStore(flags)
	defer st.Close()
	if _, ok := st.(*store.FallbackStore); !ok {
		t.Errorf("Expected a FallbackStore, got %T", st)
	}
}

func TestBuildStoreSQLiteTier(t *testing.T) {
	dir := t.TempDir()
	handledPath := filepath.Join(dir, "handled.json")
	dbPath := filepath.Join(dir, "castpipe.db")
	emptyURL := ""

	flags := Flags{
		redisURL:    &emptyURL,
		dbDSN:       &dbPath,
		handledPath: &handledPath,
	}

	st := buildStore(flags)
	defer st.Close()
	if _, ok := st.(*store.FallbackStore); !ok {
		t.Errorf("Expected a FallbackStore, got %T", st)
	}
}
