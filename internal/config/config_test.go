package config

import (
	"reflect"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.VLCHost != "localhost" {
		t.Errorf("VLCHost = %q, want localhost", cfg.VLCHost)
	}
	if cfg.VLCPort != 8080 {
		t.Errorf("VLCPort = %d, want 8080", cfg.VLCPort)
	}
	if cfg.CommandPrefix != "!" {
		t.Errorf("CommandPrefix = %q, want !", cfg.CommandPrefix)
	}
	if cfg.ItemsPerPage != 20 {
		t.Errorf("ItemsPerPage = %d, want 20", cfg.ItemsPerPage)
	}
	if len(cfg.AllowedRoles) == 0 {
		t.Error("AllowedRoles should have defaults")
	}
	if cfg.PollInterval != time.Second {
		t.Errorf("PollInterval = %v, want 1s", cfg.PollInterval)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "token-123")
	t.Setenv("VLC_HOST", "10.0.0.5")
	t.Setenv("VLC_PORT", "9090")
	t.Setenv("ALLOWED_ROLES", " Host , Projectionist ")
	t.Setenv("WATCH_ENQUEUE_ON_START", "true")
	t.Setenv("POLL_INTERVAL", "500ms")

	cfg := Load()

	if cfg.DiscordToken != "token-123" {
		t.Errorf("DiscordToken = %q", cfg.DiscordToken)
	}
	if cfg.VLCHost != "10.0.0.5" || cfg.VLCPort != 9090 {
		t.Errorf("VLC settings = %s:%d", cfg.VLCHost, cfg.VLCPort)
	}
	if want := []string{"Host", "Projectionist"}; !reflect.DeepEqual(cfg.AllowedRoles, want) {
		t.Errorf("AllowedRoles = %v, want %v", cfg.AllowedRoles, want)
	}
	if !cfg.WatchEnqueueOnStart {
		t.Error("WatchEnqueueOnStart should be true")
	}
	if cfg.PollInterval != 500*time.Millisecond {
		t.Errorf("PollInterval = %v, want 500ms", cfg.PollInterval)
	}
}

func TestLoadBadNumbersFallBack(t *testing.T) {
	t.Setenv("VLC_PORT", "not-a-port")
	t.Setenv("ITEMS_PER_PAGE", "nope")
	t.Setenv("POLL_INTERVAL", "-2s")

	cfg := Load()
	if cfg.VLCPort != 8080 {
		t.Errorf("VLCPort = %d, want default 8080", cfg.VLCPort)
	}
	if cfg.ItemsPerPage != 20 {
		t.Errorf("ItemsPerPage = %d, want default 20", cfg.ItemsPerPage)
	}
	if cfg.PollInterval != time.Second {
		t.Errorf("PollInterval = %v, want default 1s", cfg.PollInterval)
	}
}

func TestSplitFolders(t *testing.T) {
	tests := []struct {
		value string
		want  []string
	}{
		{"", nil},
		{"/media/movies", []string{"/media/movies"}},
		{"/a, /b ;/c", []string{"/a", "/b", "/c"}},
		{`"/with space/movies", '/quoted'`, []string{"/with space/movies", "/quoted"}},
	}

	for _, tt := range tests {
		if got := splitFolders(tt.value); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitFolders(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	cfg := Config{
		DiscordToken: "token",
		AllowedRoles: []string{"Host"},
		VLCPort:      8080,
		ItemsPerPage: 20,
	}
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("Valid config reported errors: %v", errs)
	}

	bad := Config{VLCPort: 0, ItemsPerPage: 0}
	errs := bad.Validate()
	if len(errs) != 4 {
		t.Errorf("Expected 4 errors, got %v", errs)
	}
}
