// Package config loads runtime settings from the environment, with an
// optional .env file for development setups.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config is the full runtime configuration.
type Config struct {
	// Discord
	DiscordToken  string
	CommandPrefix string
	AllowedRoles  []string

	// Player remote control
	VLCHost     string
	VLCPort     int
	VLCPassword string

	// Metadata
	TMDBAPIKey        string
	MetadataCachePath string

	// Persistence
	QueueBackupFile    string
	ScheduleBackupFile string

	// Watch folders
	WatchFolders        []string
	WatchEnqueueOnStart bool

	// Playback monitoring
	PollInterval time.Duration

	// Scheduling
	ScheduleTimezone string

	// Presentation
	ItemsPerPage int
}

// folderSeparators splits WATCH_FOLDERS on commas or semicolons.
var folderSeparators = regexp.MustCompile(`[;,]`)

// Load reads configuration from the environment. A .env file (the given
// paths, or one in the working directory) is merged in first when present.
func Load(envFiles ...string) Config {
	if err := godotenv.Load(envFiles...); err == nil {
		log.Debug().Msg("Loaded .env file")
	}

	return Config{
		DiscordToken:  os.Getenv("DISCORD_TOKEN"),
		CommandPrefix: getEnv("COMMAND_PREFIX", "!"),
		AllowedRoles:  splitTrim(getEnv("ALLOWED_ROLES", "Theater 2,Theater Host")),

		VLCHost:     getEnv("VLC_HOST", "localhost"),
		VLCPort:     getEnvInt("VLC_PORT", 8080),
		VLCPassword: getEnv("VLC_PASSWORD", "vlc"),

		TMDBAPIKey:        os.Getenv("TMDB_API_KEY"),
		MetadataCachePath: getEnv("METADATA_CACHE_PATH", "data/metadata.db"),

		QueueBackupFile:    getEnv("QUEUE_BACKUP_FILE", "queue_backup.json"),
		ScheduleBackupFile: getEnv("SCHEDULE_BACKUP_FILE", "schedule_backup.json"),

		WatchFolders:        splitFolders(os.Getenv("WATCH_FOLDERS")),
		WatchEnqueueOnStart: getEnvBool("WATCH_ENQUEUE_ON_START", false),

		PollInterval: getEnvDuration("POLL_INTERVAL", time.Second),

		ScheduleTimezone: getEnv("SCHEDULE_TIMEZONE", "Asia/Manila"),

		ItemsPerPage: getEnvInt("ITEMS_PER_PAGE", 20),
	}
}

// Validate returns every problem with the configuration. An empty slice
// means the configuration is usable.
func (c Config) Validate() []string {
	var errs []string

	if c.DiscordToken == "" {
		errs = append(errs, "DISCORD_TOKEN is required")
	}
	if len(c.AllowedRoles) == 0 {
		errs = append(errs, "ALLOWED_ROLES must contain at least one role")
	}
	if c.VLCPort < 1 || c.VLCPort > 65535 {
		errs = append(errs, "VLC_PORT must be between 1 and 65535")
	}
	if c.ItemsPerPage < 1 {
		errs = append(errs, "ITEMS_PER_PAGE must be greater than 0")
	}

	return errs
}

// Log writes the configuration with secrets reduced to set/unset.
func (c Config) Log() {
	log.Info().
		Str("vlc_host", c.VLCHost).
		Int("vlc_port", c.VLCPort).
		Str("command_prefix", c.CommandPrefix).
		Strs("allowed_roles", c.AllowedRoles).
		Str("queue_backup", c.QueueBackupFile).
		Str("schedule_backup", c.ScheduleBackupFile).
		Strs("watch_folders", c.WatchFolders).
		Bool("watch_enqueue_on_start", c.WatchEnqueueOnStart).
		Dur("poll_interval", c.PollInterval).
		Str("schedule_timezone", c.ScheduleTimezone).
		Int("items_per_page", c.ItemsPerPage).
		Bool("discord_token_set", c.DiscordToken != "").
		Bool("tmdb_api_key_set", c.TMDBAPIKey != "").
		Msg("Configuration")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("Not an integer, using default")
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("Not a boolean, using default")
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Warn().Str("key", key).Str("value", v).Msg("Not a positive duration, using default")
		return fallback
	}
	return d
}

func splitTrim(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// splitFolders parses a folder list allowing comma or semicolon separators
// and quoted entries.
func splitFolders(value string) []string {
	var out []string
	for _, part := range folderSeparators.Split(value, -1) {
		s := strings.TrimSpace(part)
		s = strings.Trim(s, `"'`)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// String implements fmt.Stringer with secrets redacted.
func (c Config) String() string {
	return fmt.Sprintf("vlc=%s:%d prefix=%s roles=%s folders=%d",
		c.VLCHost, c.VLCPort, c.CommandPrefix, strings.Join(c.AllowedRoles, "|"), len(c.WatchFolders))
}
