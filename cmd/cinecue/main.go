// Package main is the entry point for the cinecue playback bot.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/cinecue/cinecue/internal/config"
	"github.com/cinecue/cinecue/internal/domain/monitor"
	"github.com/cinecue/cinecue/internal/domain/queue"
	"github.com/cinecue/cinecue/internal/domain/schedule"
	"github.com/cinecue/cinecue/internal/domain/watch"
	"github.com/cinecue/cinecue/internal/infra/cache"
	"github.com/cinecue/cinecue/internal/infra/tmdb"
	"github.com/cinecue/cinecue/internal/infra/vlc"
	"github.com/cinecue/cinecue/internal/transport/discord"
	"github.com/cinecue/cinecue/internal/version"
)

func main() {
	// Command line flags
	envFile := flag.String("env", "", "Path to a .env file (default: .env in the working directory)")
	dataDir := flag.String("data", "", "Directory for queue, schedule and cache files (overrides relative configured paths)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	var envFiles []string
	if *envFile != "" {
		envFiles = append(envFiles, *envFile)
	}
	cfg := config.Load(envFiles...)
	if *dataDir != "" {
		cfg.QueueBackupFile = rebase(*dataDir, cfg.QueueBackupFile)
		cfg.ScheduleBackupFile = rebase(*dataDir, cfg.ScheduleBackupFile)
		cfg.MetadataCachePath = rebase(*dataDir, cfg.MetadataCachePath)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			log.Error().Msg(e)
		}
		log.Fatal().Msg("Configuration is invalid")
	}

	// Print startup banner
	versionInfo := version.GetInfo()
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().Msgf("  %s", versionInfo.String())
	log.Info().Msg("  Discord VLC Playback Bot")
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	cfg.Log()

	// VLC remote control
	player := vlc.NewClient(cfg.VLCHost, cfg.VLCPort, cfg.VLCPassword)
	if _, err := player.GetStatus(); err != nil {
		log.Warn().Err(err).Msg("VLC is not reachable yet; commands will fail until it is")
	} else {
		log.Info().Str("host", cfg.VLCHost).Int("port", cfg.VLCPort).Msg("VLC connection verified")
	}

	// Soft queue with file-backed persistence
	queueStore := queue.NewStore(cfg.QueueBackupFile)
	engine := queue.NewEngine(player, queueStore)

	// Movie metadata lookups with a local cache
	metaCache := cache.NewDB(cfg.MetadataCachePath)
	if err := metaCache.Open(); err != nil {
		log.Warn().Err(err).Str("path", cfg.MetadataCachePath).Msg("Metadata cache unavailable, lookups will not be cached")
		metaCache = nil
	} else {
		defer metaCache.Close()
		if _, err := metaCache.Prune(); err != nil {
			log.Warn().Err(err).Msg("Could not prune metadata cache")
		}
		if stats, err := metaCache.GetStats(); err == nil {
			log.Info().Int("movies", stats.MovieCount).Msg("Metadata cache ready")
		}
	}
	var tmdbOpts []tmdb.Option
	if metaCache != nil {
		tmdbOpts = append(tmdbOpts, tmdb.WithCache(metaCache))
	}
	metadata := tmdb.NewClient(cfg.TMDBAPIKey, tmdbOpts...)
	if !metadata.Enabled() {
		log.Info().Msg("TMDB_API_KEY not set, movie details are disabled")
	}

	timezone, err := time.LoadLocation(cfg.ScheduleTimezone)
	if err != nil {
		log.Warn().Err(err).Str("timezone", cfg.ScheduleTimezone).Msg("Unknown timezone, falling back to local time")
		timezone = time.Local
	}

	// Scheduled playback with file-backed persistence
	scheduler := schedule.New(player, schedule.NewStore(cfg.ScheduleBackupFile))

	// Discord front end
	bot, err := discord.New(discord.Options{
		Token:        cfg.DiscordToken,
		Prefix:       cfg.CommandPrefix,
		AllowedRoles: cfg.AllowedRoles,
		ItemsPerPage: cfg.ItemsPerPage,
		Timezone:     timezone,
	}, player, engine, scheduler, metadata)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Discord bot")
	}
	scheduler.SetNotifier(bot)

	if err := bot.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Discord")
	}
	defer bot.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Playback monitor drives queue reconciliation and announcements
	poller := monitor.New(player, engine, bot, monitor.WithInterval(cfg.PollInterval))
	go poller.Run(ctx)
	go scheduler.Run(ctx)

	// Watch folders feed new media into the playlist
	watcher := watch.New(player, cfg.WatchFolders,
		watch.WithNotifier(bot),
		watch.WithEnqueueOnStart(cfg.WatchEnqueueOnStart))
	if watcher.Enabled() {
		go func() {
			if err := watcher.Run(ctx); err != nil {
				log.Error().Err(err).Msg("Watch folder service stopped")
			}
		}()
	}

	log.Info().Msg("Bot is running, press Ctrl+C to exit")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("Shutting down...")
	cancel()
	log.Info().Msg("Bot stopped")
}

// rebase joins relative paths onto the data directory, leaving absolute
// paths alone.
func rebase(dir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}
