package discord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cinecue/cinecue/internal/domain/media"
	"github.com/cinecue/cinecue/internal/domain/monitor"
	"github.com/cinecue/cinecue/internal/domain/queue"
	"github.com/cinecue/cinecue/internal/domain/schedule"
	"github.com/cinecue/cinecue/internal/infra/tmdb"
)

const metadataTimeout = 10 * time.Second

// NotifyStateChanged announces playback state flips.
func (b *Bot) NotifyStateChanged(prev, curr monitor.Snapshot) {
	channelID := b.notificationChannel()
	if channelID == "" {
		return
	}

	switch curr.State {
	case "playing":
		if curr.ItemName != "" {
			b.reply(channelID, fmt.Sprintf("▶️ Now playing: **%s**", media.CleanFilenameForDisplay(curr.ItemName, 0)))
		} else {
			b.reply(channelID, "▶️ Playback started")
		}
	case "paused":
		b.reply(channelID, "⏸️ Playback paused")
	case "stopped":
		b.reply(channelID, "⏹️ Playback stopped")
	}
}

// NotifyTrackChanged announces a new item and its movie details, and mirrors
// the item into the bot's presence.
func (b *Bot) NotifyTrackChanged(curr monitor.Snapshot) {
	if curr.ItemName == "" {
		return
	}
	display := media.CleanFilenameForDisplay(curr.ItemName, 0)
	if err := b.session.UpdateGameStatus(0, display); err != nil {
		log.Debug().Err(err).Msg("Could not update presence")
	}

	channelID := b.notificationChannel()
	if channelID == "" {
		return
	}
	b.reply(channelID, fmt.Sprintf("🎬 Now playing: **%s**", display))
	b.announceMetadata(channelID, curr.ItemName)
}

// NotifyTransitions announces queue bookkeeping actions.
func (b *Bot) NotifyTransitions(transitions []queue.Transition) {
	channelID := b.notificationChannel()
	if channelID == "" {
		return
	}
	for _, t := range transitions {
		name := media.CleanFilenameForDisplay(t.ItemName, 0)
		switch t.Action {
		case queue.TransitionQueuedItemStarted:
			b.reply(channelID, fmt.Sprintf("📑 Queued item started: **%s**", name))
		case queue.TransitionAutoPlayNext:
			b.reply(channelID, fmt.Sprintf("⏭️ Auto-playing next queued item: **%s**", name))
		}
	}
}

// NotifyFilesAdded announces media files picked up from the watch folders.
func (b *Bot) NotifyFilesAdded(paths []string) {
	channelID := b.notificationChannel()
	if channelID == "" {
		return
	}

	if len(paths) > 3 {
		b.reply(channelID, fmt.Sprintf("📥 Added %d new files to the playlist.", len(paths)))
		return
	}
	for _, path := range paths {
		b.reply(channelID, fmt.Sprintf("📥 Added to playlist: %s **%s**",
			media.MediaIcon(path), media.CleanFilenameForDisplay(path, 0)))
		b.announceMetadata(channelID, path)
	}
}

// NotifyScheduledStart announces a scheduled playback firing, in the channel
// the schedule was created from.
func (b *Bot) NotifyScheduledStart(job schedule.Job) {
	channelID := job.ChannelID
	if channelID == "" {
		channelID = b.notificationChannel()
	}
	if channelID == "" {
		return
	}
	b.reply(channelID, fmt.Sprintf("🎬 Scheduled playback #%d (**%s**) is starting!", job.Number, job.Title))
	b.announceMetadata(channelID, job.Title)
}

// announceMetadata posts a movie details embed for a filename or title.
// Lookups run in the background so command handling never blocks on the
// metadata API.
func (b *Bot) announceMetadata(channelID, name string) {
	if b.metadata == nil || !b.metadata.Enabled() {
		return
	}
	title := media.CleanMovieTitle(name)
	if title == "" {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), metadataTimeout)
		defer cancel()

		movie, err := b.metadata.SearchMovie(ctx, title)
		if err != nil {
			if !errors.Is(err, tmdb.ErrNotFound) {
				log.Debug().Err(err).Str("title", title).Msg("Metadata lookup failed")
			}
			return
		}
		b.replyEmbed(channelID, buildMovieEmbed(movie))
	}()
}
