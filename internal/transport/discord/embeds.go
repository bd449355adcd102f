package discord

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/cinecue/cinecue/internal/domain/media"
	"github.com/cinecue/cinecue/internal/domain/queue"
	"github.com/cinecue/cinecue/internal/domain/schedule"
	"github.com/cinecue/cinecue/internal/infra/tmdb"
	"github.com/cinecue/cinecue/internal/infra/vlc"
	"github.com/cinecue/cinecue/internal/version"
)

const (
	colorBlue   = 0x3498db
	colorGreen  = 0x2ecc71
	colorPurple = 0x9b59b6
)

func buildStatusEmbed(status *vlc.Status, items []vlc.PlaylistItem, queued int) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: "Player Status",
		Color: colorBlue,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "State", Value: stateLabel(status.State), Inline: true},
		},
	}

	if item, pos, ok := vlc.CurrentItem(items); ok {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   "Now Playing",
			Value:  fmt.Sprintf("#%d %s", pos, media.CleanFilenameForDisplay(item.Name, 0)),
			Inline: false,
		})
	}

	if status.Length > 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   "Position",
			Value:  fmt.Sprintf("%s / %s", media.FormatTime(status.Time), media.FormatTime(status.Length)),
			Inline: true,
		})
	}

	shuffle := "off"
	if status.Random {
		shuffle = "on"
	}
	embed.Fields = append(embed.Fields,
		&discordgo.MessageEmbedField{Name: "Shuffle", Value: shuffle, Inline: true},
		&discordgo.MessageEmbedField{Name: "Queued", Value: fmt.Sprintf("%d", queued), Inline: true},
	)
	return embed
}

func stateLabel(state string) string {
	switch state {
	case "playing":
		return "▶️ Playing"
	case "paused":
		return "⏸️ Paused"
	case "stopped":
		return "⏹️ Stopped"
	}
	return state
}

func buildPlaylistEmbed(items []vlc.PlaylistItem, page, perPage int) *discordgo.MessageEmbed {
	totalPages := (len(items) + perPage - 1) / perPage
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}

	start := (page - 1) * perPage
	end := start + perPage
	if end > len(items) {
		end = len(items)
	}

	var sb strings.Builder
	for i := start; i < end; i++ {
		item := items[i]
		marker := " "
		if item.Current {
			marker = "▶"
		}
		fmt.Fprintf(&sb, "%s `%3d` %s %s\n", marker, i+1, media.MediaIcon(item.Name), media.CleanFilenameForDisplay(item.Name, 0))
	}

	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Playlist (%d items)", len(items)),
		Description: sb.String(),
		Color:       colorBlue,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Page %d of %d", page, totalPages),
		},
	}
}

func buildSearchEmbed(query string, matches []searchMatch) *discordgo.MessageEmbed {
	const maxShown = 10

	var sb strings.Builder
	for i, match := range matches {
		if i == maxShown {
			fmt.Fprintf(&sb, "...and %d more\n", len(matches)-maxShown)
			break
		}
		fmt.Fprintf(&sb, "`%3d` %s\n", match.position, media.CleanFilenameForDisplay(match.item.Name, 0))
	}

	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Matches for \"%s\"", query),
		Description: sb.String(),
		Color:       colorBlue,
	}
}

func buildQueueEmbed(status queue.Status) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: "Soft Queue",
		Color: colorPurple,
	}

	if len(status.Entries) == 0 {
		embed.Description = "The queue is empty."
	} else {
		var sb strings.Builder
		for i, entry := range status.Entries {
			flags := ""
			if entry.RestoreShuffle {
				flags = " 🔀"
			}
			fmt.Fprintf(&sb, "`%d` %s%s\n", i+1, media.CleanFilenameForDisplay(entry.ItemName, 0), flags)
		}
		embed.Description = sb.String()
	}

	shuffle := "off"
	if status.ShuffleOn {
		shuffle = "on"
	}
	embed.Fields = []*discordgo.MessageEmbedField{
		{Name: "Shuffle", Value: shuffle, Inline: true},
		{Name: "Pending shuffle restores", Value: fmt.Sprintf("%d", len(status.PendingShuffleRestores)), Inline: true},
	}
	return embed
}

func buildScheduledEmbed(job schedule.Job, tz *time.Location) *discordgo.MessageEmbed {
	duration := "?"
	if job.Duration > 0 {
		duration = media.FormatTime(job.Duration)
	}
	return &discordgo.MessageEmbed{
		Title: "Playback Scheduled",
		Color: colorGreen,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Number", Value: fmt.Sprintf("#%d", job.Number), Inline: true},
			{Name: "Title", Value: job.Title, Inline: true},
			{Name: "Scheduled For", Value: job.At.In(tz).Format("2006-01-02 15:04 MST"), Inline: false},
			{Name: "Duration", Value: duration, Inline: true},
		},
	}
}

func buildSchedulesEmbed(jobs []schedule.Job, tz *time.Location) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: "Upcoming Scheduled Playbacks",
		Color: colorPurple,
	}
	for _, job := range jobs {
		duration := "?"
		if job.Duration > 0 {
			duration = media.FormatTime(job.Duration)
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   fmt.Sprintf("#%d — %s", job.Number, job.Title),
			Value:  fmt.Sprintf("Scheduled for %s\nDuration: %s", job.At.In(tz).Format("2006-01-02 15:04 MST"), duration),
			Inline: false,
		})
	}
	return embed
}

func buildMovieEmbed(movie *tmdb.Movie) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       movie.Title,
		Description: movie.Overview,
		URL:         movie.URL(),
		Color:       colorBlue,
	}
	if movie.ReleaseDate != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Release Date", Value: movie.ReleaseDate, Inline: true})
	}
	if movie.Runtime > 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Runtime", Value: fmt.Sprintf("%d minutes", movie.Runtime), Inline: true})
	}
	if movie.Rating > 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Rating", Value: fmt.Sprintf("⭐ %.1f/10", movie.Rating), Inline: true})
	}
	if len(movie.Genres) > 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Genres", Value: strings.Join(movie.Genres, ", "), Inline: true})
	}
	if url := movie.PosterURL(); url != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: url}
	}
	return embed
}

func buildHelpEmbed(prefix string, allowedRoles []string) *discordgo.MessageEmbed {
	p := prefix
	playback := fmt.Sprintf("`%splay` `%spause` `%sstop` `%srestart`\n"+
		"`%snext` `%sprevious` `%srewind [s]` `%sforward [s]`\n"+
		"`%sshuffle` `%sshuffle_on` `%sshuffle_off` `%sspeed <rate>`",
		p, p, p, p, p, p, p, p, p, p, p, p)
	playlist := fmt.Sprintf("`%slist [page]` - Show the playlist\n"+
		"`%ssearch <query>` - Search for items\n"+
		"`%splay_search <query>` - Search and play the first match\n"+
		"`%splay_num <number>` - Play an item by number", p, p, p, p)
	queueHelp := fmt.Sprintf("`%squeue_next <number>` - Queue an item to play next\n"+
		"`%squeue_status` - Show the queue\n"+
		"`%splay_queue` - Play the next queued item now\n"+
		"`%sremove_queue <position>` - Remove a queued item\n"+
		"`%sclear_queue` - Clear the queue", p, p, p, p, p)
	scheduling := fmt.Sprintf("`%sschedule <number> <YYYY-MM-DD> <HH:MM>` - Schedule a playback\n"+
		"`%sschedules` - List scheduled playbacks\n"+
		"`%sunschedule <number>` - Remove schedules for an item", p, p, p)
	other := fmt.Sprintf("`%sstatus` `%sversion`\n"+
		"`%sset_notification_channel` `%sunset_notification_channel` `%sshow_notification_channel`",
		p, p, p, p, p)

	embed := &discordgo.MessageEmbed{
		Title:       "Player Controls",
		Description: "Control the media player through Discord.",
		Color:       colorBlue,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "🎮 Playback", Value: playback, Inline: false},
			{Name: "📋 Playlist", Value: playlist, Inline: false},
			{Name: "📑 Queue", Value: queueHelp, Inline: false},
			{Name: "🗓️ Scheduling", Value: scheduling, Inline: false},
			{Name: "ℹ️ Other", Value: other, Inline: false},
		},
	}
	if len(allowedRoles) > 0 {
		embed.Footer = &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Most commands require one of these roles: %s", strings.Join(allowedRoles, ", ")),
		}
	}
	return embed
}

func buildVersionEmbed(itemsPerPage int, metadataEnabled bool) *discordgo.MessageEmbed {
	metadata := "Not Configured"
	if metadataEnabled {
		metadata = "Configured"
	}
	return &discordgo.MessageEmbed{
		Title: "Version",
		Color: colorBlue,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Version", Value: version.GetInfo().String(), Inline: true},
			{Name: "Items Per Page", Value: fmt.Sprintf("%d", itemsPerPage), Inline: true},
			{Name: "TMDB", Value: metadata, Inline: true},
		},
	}
}
