package discord

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cinecue/cinecue/internal/domain/media"
	"github.com/cinecue/cinecue/internal/domain/queue"
	"github.com/cinecue/cinecue/internal/domain/schedule"
	"github.com/cinecue/cinecue/internal/infra/vlc"
)

// cmdContext carries one invocation's details to a handler.
type cmdContext struct {
	channelID string
	authorID  string
	args      []string
	raw       string
}

type command struct {
	requiresRole bool
	handler      func(b *Bot, ctx *cmdContext)
}

// commandTable maps command names to handlers. Read-only after init.
var commandTable = map[string]command{
	"controls": {handler: (*Bot).cmdControls},
	"version":  {handler: (*Bot).cmdVersion},
	"status":   {handler: (*Bot).cmdStatus},
	"list":     {handler: (*Bot).cmdList},

	"play":        {requiresRole: true, handler: (*Bot).cmdPlay},
	"pause":       {requiresRole: true, handler: (*Bot).cmdPause},
	"stop":        {requiresRole: true, handler: (*Bot).cmdStop},
	"restart":     {requiresRole: true, handler: (*Bot).cmdRestart},
	"rewind":      {requiresRole: true, handler: (*Bot).cmdRewind},
	"forward":     {requiresRole: true, handler: (*Bot).cmdForward},
	"next":        {requiresRole: true, handler: (*Bot).cmdNext},
	"previous":    {requiresRole: true, handler: (*Bot).cmdPrevious},
	"shuffle":     {requiresRole: true, handler: (*Bot).cmdShuffle},
	"shuffle_on":  {requiresRole: true, handler: (*Bot).cmdShuffleOn},
	"shuffle_off": {requiresRole: true, handler: (*Bot).cmdShuffleOff},
	"speed":       {requiresRole: true, handler: (*Bot).cmdSpeed},
	"play_num":    {requiresRole: true, handler: (*Bot).cmdPlayNum},
	"search":      {requiresRole: true, handler: (*Bot).cmdSearch},
	"play_search": {requiresRole: true, handler: (*Bot).cmdPlaySearch},

	"queue_next":   {requiresRole: true, handler: (*Bot).cmdQueueNext},
	"queue_status": {handler: (*Bot).cmdQueueStatus},
	"remove_queue": {requiresRole: true, handler: (*Bot).cmdRemoveQueue},
	"play_queue":   {requiresRole: true, handler: (*Bot).cmdPlayQueue},
	"clear_queue":  {requiresRole: true, handler: (*Bot).cmdClearQueue},

	"schedule":   {requiresRole: true, handler: (*Bot).cmdSchedule},
	"schedules":  {handler: (*Bot).cmdSchedules},
	"unschedule": {requiresRole: true, handler: (*Bot).cmdUnschedule},

	"set_notification_channel":   {requiresRole: true, handler: (*Bot).cmdSetNotificationChannel},
	"unset_notification_channel": {requiresRole: true, handler: (*Bot).cmdUnsetNotificationChannel},
	"show_notification_channel":  {requiresRole: true, handler: (*Bot).cmdShowNotificationChannel},
}

func (b *Bot) cmdPlay(ctx *cmdContext) {
	if err := b.player.Play(); err != nil {
		b.replyError(ctx, "start playback", err)
		return
	}
	b.reply(ctx.channelID, "▶️ Playback started")
}

func (b *Bot) cmdPause(ctx *cmdContext) {
	if err := b.player.Pause(); err != nil {
		b.replyError(ctx, "pause playback", err)
		return
	}
	b.reply(ctx.channelID, "⏸️ Playback paused")
}

func (b *Bot) cmdStop(ctx *cmdContext) {
	if err := b.player.Stop(); err != nil {
		b.replyError(ctx, "stop playback", err)
		return
	}
	b.reply(ctx.channelID, "⏹️ Playback stopped")
}

func (b *Bot) cmdRestart(ctx *cmdContext) {
	if err := b.player.Seek("0"); err != nil {
		b.replyError(ctx, "restart", err)
		return
	}
	b.reply(ctx.channelID, "⏪ Restarted from the beginning")
}

func (b *Bot) cmdRewind(ctx *cmdContext) {
	seconds := intArg(ctx.args, 0, 10)
	if err := b.player.Seek(fmt.Sprintf("-%ds", seconds)); err != nil {
		b.replyError(ctx, "rewind", err)
		return
	}
	b.reply(ctx.channelID, fmt.Sprintf("⏪ Rewound %d seconds", seconds))
}

func (b *Bot) cmdForward(ctx *cmdContext) {
	seconds := intArg(ctx.args, 0, 10)
	if err := b.player.Seek(fmt.Sprintf("+%ds", seconds)); err != nil {
		b.replyError(ctx, "fast forward", err)
		return
	}
	b.reply(ctx.channelID, fmt.Sprintf("⏩ Skipped ahead %d seconds", seconds))
}

// cmdNext plays the next queued item when one is pending, otherwise the next
// playlist item.
func (b *Bot) cmdNext(ctx *cmdContext) {
	if b.engine.Len() > 0 {
		res, err := b.engine.DequeueAndPlay()
		if err != nil {
			b.replyError(ctx, "play next queued item", err)
			return
		}
		b.reply(ctx.channelID, fmt.Sprintf("⏭️ Playing queued item: **%s**", media.CleanFilenameForDisplay(res.ItemName, 0)))
		return
	}
	if err := b.player.Next(); err != nil {
		b.replyError(ctx, "skip to next item", err)
		return
	}
	b.reply(ctx.channelID, "⏭️ Playing next item")
}

func (b *Bot) cmdPrevious(ctx *cmdContext) {
	if err := b.player.Previous(); err != nil {
		b.replyError(ctx, "go to previous item", err)
		return
	}
	b.reply(ctx.channelID, "⏮️ Playing previous item")
}

func (b *Bot) cmdShuffle(ctx *cmdContext) {
	if err := b.player.ToggleShuffle(); err != nil {
		b.replyError(ctx, "toggle shuffle", err)
		return
	}
	on, err := b.player.GetShuffleState()
	if err != nil {
		b.reply(ctx.channelID, "🔀 Shuffle toggled")
		return
	}
	b.reply(ctx.channelID, shuffleMessage(on))
}

func (b *Bot) cmdShuffleOn(ctx *cmdContext) {
	b.setShuffle(ctx, true)
}

func (b *Bot) cmdShuffleOff(ctx *cmdContext) {
	b.setShuffle(ctx, false)
}

func (b *Bot) setShuffle(ctx *cmdContext, want bool) {
	on, err := b.player.GetShuffleState()
	if err != nil {
		b.replyError(ctx, "read shuffle state", err)
		return
	}
	if on != want {
		if err := b.player.ToggleShuffle(); err != nil {
			b.replyError(ctx, "change shuffle state", err)
			return
		}
	}
	b.reply(ctx.channelID, shuffleMessage(want))
}

func shuffleMessage(on bool) string {
	if on {
		return "🔀 Shuffle is ON"
	}
	return "➡️ Shuffle is OFF"
}

func (b *Bot) cmdSpeed(ctx *cmdContext) {
	if len(ctx.args) == 0 {
		b.reply(ctx.channelID, usage(b.prefix, "speed <rate>, e.g. 1.0 or 1.5"))
		return
	}
	rate, err := strconv.ParseFloat(ctx.args[0], 64)
	if err != nil || rate < 0.25 || rate > 4.0 {
		b.reply(ctx.channelID, "❌ Rate must be a number between 0.25 and 4.0.")
		return
	}
	if err := b.player.SetRate(rate); err != nil {
		b.replyError(ctx, "change playback speed", err)
		return
	}
	b.reply(ctx.channelID, fmt.Sprintf("⏱️ Playback speed set to %.2gx", rate))
}

func (b *Bot) cmdStatus(ctx *cmdContext) {
	status, err := b.player.GetStatus()
	if err != nil {
		b.replyError(ctx, "read player status", err)
		return
	}
	items, _ := b.player.GetPlaylist()
	b.replyEmbed(ctx.channelID, buildStatusEmbed(status, items, b.engine.Len()))
}

func (b *Bot) cmdPlayNum(ctx *cmdContext) {
	number, ok := requireIntArg(b, ctx, 0, "play_num <number>")
	if !ok {
		return
	}
	item, ok2 := b.findByPosition(ctx, number)
	if !ok2 {
		return
	}
	if err := b.player.PlayItem(item.ID); err != nil {
		b.replyError(ctx, "play the item", err)
		return
	}
	b.reply(ctx.channelID, fmt.Sprintf("▶️ Playing #%d: **%s**", number, media.CleanFilenameForDisplay(item.Name, 0)))
	b.announceMetadata(ctx.channelID, item.Name)
}

func (b *Bot) cmdList(ctx *cmdContext) {
	items, err := b.player.GetPlaylist()
	if err != nil {
		b.replyError(ctx, "read the playlist", err)
		return
	}
	if len(items) == 0 {
		b.reply(ctx.channelID, "The playlist is empty.")
		return
	}
	page := intArg(ctx.args, 0, 1)
	b.replyEmbed(ctx.channelID, buildPlaylistEmbed(items, page, b.itemsPerPage))
}

func (b *Bot) cmdSearch(ctx *cmdContext) {
	if ctx.raw == "" {
		b.reply(ctx.channelID, usage(b.prefix, "search <query>"))
		return
	}
	items, err := b.player.GetPlaylist()
	if err != nil {
		b.replyError(ctx, "read the playlist", err)
		return
	}
	matches := searchPlaylist(items, ctx.raw)
	if len(matches) == 0 {
		b.reply(ctx.channelID, fmt.Sprintf("No playlist items match **%s**.", ctx.raw))
		return
	}
	b.replyEmbed(ctx.channelID, buildSearchEmbed(ctx.raw, matches))
}

func (b *Bot) cmdPlaySearch(ctx *cmdContext) {
	if ctx.raw == "" {
		b.reply(ctx.channelID, usage(b.prefix, "play_search <query>"))
		return
	}
	items, err := b.player.GetPlaylist()
	if err != nil {
		b.replyError(ctx, "read the playlist", err)
		return
	}
	matches := searchPlaylist(items, ctx.raw)
	if len(matches) == 0 {
		b.reply(ctx.channelID, fmt.Sprintf("No playlist items match **%s**.", ctx.raw))
		return
	}
	match := matches[0]
	if err := b.player.PlayItem(match.item.ID); err != nil {
		b.replyError(ctx, "play the item", err)
		return
	}
	b.reply(ctx.channelID, fmt.Sprintf("▶️ Playing #%d: **%s**", match.position, media.CleanFilenameForDisplay(match.item.Name, 0)))
	b.announceMetadata(ctx.channelID, match.item.Name)
}

func (b *Bot) cmdQueueNext(ctx *cmdContext) {
	number, ok := requireIntArg(b, ctx, 0, "queue_next <number>")
	if !ok {
		return
	}
	item, ok2 := b.findByPosition(ctx, number)
	if !ok2 {
		return
	}

	res, err := b.engine.Enqueue(item.ID, item.Name)
	if err != nil {
		if errors.Is(err, queue.ErrAlreadyQueued) {
			b.reply(ctx.channelID, fmt.Sprintf("**%s** is already queued.", media.CleanFilenameForDisplay(item.Name, 0)))
			return
		}
		b.replyError(ctx, "queue the item", err)
		return
	}

	msg := fmt.Sprintf("📑 Queued **%s** (#%d) at position %d of %d.",
		media.CleanFilenameForDisplay(res.ItemName, 0), number, res.QueueOrder, res.TotalQueued)
	if res.ShuffleSuspended {
		msg += "\n🔀 Shuffle suspended until the queue finishes; it will be restored afterwards."
	}
	b.reply(ctx.channelID, msg)
}

func (b *Bot) cmdQueueStatus(ctx *cmdContext) {
	b.replyEmbed(ctx.channelID, buildQueueEmbed(b.engine.GetQueueStatus()))
}

func (b *Bot) cmdRemoveQueue(ctx *cmdContext) {
	order, ok := requireIntArg(b, ctx, 0, "remove_queue <queue position>")
	if !ok {
		return
	}
	res, err := b.engine.RemoveByQueueOrder(order)
	if err != nil {
		if errors.Is(err, queue.ErrOrderNotFound) {
			b.reply(ctx.channelID, fmt.Sprintf("Nothing is queued at position %d.", order))
			return
		}
		b.replyError(ctx, "remove the queued item", err)
		return
	}
	b.reply(ctx.channelID, fmt.Sprintf("🗑️ Removed **%s** from the queue.", media.CleanFilenameForDisplay(res.ItemName, 0)))
}

func (b *Bot) cmdPlayQueue(ctx *cmdContext) {
	res, err := b.engine.DequeueAndPlay()
	if err != nil {
		if errors.Is(err, queue.ErrQueueEmpty) {
			b.reply(ctx.channelID, "The queue is empty.")
			return
		}
		b.replyError(ctx, "play the queued item", err)
		return
	}
	b.reply(ctx.channelID, fmt.Sprintf("▶️ Playing queued item: **%s**", media.CleanFilenameForDisplay(res.ItemName, 0)))
	b.announceMetadata(ctx.channelID, res.ItemName)
}

func (b *Bot) cmdClearQueue(ctx *cmdContext) {
	b.engine.ClearAll()
	b.reply(ctx.channelID, "🗑️ Queue cleared.")
}

func (b *Bot) cmdSchedule(ctx *cmdContext) {
	if len(ctx.args) < 3 {
		b.reply(ctx.channelID, usage(b.prefix, "schedule <number> <YYYY-MM-DD> <HH:MM>"))
		return
	}
	number, err := strconv.Atoi(ctx.args[0])
	if err != nil {
		b.reply(ctx.channelID, usage(b.prefix, "schedule <number> <YYYY-MM-DD> <HH:MM>"))
		return
	}
	at, err := time.ParseInLocation("2006-01-02 15:04", ctx.args[1]+" "+ctx.args[2], b.timezone)
	if err != nil {
		b.reply(ctx.channelID, usage(b.prefix, "schedule <number> <YYYY-MM-DD> <HH:MM>"))
		return
	}

	job, err := b.scheduler.Schedule(number, at, ctx.channelID)
	if err != nil {
		switch {
		case errors.Is(err, schedule.ErrPastTime):
			b.reply(ctx.channelID, "❌ Scheduled time must be in the future.")
		case errors.Is(err, schedule.ErrAlreadyScheduled):
			b.reply(ctx.channelID, fmt.Sprintf("❌ #%d is already scheduled around that time.", number))
		default:
			b.replyError(ctx, "schedule the item", err)
		}
		return
	}
	b.replyEmbed(ctx.channelID, buildScheduledEmbed(job, b.timezone))
}

func (b *Bot) cmdSchedules(ctx *cmdContext) {
	jobs := b.scheduler.List()
	if len(jobs) == 0 {
		b.reply(ctx.channelID, "Nothing is scheduled.")
		return
	}
	b.replyEmbed(ctx.channelID, buildSchedulesEmbed(jobs, b.timezone))
}

func (b *Bot) cmdUnschedule(ctx *cmdContext) {
	number, ok := requireIntArg(b, ctx, 0, "unschedule <number>")
	if !ok {
		return
	}
	removed, err := b.scheduler.Unschedule(number)
	if err != nil {
		if errors.Is(err, schedule.ErrNotScheduled) {
			b.reply(ctx.channelID, fmt.Sprintf("No schedules found for #%d.", number))
			return
		}
		b.replyError(ctx, "remove the schedules", err)
		return
	}
	b.reply(ctx.channelID, fmt.Sprintf("Removed %d schedule(s) for #%d.", removed, number))
}

func (b *Bot) cmdSetNotificationChannel(ctx *cmdContext) {
	b.setNotificationChannel(ctx.channelID)
	b.reply(ctx.channelID, "🔔 Playback announcements will be posted in this channel.")
}

func (b *Bot) cmdUnsetNotificationChannel(ctx *cmdContext) {
	b.setNotificationChannel("")
	b.reply(ctx.channelID, "🔕 Playback announcements disabled.")
}

func (b *Bot) cmdShowNotificationChannel(ctx *cmdContext) {
	channelID := b.notificationChannel()
	if channelID == "" {
		b.reply(ctx.channelID, "No notification channel is set.")
		return
	}
	b.reply(ctx.channelID, fmt.Sprintf("Announcements go to <#%s>.", channelID))
}

func (b *Bot) cmdControls(ctx *cmdContext) {
	b.replyEmbed(ctx.channelID, buildHelpEmbed(b.prefix, b.allowedRoles))
}

func (b *Bot) cmdVersion(ctx *cmdContext) {
	b.replyEmbed(ctx.channelID, buildVersionEmbed(b.itemsPerPage, b.metadata != nil && b.metadata.Enabled()))
}

// findByPosition resolves a 1-based playlist position, replying on failure.
func (b *Bot) findByPosition(ctx *cmdContext, number int) (vlc.PlaylistItem, bool) {
	items, err := b.player.GetPlaylist()
	if err != nil {
		b.replyError(ctx, "read the playlist", err)
		return vlc.PlaylistItem{}, false
	}
	item, ok := vlc.FindByPosition(items, number)
	if !ok {
		b.reply(ctx.channelID, fmt.Sprintf("❌ Playlist item #%d does not exist (1-%d).", number, len(items)))
		return vlc.PlaylistItem{}, false
	}
	return item, true
}

func (b *Bot) replyError(ctx *cmdContext, action string, err error) {
	log.Warn().Err(err).Str("action", action).Msg("Command failed")
	if errors.Is(err, vlc.ErrAuth) {
		b.reply(ctx.channelID, "❌ The player rejected the configured password.")
		return
	}
	b.reply(ctx.channelID, fmt.Sprintf("❌ Could not %s: %v", action, err))
}

func usage(prefix, cmd string) string {
	return fmt.Sprintf("Usage: `%s%s`", prefix, cmd)
}

// intArg reads args[i] as an int, falling back when missing or malformed.
func intArg(args []string, i, fallback int) int {
	if i >= len(args) {
		return fallback
	}
	n, err := strconv.Atoi(args[i])
	if err != nil {
		return fallback
	}
	return n
}

// requireIntArg reads a mandatory int argument, replying with usage when it
// is missing.
func requireIntArg(b *Bot, ctx *cmdContext, i int, usageText string) (int, bool) {
	if i >= len(ctx.args) {
		b.reply(ctx.channelID, usage(b.prefix, usageText))
		return 0, false
	}
	n, err := strconv.Atoi(ctx.args[i])
	if err != nil {
		b.reply(ctx.channelID, usage(b.prefix, usageText))
		return 0, false
	}
	return n, true
}

type searchMatch struct {
	position int
	item     vlc.PlaylistItem
}

// searchPlaylist does a case-insensitive substring search over item names.
func searchPlaylist(items []vlc.PlaylistItem, query string) []searchMatch {
	needle := strings.ToLower(query)
	var matches []searchMatch
	for i, item := range items {
		if strings.Contains(strings.ToLower(item.Name), needle) {
			matches = append(matches, searchMatch{position: i + 1, item: item})
		}
	}
	return matches
}
