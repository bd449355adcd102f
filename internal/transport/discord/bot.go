// Package discord exposes the player, queue and scheduler over a Discord
// bot with prefix commands.
package discord

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"github.com/cinecue/cinecue/internal/domain/queue"
	"github.com/cinecue/cinecue/internal/domain/schedule"
	"github.com/cinecue/cinecue/internal/infra/tmdb"
	"github.com/cinecue/cinecue/internal/infra/vlc"
)

// Player is the player remote surface the bot drives.
type Player interface {
	GetStatus() (*vlc.Status, error)
	GetPlaylist() ([]vlc.PlaylistItem, error)
	Play() error
	Pause() error
	Stop() error
	Next() error
	Previous() error
	Seek(val string) error
	PlayItem(id string) error
	GetShuffleState() (bool, error)
	ToggleShuffle() error
	SetRate(rate float64) error
}

// Engine is the soft queue surface the bot drives.
type Engine interface {
	Enqueue(itemID, itemName string) (queue.EnqueueResult, error)
	RemoveByQueueOrder(order int) (queue.RemoveResult, error)
	DequeueAndPlay() (queue.PlayResult, error)
	ClearAll()
	GetQueueStatus() queue.Status
	Len() int
}

// Scheduler is the scheduling surface the bot drives.
type Scheduler interface {
	Schedule(number int, at time.Time, channelID string) (schedule.Job, error)
	Unschedule(number int) (int, error)
	List() []schedule.Job
}

// Metadata looks up movie details for announcements.
type Metadata interface {
	Enabled() bool
	SearchMovie(ctx context.Context, title string) (*tmdb.Movie, error)
}

// messenger abstracts message delivery so command handlers can be tested
// without a live session.
type messenger interface {
	Send(channelID, content string) error
	SendEmbed(channelID string, embed *discordgo.MessageEmbed) error
}

type sessionMessenger struct {
	session *discordgo.Session
}

func (m *sessionMessenger) Send(channelID, content string) error {
	_, err := m.session.ChannelMessageSend(channelID, content)
	return err
}

func (m *sessionMessenger) SendEmbed(channelID string, embed *discordgo.MessageEmbed) error {
	_, err := m.session.ChannelMessageSendEmbed(channelID, embed)
	return err
}

// Options carries the bot's static settings.
type Options struct {
	Token        string
	Prefix       string
	AllowedRoles []string
	ItemsPerPage int
	Timezone     *time.Location
}

// Bot is the Discord front end.
type Bot struct {
	session   *discordgo.Session
	msgr      messenger
	player    Player
	engine    Engine
	scheduler Scheduler
	metadata  Metadata

	prefix       string
	allowedRoles []string
	itemsPerPage int
	timezone     *time.Location

	// hasRole is swapped out in tests.
	hasRole func(m *discordgo.MessageCreate) bool

	mu              sync.RWMutex
	notifyChannelID string
}

// New creates the bot and registers its handlers. The session is not opened
// until Start.
func New(opts Options, player Player, engine Engine, scheduler Scheduler, metadata Metadata) (*Bot, error) {
	session, err := discordgo.New("Bot " + opts.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentMessageContent

	b := &Bot{
		session:      session,
		msgr:         &sessionMessenger{session: session},
		player:       player,
		engine:       engine,
		scheduler:    scheduler,
		metadata:     metadata,
		prefix:       opts.Prefix,
		allowedRoles: opts.AllowedRoles,
		itemsPerPage: opts.ItemsPerPage,
		timezone:     opts.Timezone,
	}
	if b.prefix == "" {
		b.prefix = "!"
	}
	if b.itemsPerPage < 1 {
		b.itemsPerPage = 20
	}
	if b.timezone == nil {
		b.timezone = time.Local
	}
	b.hasRole = b.memberHasAllowedRole

	session.AddHandler(b.onReady)
	session.AddHandler(b.onMessageCreate)
	return b, nil
}

// Start opens the gateway connection.
func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	return nil
}

// Close shuts the gateway connection down.
func (b *Bot) Close() error {
	return b.session.Close()
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	log.Info().
		Str("username", r.User.Username).
		Int("guilds", len(r.Guilds)).
		Msg("Discord session ready")
	if err := s.UpdateGameStatus(0, b.prefix+"controls"); err != nil {
		log.Warn().Err(err).Msg("Could not set presence")
	}
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if !strings.HasPrefix(m.Content, b.prefix) {
		return
	}

	fields := strings.Fields(strings.TrimPrefix(m.Content, b.prefix))
	if len(fields) == 0 {
		return
	}
	name := strings.ToLower(fields[0])

	cmd, ok := commandTable[name]
	if !ok {
		return
	}

	if cmd.requiresRole && !b.hasRole(m) {
		b.reply(m.ChannelID, "❌ You don't have permission to use this command.")
		return
	}

	raw := strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(m.Content, b.prefix), fields[0]))
	ctx := &cmdContext{
		channelID: m.ChannelID,
		authorID:  m.Author.ID,
		args:      fields[1:],
		raw:       raw,
	}

	log.Debug().Str("command", name).Str("user", m.Author.ID).Msg("Command received")
	cmd.handler(b, ctx)
}

// memberHasAllowedRole resolves the author's role names through the session
// state cache.
func (b *Bot) memberHasAllowedRole(m *discordgo.MessageCreate) bool {
	if m.Member == nil {
		return false
	}
	for _, roleID := range m.Member.Roles {
		role, err := b.session.State.Role(m.GuildID, roleID)
		if err != nil {
			continue
		}
		for _, allowed := range b.allowedRoles {
			if strings.EqualFold(role.Name, allowed) {
				return true
			}
		}
	}
	return false
}

// reply sends plain text, logging delivery failures.
func (b *Bot) reply(channelID, content string) {
	if err := b.msgr.Send(channelID, content); err != nil {
		log.Warn().Err(err).Str("channel", channelID).Msg("Could not send message")
	}
}

// replyEmbed sends an embed, logging delivery failures.
func (b *Bot) replyEmbed(channelID string, embed *discordgo.MessageEmbed) {
	if err := b.msgr.SendEmbed(channelID, embed); err != nil {
		log.Warn().Err(err).Str("channel", channelID).Msg("Could not send embed")
	}
}

// notificationChannel returns the channel announcements go to, "" when
// unset.
func (b *Bot) notificationChannel() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.notifyChannelID
}

func (b *Bot) setNotificationChannel(channelID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notifyChannelID = channelID
}
