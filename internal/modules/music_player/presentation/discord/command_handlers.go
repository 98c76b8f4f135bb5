package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/sgrlink/internal/bot"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/application"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/application/ports"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/domain"
)

// Embed colors.
const (
	colorSuccess = 0x08c404
	colorError   = 0xE74C3C
)

const queuePageSize = 10

// CommandHandlers holds all the command handlers.
type CommandHandlers struct {
	manager    *application.Manager
	voiceState ports.VoiceStateProvider
}

// NewCommandHandlers creates new CommandHandlers.
func NewCommandHandlers(
	manager *application.Manager,
	voiceState ports.VoiceStateProvider,
) *CommandHandlers {
	return &CommandHandlers{
		manager:    manager,
		voiceState: voiceState,
	}
}

// invocation holds the ids every command needs.
type invocation struct {
	guildID   snowflake.ID
	userID    snowflake.ID
	channelID snowflake.ID
}

// parseInvocation returns the ids of i, or a message for the user.
func parseInvocation(i *discordgo.InteractionCreate) (invocation, string) {
	guildID, err := snowflake.Parse(i.GuildID)
	if err != nil {
		return invocation{}, "Invalid guild"
	}

	if i.Member == nil || i.Member.User == nil {
		return invocation{}, "Invalid user"
	}
	userID, err := snowflake.Parse(i.Member.User.ID)
	if err != nil {
		return invocation{}, "Invalid user"
	}

	channelID, err := snowflake.Parse(i.ChannelID)
	if err != nil {
		return invocation{}, "Invalid notification channel"
	}

	return invocation{guildID: guildID, userID: userID, channelID: channelID}, ""
}

// player returns the existing player of the guild and moves its
// notifications to the invoking channel.
func (h *CommandHandlers) player(in invocation) (*application.Player, error) {
	player := h.manager.Player(in.guildID)
	if player == nil {
		return nil, application.ErrPlayerNotFound
	}
	player.SetTextChannel(in.channelID)
	return player, nil
}

// ensurePlayer returns a connected player for the guild. A zero
// voiceChannelID keeps an existing connection or joins the user's channel.
func (h *CommandHandlers) ensurePlayer(
	ctx context.Context,
	in invocation,
	voiceChannelID snowflake.ID,
) (*application.Player, error) {
	if voiceChannelID == 0 {
		if existing := h.manager.Player(in.guildID); existing != nil &&
			existing.State() == domain.StateConnected {
			existing.SetTextChannel(in.channelID)
			return existing, nil
		}

		channelID, err := h.voiceState.GetUserVoiceChannel(in.guildID, in.userID)
		if err != nil {
			return nil, err
		}
		if channelID == nil {
			return nil, application.ErrUserNotInVoice
		}
		voiceChannelID = *channelID
	}

	player, err := h.manager.CreatePlayer(ctx, application.PlayerOptions{
		GuildID:        in.guildID,
		VoiceChannelID: voiceChannelID,
		TextChannelID:  in.channelID,
		SelfDeaf:       true,
	})
	if err != nil {
		return nil, err
	}
	player.SetTextChannel(in.channelID)

	if player.State() == domain.StateConnected && player.VoiceChannelID() == voiceChannelID {
		return player, nil
	}
	player.SetVoiceChannel(voiceChannelID)
	if err := player.Connect(ctx); err != nil {
		return nil, err
	}
	return player, nil
}

// HandleJoin handles the /join command.
func (h *CommandHandlers) HandleJoin(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ctx := context.Background()

	in, msg := parseInvocation(i)
	if msg != "" {
		return respondError(r, msg)
	}

	var voiceChannelID snowflake.ID
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "channel" {
			id, err := snowflake.Parse(opt.ChannelValue(s).ID)
			if err != nil {
				return respondError(r, "Invalid voice channel")
			}
			voiceChannelID = id
		}
	}

	player, err := h.ensurePlayer(ctx, in, voiceChannelID)
	if err != nil {
		return respondError(r, errorMessage(err))
	}

	return respondSuccess(r, fmt.Sprintf("Connected to <#%d>.", player.VoiceChannelID()))
}

// HandleLeave handles the /leave command.
func (h *CommandHandlers) HandleLeave(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ctx := context.Background()

	in, msg := parseInvocation(i)
	if msg != "" {
		return respondError(r, msg)
	}

	if err := h.manager.DestroyPlayer(ctx, in.guildID, domain.DestroyReasonLeaveCommand); err != nil {
		return respondError(r, errorMessage(err))
	}

	return respondSuccess(r, "Disconnected.")
}

// HandlePlay handles the /play command.
func (h *CommandHandlers) HandlePlay(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ctx := context.Background()

	in, msg := parseInvocation(i)
	if msg != "" {
		return respondError(r, msg)
	}

	var query string
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "query" {
			query = opt.StringValue()
		}
	}

	player, err := h.ensurePlayer(ctx, in, 0)
	if err != nil {
		return respondError(r, errorMessage(err))
	}

	list, err := player.Search(ctx, query)
	if err != nil {
		return respondError(r, errorMessage(err))
	}

	entries := queueEntries(list, in.userID)
	if err := player.Queue().Add(ctx, -1, entries...); err != nil {
		slog.Warn("failed to persist queue", "guild", in.guildID, "error", err)
	}

	if player.Queue().Current() == nil {
		if err := player.Play(ctx, application.PlayOptions{}); err != nil {
			return respondError(r, errorMessage(err))
		}
	}

	var description string
	if list.Type == domain.TrackListTypePlaylist {
		description = fmt.Sprintf(
			"Added **%d tracks** from playlist **%s** to the queue.",
			len(entries),
			list.Name,
		)
	} else {
		description = fmt.Sprintf("Added %s to the queue.", trackLink(entries[0].Info()))
	}

	return respondSuccess(r, description)
}

// queueEntries returns every track of a playlist, and the first track of
// any other result.
func queueEntries(list *domain.TrackList, requesterID snowflake.ID) []*domain.QueueEntry {
	tracks := list.Tracks
	if list.Type != domain.TrackListTypePlaylist {
		tracks = tracks[:1]
	}

	entries := make([]*domain.QueueEntry, len(tracks))
	for idx, track := range tracks {
		entries[idx] = domain.NewQueueEntry(track, requesterID)
	}
	return entries
}

// HandleStop handles the /stop command.
func (h *CommandHandlers) HandleStop(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ctx := context.Background()

	in, msg := parseInvocation(i)
	if msg != "" {
		return respondError(r, msg)
	}

	player, err := h.player(in)
	if err != nil {
		return respondError(r, errorMessage(err))
	}

	if err := player.Stop(ctx, true); err != nil {
		return respondError(r, errorMessage(err))
	}

	return respondSuccess(r, "Stopped playback.")
}

// HandlePause handles the /pause command.
func (h *CommandHandlers) HandlePause(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ctx := context.Background()

	in, msg := parseInvocation(i)
	if msg != "" {
		return respondError(r, msg)
	}

	player, err := h.player(in)
	if err != nil {
		return respondError(r, errorMessage(err))
	}

	if err := player.Pause(ctx); err != nil {
		return respondError(r, errorMessage(err))
	}

	return respondSuccess(r, "Paused playback.")
}

// HandleResume handles the /resume command.
func (h *CommandHandlers) HandleResume(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ctx := context.Background()

	in, msg := parseInvocation(i)
	if msg != "" {
		return respondError(r, msg)
	}

	player, err := h.player(in)
	if err != nil {
		return respondError(r, errorMessage(err))
	}

	if err := player.Resume(ctx); err != nil {
		return respondError(r, errorMessage(err))
	}

	return respondSuccess(r, "Resumed playback.")
}

// HandleSkip handles the /skip command.
func (h *CommandHandlers) HandleSkip(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ctx := context.Background()

	in, msg := parseInvocation(i)
	if msg != "" {
		return respondError(r, msg)
	}

	count := 1
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "count" {
			count = int(opt.IntValue())
		}
	}

	player, err := h.player(in)
	if err != nil {
		return respondError(r, errorMessage(err))
	}

	if err := player.Skip(ctx, count); err != nil {
		return respondError(r, errorMessage(err))
	}

	// "Now Playing" is sent by the notification handler
	if count > 1 {
		return respondSuccess(r, fmt.Sprintf("Skipped %d tracks.", count))
	}
	return respondSuccess(r, "Skipped.")
}

// HandleSeek handles the /seek command.
func (h *CommandHandlers) HandleSeek(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ctx := context.Background()

	in, msg := parseInvocation(i)
	if msg != "" {
		return respondError(r, msg)
	}

	var position time.Duration
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "position" {
			parsed, err := parsePosition(opt.StringValue())
			if err != nil {
				return respondError(r, "Invalid position. Use seconds, mm:ss or hh:mm:ss.")
			}
			position = parsed
		}
	}

	player, err := h.player(in)
	if err != nil {
		return respondError(r, errorMessage(err))
	}

	if err := player.Seek(ctx, position); err != nil {
		return respondError(r, errorMessage(err))
	}

	return respondSuccess(r, fmt.Sprintf("Seeked to `%s`.", domain.FormatDuration(player.Position())))
}

// parsePosition accepts "90", "1:30" and "1:01:30".
func parsePosition(s string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("too many components in %q", s)
	}

	var seconds int
	for idx, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid position %q", s)
		}
		if idx > 0 && n >= 60 {
			return 0, fmt.Errorf("invalid position %q", s)
		}
		seconds = seconds*60 + n
	}
	return time.Duration(seconds) * time.Second, nil
}

// HandleVolume handles the /volume command.
func (h *CommandHandlers) HandleVolume(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ctx := context.Background()

	in, msg := parseInvocation(i)
	if msg != "" {
		return respondError(r, msg)
	}

	var level int
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "level" {
			level = int(opt.IntValue())
		}
	}

	player, err := h.player(in)
	if err != nil {
		return respondError(r, errorMessage(err))
	}

	if err := player.SetVolume(ctx, level); err != nil {
		return respondError(r, errorMessage(err))
	}

	return respondSuccess(r, fmt.Sprintf("Volume set to **%d%%**.", level))
}

// HandleNowPlaying handles the /nowplaying command.
func (h *CommandHandlers) HandleNowPlaying(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	in, msg := parseInvocation(i)
	if msg != "" {
		return respondError(r, msg)
	}

	player, err := h.player(in)
	if err != nil {
		return respondError(r, errorMessage(err))
	}

	current := player.Queue().Current()
	if current == nil || !player.IsPlaying() {
		return respondError(r, errorMessage(application.ErrNotPlaying))
	}

	info := current.Info()
	progress := "LIVE"
	if !info.IsStream {
		progress = fmt.Sprintf(
			"%s / %s",
			domain.FormatDuration(player.Position()),
			domain.FormatDuration(info.Duration),
		)
	}
	if player.IsPaused() {
		progress += " (paused)"
	}

	embed := &discordgo.MessageEmbed{
		Title:       "Now Playing",
		Description: fmt.Sprintf("%s\n`%s`", trackLink(info), progress),
		Color:       colorSuccess,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Artist", Value: info.Author, Inline: true},
			{Name: "Requested by", Value: fmt.Sprintf("<@%d>", current.RequesterID), Inline: true},
		},
	}
	if info.ArtworkURL != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: info.ArtworkURL}
	}

	return r.Respond(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
		},
	})
}

// HandleShuffle handles the /shuffle command.
func (h *CommandHandlers) HandleShuffle(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ctx := context.Background()

	in, msg := parseInvocation(i)
	if msg != "" {
		return respondError(r, msg)
	}

	player, err := h.player(in)
	if err != nil {
		return respondError(r, errorMessage(err))
	}

	if player.Queue().Len() < 2 {
		return respondError(r, "Not enough tracks to shuffle.")
	}
	if err := player.Queue().Shuffle(ctx); err != nil {
		slog.Warn("failed to persist queue", "guild", in.guildID, "error", err)
	}

	return respondSuccess(r, fmt.Sprintf("Shuffled **%d tracks**.", player.Queue().Len()))
}

// HandleFilter handles the /filter command.
func (h *CommandHandlers) HandleFilter(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ctx := context.Background()

	in, msg := parseInvocation(i)
	if msg != "" {
		return respondError(r, msg)
	}

	var preset string
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "preset" {
			preset = opt.StringValue()
		}
	}

	data, err := domain.ParseFilterPreset(preset)
	if err != nil {
		return respondError(r, "Unknown filter preset")
	}

	player, err := h.player(in)
	if err != nil {
		return respondError(r, errorMessage(err))
	}

	if err := player.SetFilters(ctx, data); err != nil {
		return respondError(r, errorMessage(err))
	}

	if domain.FilterPreset(preset) == domain.FilterPresetOff {
		return respondSuccess(r, "Cleared all filters.")
	}
	return respondSuccess(r, fmt.Sprintf("Applied the **%s** filter.", preset))
}

func filterChoices() []*discordgo.ApplicationCommandOptionChoice {
	presets := domain.FilterPresets()
	choices := make([]*discordgo.ApplicationCommandOptionChoice, len(presets))
	for idx, preset := range presets {
		choices[idx] = &discordgo.ApplicationCommandOptionChoice{
			Name:  string(preset),
			Value: string(preset),
		}
	}
	return choices
}

// HandleQueue handles the /queue command.
func (h *CommandHandlers) HandleQueue(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	options := i.ApplicationCommandData().Options
	if len(options) == 0 {
		return respondError(r, "Invalid subcommand")
	}

	subCmd := options[0]
	switch subCmd.Name {
	case "list":
		return h.handleQueueList(s, i, r, subCmd.Options)
	case "remove":
		return h.handleQueueRemove(s, i, r, subCmd.Options)
	case "clear":
		return h.handleQueueClear(s, i, r)
	default:
		return respondError(r, "Unknown subcommand")
	}
}

func (h *CommandHandlers) handleQueueList(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
	options []*discordgo.ApplicationCommandInteractionDataOption,
) error {
	in, msg := parseInvocation(i)
	if msg != "" {
		return respondError(r, msg)
	}

	page := 1
	for _, opt := range options {
		if opt.Name == "page" {
			page = int(opt.IntValue())
		}
	}

	player, err := h.player(in)
	if err != nil {
		return respondError(r, errorMessage(err))
	}

	queue := player.Queue()
	current := queue.Current()
	upcoming := queue.Upcoming()

	// Build title with loop mode indicator
	title := "Queue"
	switch queue.LoopMode() {
	case domain.LoopModeTrack:
		title = "Queue \U0001F502" // 🔂
	case domain.LoopModeQueue:
		title = "Queue \U0001F501" // 🔁
	}

	embed := &discordgo.MessageEmbed{
		Title: title,
	}

	totalPages := max(1, (len(upcoming)+queuePageSize-1)/queuePageSize)
	page = min(max(page, 1), totalPages)
	embed.Footer = &discordgo.MessageEmbedFooter{
		Text: fmt.Sprintf("Page %d/%d", page, totalPages),
	}

	if current == nil && len(upcoming) == 0 {
		embed.Description = "Queue is empty."
		return r.Respond(&discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Embeds: []*discordgo.MessageEmbed{embed},
			},
		})
	}

	var sb strings.Builder
	if current != nil {
		sb.WriteString("### Now Playing\n")
		sb.WriteString(trackLink(current.Info()))
		sb.WriteString("\n")
	}

	start := (page - 1) * queuePageSize
	end := min(start+queuePageSize, len(upcoming))
	if start < end {
		sb.WriteString("### Up Next\n")
		for idx, entry := range upcoming[start:end] {
			writeTrackLine(&sb, start+idx+1, entry.Info())
		}
	}

	embed.Description = sb.String()
	embed.Footer.Text = fmt.Sprintf("Page %d/%d · %d upcoming", page, totalPages, len(upcoming))

	return r.Respond(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
		},
	})
}

func (h *CommandHandlers) handleQueueRemove(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
	options []*discordgo.ApplicationCommandInteractionDataOption,
) error {
	ctx := context.Background()

	in, msg := parseInvocation(i)
	if msg != "" {
		return respondError(r, msg)
	}

	var index int
	for _, opt := range options {
		if opt.Name == "position" {
			// Convert from 1-indexed (user input) to 0-indexed (internal)
			index = int(opt.IntValue()) - 1
		}
	}

	player, err := h.player(in)
	if err != nil {
		return respondError(r, errorMessage(err))
	}

	removed, err := player.Queue().Remove(ctx, index, 1)
	if len(removed) == 0 {
		if err == nil {
			err = application.ErrInvalidPosition
		}
		return respondError(r, errorMessage(err))
	}
	if err != nil {
		slog.Warn("failed to persist queue", "guild", in.guildID, "error", err)
	}

	return respondQueueRemoved(r, removed[0].Info())
}

func (h *CommandHandlers) handleQueueClear(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ctx := context.Background()

	in, msg := parseInvocation(i)
	if msg != "" {
		return respondError(r, msg)
	}

	player, err := h.player(in)
	if err != nil {
		return respondError(r, errorMessage(err))
	}

	cleared, err := player.Queue().Clear(ctx)
	if err != nil {
		slog.Warn("failed to persist queue", "guild", in.guildID, "error", err)
	}
	if cleared == 0 {
		return respondError(r, errorMessage(application.ErrQueueEmpty))
	}

	return respondSuccess(r, fmt.Sprintf("Cleared **%d tracks** from the queue.", cleared))
}

// HandleLoop handles the /loop command.
func (h *CommandHandlers) HandleLoop(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ctx := context.Background()

	in, msg := parseInvocation(i)
	if msg != "" {
		return respondError(r, msg)
	}

	player, err := h.player(in)
	if err != nil {
		return respondError(r, errorMessage(err))
	}

	// Cycle through modes unless one was given
	mode := (player.Queue().LoopMode() + 1) % 3
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "mode" {
			mode, err = domain.ParseLoopMode(opt.StringValue())
			if err != nil {
				return respondError(r, err.Error())
			}
		}
	}

	if err := player.SetRepeatMode(ctx, mode); err != nil {
		return respondError(r, errorMessage(err))
	}

	var description string
	switch mode {
	case domain.LoopModeTrack:
		description = "Now looping the current track."
	case domain.LoopModeQueue:
		description = "Now looping the queue."
	default:
		description = "Loop disabled."
	}

	return respondSuccess(r, description)
}

// errorMessage turns an error into text for the user.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, application.ErrPlayerNotFound), errors.Is(err, application.ErrPlayerDestroyed):
		return "Not connected to a voice channel."
	case errors.Is(err, application.ErrVoiceTimeout):
		return "Could not connect to the voice channel in time."
	case errors.Is(err, domain.ErrLinksNotAllowed):
		return "Links are not allowed."
	case errors.Is(err, domain.ErrLinkBlacklisted), errors.Is(err, domain.ErrLinkNotWhitelisted):
		return "This link is not allowed."
	case errors.Is(err, domain.ErrSourceNotEnabled):
		return "This source is not available."
	}
	return err.Error()
}

// Response helpers.

func respondSuccess(r bot.Responder, description string) error {
	return r.Respond(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{
				{
					Description: description,
					Color:       colorSuccess,
				},
			},
		},
	})
}

func respondError(r bot.Responder, message string) error {
	return r.Respond(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{
				{
					Title:       "Error",
					Description: message,
					Color:       colorError,
				},
			},
		},
	})
}

func respondQueueRemoved(r bot.Responder, track domain.TrackInfo) error {
	return respondSuccess(r, fmt.Sprintf("Removed %s.", trackLink(track)))
}

// trackLink renders the title as a link when the track has a URI.
func trackLink(track domain.TrackInfo) string {
	if track.URI != "" {
		return fmt.Sprintf("[%s](%s)", track.Title, track.URI)
	}
	return fmt.Sprintf("**%s**", track.Title)
}

// writeTrackLine writes a single track line to the string builder.
// Escapes period to prevent Discord markdown list formatting.
func writeTrackLine(sb *strings.Builder, displayIndex int, track domain.TrackInfo) {
	fmt.Fprintf(
		sb,
		"%d\\. %s - %s `%s`\n",
		displayIndex,
		trackLink(track),
		track.Author,
		trackDuration(track),
	)
}

func trackDuration(track domain.TrackInfo) string {
	if track.IsStream {
		return "LIVE"
	}
	return domain.FormatDuration(track.Duration)
}
