package discord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/application"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/domain"
)

const maxChoices = 25

// AutocompleteResponder sends autocomplete results. *discordgo.Session
// satisfies it.
type AutocompleteResponder interface {
	InteractionRespond(
		interaction *discordgo.Interaction,
		resp *discordgo.InteractionResponse,
		options ...discordgo.RequestOption,
	) error
}

// AutocompleteHandler handles autocomplete requests.
type AutocompleteHandler struct {
	manager *application.Manager
}

// NewAutocompleteHandler creates a new AutocompleteHandler.
func NewAutocompleteHandler(manager *application.Manager) *AutocompleteHandler {
	return &AutocompleteHandler{manager: manager}
}

// HandlePlay handles autocomplete for play command.
func (h *AutocompleteHandler) HandlePlay(s AutocompleteResponder, i *discordgo.InteractionCreate) {
	ctx := context.Background()

	// Get the current query value
	var query string
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "query" && opt.Focused {
			query = opt.StringValue()
			break
		}
	}

	// Don't search for very short queries
	if len([]rune(query)) < 2 {
		respondChoices(s, i, nil)
		return
	}

	// Search on the guild's node when a player exists
	var (
		list *domain.TrackList
		err  error
	)
	guildID, parseErr := snowflake.Parse(i.GuildID)
	if player := h.manager.Player(guildID); parseErr == nil && player != nil {
		list, err = player.Search(ctx, query)
	} else {
		list, err = h.manager.Search(ctx, query)
	}
	if err != nil || list.IsEmpty() {
		respondChoices(s, i, nil)
		return
	}

	isPlaylist := list.Type == domain.TrackListTypePlaylist
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, maxChoices)

	if isPlaylist {
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{
			Name: truncate(
				fmt.Sprintf("📋 %s (%d tracks)", list.Name, len(list.Tracks)),
				100,
			),
			Value: query,
		})
	}
	for idx, track := range list.Tracks {
		if len(choices) == maxChoices {
			break
		}
		// Choice values are limited to 100 characters
		if track.Info.URI == "" || len(track.Info.URI) > 100 {
			continue
		}

		var optionName string
		if isPlaylist {
			optionName = fmt.Sprintf("🎵 %d. %s - %s", idx+1, track.Info.Title, track.Info.Author)
		} else {
			optionName = fmt.Sprintf("🎵 %s - %s", track.Info.Title, track.Info.Author)
		}
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{
			Name:  truncate(optionName, 100),
			Value: track.Info.URI,
		})
	}

	respondChoices(s, i, choices)
}

// HandleQueueRemove handles autocomplete for queue remove command.
func (h *AutocompleteHandler) HandleQueueRemove(
	s AutocompleteResponder,
	i *discordgo.InteractionCreate,
) {
	guildID, err := snowflake.Parse(i.GuildID)
	if err != nil {
		slog.Warn("failed to parse guild ID in autocomplete", "error", err, "guildID", i.GuildID)
		return
	}

	player := h.manager.Player(guildID)
	if player == nil {
		respondChoices(s, i, nil)
		return
	}

	upcoming := player.Queue().Upcoming()
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, min(len(upcoming), maxChoices))
	for idx, entry := range upcoming {
		if idx == maxChoices {
			break
		}
		// Use 1-indexed positions to match queue list display
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{
			Name:  fmt.Sprintf("%d. %s", idx+1, truncate(entry.Info().Title, 90)),
			Value: idx + 1,
		})
	}

	respondChoices(s, i, choices)
}

func respondChoices(
	s AutocompleteResponder,
	i *discordgo.InteractionCreate,
	choices []*discordgo.ApplicationCommandOptionChoice,
) {
	if choices == nil {
		choices = []*discordgo.ApplicationCommandOptionChoice{}
	}
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{
			Choices: choices,
		},
	})
	if err != nil {
		slog.Debug("failed to respond to autocomplete", "error", err)
	}
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}
