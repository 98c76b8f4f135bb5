package bot

import (
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Responder provides an abstraction for responding to Discord interactions.
// This interface enables testing handlers without a live Discord connection.
type Responder interface {
	// Respond sends a response to an interaction.
	Respond(response *discordgo.InteractionResponse) error
}

// interactionAPI is the part of *discordgo.Session a DiscordResponder uses.
type interactionAPI interface {
	InteractionRespond(
		interaction *discordgo.Interaction,
		resp *discordgo.InteractionResponse,
		options ...discordgo.RequestOption,
	) error
	InteractionResponseEdit(
		interaction *discordgo.Interaction,
		newresp *discordgo.WebhookEdit,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)
}

// DiscordResponder implements Responder using a live Discord session.
//
// Discord drops interactions that are not acknowledged within three seconds.
// Once DeferAfter has started a timer, a handler that has not responded by
// then is acknowledged with a deferred response, and its eventual Respond
// edits that response instead.
type DiscordResponder struct {
	api         interactionAPI
	interaction *discordgo.Interaction

	mu        sync.Mutex
	timer     *time.Timer
	deferred  bool
	responded bool
}

// NewDiscordResponder creates a new DiscordResponder.
func NewDiscordResponder(s *discordgo.Session, i *discordgo.Interaction) *DiscordResponder {
	return newDiscordResponder(s, i)
}

func newDiscordResponder(api interactionAPI, i *discordgo.Interaction) *DiscordResponder {
	return &DiscordResponder{
		api:         api,
		interaction: i,
	}
}

// DeferAfter acknowledges the interaction after d unless Respond was called
// first. A non-positive d disables deferring.
func (r *DiscordResponder) DeferAfter(d time.Duration) {
	if d <= 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.responded || r.timer != nil {
		return
	}
	r.timer = time.AfterFunc(d, r.acknowledge)
}

func (r *DiscordResponder) acknowledge() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.responded || r.deferred {
		return
	}

	err := r.api.InteractionRespond(r.interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		slog.Warn("failed to defer interaction response", "interaction", r.interaction.ID, "error", err)
		return
	}
	r.deferred = true
}

// Respond sends a response to the interaction via Discord API.
func (r *DiscordResponder) Respond(response *discordgo.InteractionResponse) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.timer != nil {
		r.timer.Stop()
	}
	r.responded = true

	if !r.deferred {
		return r.api.InteractionRespond(r.interaction, response)
	}

	edit := &discordgo.WebhookEdit{}
	if data := response.Data; data != nil {
		edit.Content = &data.Content
		edit.Embeds = &data.Embeds
		if data.Components != nil {
			edit.Components = &data.Components
		}
		edit.AllowedMentions = data.AllowedMentions
	}
	_, err := r.api.InteractionResponseEdit(r.interaction, edit)
	return err
}

// Deferred reports whether the interaction was acknowledged with a deferred response.
func (r *DiscordResponder) Deferred() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deferred
}

// MockResponder is a test double for Responder.
type MockResponder struct {
	LastResponse *discordgo.InteractionResponse
	Err          error
}

// Respond records the response for testing.
func (m *MockResponder) Respond(response *discordgo.InteractionResponse) error {
	m.LastResponse = response
	return m.Err
}
