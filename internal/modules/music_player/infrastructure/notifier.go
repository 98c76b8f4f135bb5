package infrastructure

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/application/ports"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/domain"
)

var _ ports.NotificationSender = (*Notifier)(nil)

const (
	colorRed     = 0xE74C3C
	colorNeutral = 0x5865F2

	artworkProbeTimeout = 5 * time.Second
	// maxArtworkCacheSize bounds the resolved artwork cache. It is reset when full.
	maxArtworkCacheSize = 512
)

// Notifier posts player notifications to Discord text channels.
type Notifier struct {
	session *discordgo.Session
	artwork *artworkResolver
}

// NewNotifier creates a new Notifier.
func NewNotifier(session *discordgo.Session) *Notifier {
	client := &http.Client{Timeout: artworkProbeTimeout}
	return &Notifier{
		session: session,
		artwork: newArtworkResolver(func(ctx context.Context, url string) bool {
			return headOK(ctx, client, url)
		}),
	}
}

// SendNowPlaying posts a "Now Playing" embed and returns its message ID.
func (n *Notifier) SendNowPlaying(channelID snowflake.ID, info *ports.NowPlayingInfo) (snowflake.ID, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*artworkProbeTimeout)
	defer cancel()

	source := domain.ParseTrackSource(info.SourceName)
	embed := nowPlayingEmbed(info, n.artwork.Resolve(ctx, source, info.Identifier, info.ArtworkURL))

	msg, err := n.session.ChannelMessageSendEmbed(channelID.String(), embed)
	if err != nil {
		return 0, err
	}
	return snowflake.Parse(msg.ID)
}

// SendQueueEnd tells the channel that nothing is left to play.
func (n *Notifier) SendQueueEnd(channelID snowflake.ID) error {
	_, err := n.session.ChannelMessageSendEmbed(channelID.String(), &discordgo.MessageEmbed{
		Description: "The queue has ended. Add more tracks with `/play`.",
		Color:       colorNeutral,
	})
	return err
}

// SendError posts an error embed.
func (n *Notifier) SendError(channelID snowflake.ID, message string) error {
	_, err := n.session.ChannelMessageSendEmbed(channelID.String(), &discordgo.MessageEmbed{
		Description: message,
		Color:       colorRed,
	})
	return err
}

// DeleteMessage deletes a message from the channel.
func (n *Notifier) DeleteMessage(channelID snowflake.ID, messageID snowflake.ID) error {
	return n.session.ChannelMessageDelete(channelID.String(), messageID.String())
}

func nowPlayingEmbed(info *ports.NowPlayingInfo, artworkURL string) *discordgo.MessageEmbed {
	source := domain.ParseTrackSource(info.SourceName)

	duration := info.Duration
	if info.IsStream {
		duration = "🔴 LIVE"
	}

	embed := &discordgo.MessageEmbed{
		Author: &discordgo.MessageEmbedAuthor{
			Name:    "Now Playing",
			IconURL: source.IconURL(),
		},
		Title: info.Title,
		URL:   info.URI,
		Color: source.Color(),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Artist", Value: fallback(info.Artist, "Unknown"), Inline: true},
			{Name: "Duration", Value: fallback(duration, "Unknown"), Inline: true},
		},
	}
	if !info.EnqueuedAt.IsZero() {
		embed.Timestamp = info.EnqueuedAt.UTC().Format(time.RFC3339)
	}
	if info.RequesterName != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{
			Text:    fmt.Sprintf("Requested by %s", info.RequesterName),
			IconURL: info.RequesterAvatarURL,
		}
	}
	if artworkURL != "" {
		embed.Image = &discordgo.MessageEmbedImage{URL: artworkURL}
	}
	return embed
}

func fallback(value, def string) string {
	if value == "" {
		return def
	}
	return value
}

// artworkResolver upgrades track artwork to a larger image when the source
// offers one. Results are cached per source and identifier.
type artworkResolver struct {
	probe func(ctx context.Context, url string) bool

	mu    sync.Mutex
	cache map[string]string
}

func newArtworkResolver(probe func(ctx context.Context, url string) bool) *artworkResolver {
	return &artworkResolver{
		probe: probe,
		cache: make(map[string]string),
	}
}

// Resolve returns the best reachable artwork URL, or artworkURL.
func (r *artworkResolver) Resolve(ctx context.Context, source domain.TrackSource, identifier, artworkURL string) string {
	key := string(source) + ":" + identifier
	if identifier == "" {
		key = string(source) + ":" + artworkURL
	}

	r.mu.Lock()
	cached, ok := r.cache[key]
	r.mu.Unlock()
	if ok {
		return cached
	}

	resolved := artworkURL
	for _, candidate := range artworkCandidates(source, identifier, artworkURL) {
		if r.probe(ctx, candidate) {
			resolved = candidate
			break
		}
	}
	if ctx.Err() != nil {
		// don't cache the fallback of an aborted probe
		return resolved
	}

	r.mu.Lock()
	if len(r.cache) >= maxArtworkCacheSize {
		clear(r.cache)
	}
	r.cache[key] = resolved
	r.mu.Unlock()
	return resolved
}

// artworkCandidates lists larger images for a track, best first.
func artworkCandidates(source domain.TrackSource, identifier, artworkURL string) []string {
	switch source {
	case domain.TrackSourceYouTube:
		if identifier == "" {
			return nil
		}
		qualities := []string{"maxresdefault", "sddefault", "hqdefault"}
		candidates := make([]string, 0, len(qualities))
		for _, quality := range qualities {
			candidates = append(candidates, fmt.Sprintf("https://img.youtube.com/vi/%s/%s.jpg", identifier, quality))
		}
		return candidates
	case domain.TrackSourceTwitch:
		return upscaled(artworkURL, "440x248", "1280x720")
	case domain.TrackSourceSoundCloud:
		return upscaled(artworkURL, "-large.", "-t500x500.")
	default:
		return nil
	}
}

func upscaled(artworkURL, small, large string) []string {
	if !strings.Contains(artworkURL, small) {
		return nil
	}
	return []string{strings.Replace(artworkURL, small, large, 1)}
}

// headOK reports whether a HEAD request for url succeeds.
func headOK(ctx context.Context, client *http.Client, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}

	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	return resp.StatusCode == http.StatusOK
}
