package domain

import (
	"fmt"
	"strings"
)

// TrackSource represents the origin platform of a track.
type TrackSource string

const (
	TrackSourceYouTube     TrackSource = "youtube"
	TrackSourceSpotify     TrackSource = "spotify"
	TrackSourceSoundCloud  TrackSource = "soundcloud"
	TrackSourceDeezer      TrackSource = "deezer"
	TrackSourceAppleMusic  TrackSource = "applemusic"
	TrackSourceYandexMusic TrackSource = "yandexmusic"
	TrackSourceBandcamp    TrackSource = "bandcamp"
	TrackSourceTwitch      TrackSource = "twitch"
	TrackSourceHTTP        TrackSource = "http"
	TrackSourceLocal       TrackSource = "local"
	TrackSourceFloweryTTS  TrackSource = "flowery-tts"
	TrackSourceOther       TrackSource = "other"
)

// ParseTrackSource converts a source name string to a TrackSource.
func ParseTrackSource(name string) TrackSource {
	switch source := TrackSource(strings.ToLower(name)); source {
	case TrackSourceYouTube, TrackSourceSpotify, TrackSourceSoundCloud, TrackSourceDeezer,
		TrackSourceAppleMusic, TrackSourceYandexMusic, TrackSourceBandcamp, TrackSourceTwitch,
		TrackSourceHTTP, TrackSourceLocal, TrackSourceFloweryTTS:
		return source
	default:
		return TrackSourceOther
	}
}

var sourceColors = map[TrackSource]int{
	TrackSourceYouTube:     0xFF0000,
	TrackSourceSpotify:     0x1DB954,
	TrackSourceSoundCloud:  0xFF5500,
	TrackSourceDeezer:      0xA238FF,
	TrackSourceAppleMusic:  0xFA243C,
	TrackSourceYandexMusic: 0xFFCC00,
	TrackSourceBandcamp:    0x1DA0C3,
	TrackSourceTwitch:      0x9146FF,
}

// Color returns the brand color of the source, used for embeds.
func (s TrackSource) Color() int {
	if c, ok := sourceColors[s]; ok {
		return c
	}
	return 0x5865F2
}

// IconURL returns the favicon of the source, or "" if it has none.
func (s TrackSource) IconURL() string {
	switch s {
	case TrackSourceYouTube:
		return "https://www.youtube.com/favicon.ico"
	case TrackSourceSpotify:
		return "https://open.spotify.com/favicon.ico"
	case TrackSourceSoundCloud:
		return "https://soundcloud.com/favicon.ico"
	case TrackSourceDeezer:
		return "https://www.deezer.com/favicon.ico"
	case TrackSourceAppleMusic:
		return "https://music.apple.com/favicon.ico"
	case TrackSourceBandcamp:
		return "https://bandcamp.com/favicon.ico"
	case TrackSourceTwitch:
		return "https://www.twitch.tv/favicon.ico"
	default:
		return ""
	}
}

// SearchPlatform is a Lavalink search prefix such as "ytsearch".
type SearchPlatform string

const (
	SearchYouTube      SearchPlatform = "ytsearch"
	SearchYouTubeMusic SearchPlatform = "ytmsearch"
	SearchSoundCloud   SearchPlatform = "scsearch"
	SearchSpotify      SearchPlatform = "spsearch"
	SearchDeezer       SearchPlatform = "dzsearch"
	SearchAppleMusic   SearchPlatform = "amsearch"
	SearchYandexMusic  SearchPlatform = "ymsearch"
	SearchBandcamp     SearchPlatform = "bcsearch"
)

// DefaultSources maps source names, short aliases and raw prefixes to search platforms.
var DefaultSources = map[string]SearchPlatform{
	"youtube":       SearchYouTube,
	"yt":            SearchYouTube,
	"ytsearch":      SearchYouTube,
	"youtube music": SearchYouTubeMusic,
	"youtubemusic":  SearchYouTubeMusic,
	"ytm":           SearchYouTubeMusic,
	"ytmsearch":     SearchYouTubeMusic,
	"soundcloud":    SearchSoundCloud,
	"sc":            SearchSoundCloud,
	"scsearch":      SearchSoundCloud,
	"spotify":       SearchSpotify,
	"sp":            SearchSpotify,
	"spsearch":      SearchSpotify,
	"deezer":        SearchDeezer,
	"dz":            SearchDeezer,
	"dzsearch":      SearchDeezer,
	"apple music":   SearchAppleMusic,
	"applemusic":    SearchAppleMusic,
	"am":            SearchAppleMusic,
	"amsearch":      SearchAppleMusic,
	"yandexmusic":   SearchYandexMusic,
	"yandex":        SearchYandexMusic,
	"ym":            SearchYandexMusic,
	"ymsearch":      SearchYandexMusic,
	"bandcamp":      SearchBandcamp,
	"bc":            SearchBandcamp,
	"bcsearch":      SearchBandcamp,
}

// platformSourceManagers names the node source manager each platform needs.
var platformSourceManagers = map[SearchPlatform]string{
	SearchYouTube:      "youtube",
	SearchYouTubeMusic: "youtube",
	SearchSoundCloud:   "soundcloud",
	SearchSpotify:      "spotify",
	SearchDeezer:       "deezer",
	SearchAppleMusic:   "applemusic",
	SearchYandexMusic:  "yandexmusic",
	SearchBandcamp:     "bandcamp",
}

// ParseSearchPlatform resolves a name or alias listed in DefaultSources.
func ParseSearchPlatform(s string) (SearchPlatform, error) {
	platform, ok := DefaultSources[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("unknown search platform %q", s)
	}
	return platform, nil
}

// SourceManager returns the node source manager required to search on p.
func (p SearchPlatform) SourceManager() string {
	return platformSourceManagers[p]
}

// SearchPlatformFor returns the platform to search when re-resolving a track
// that originally came from sourceName. Sources that cannot be searched by
// text fall back to fallback.
func SearchPlatformFor(sourceName string, fallback SearchPlatform) SearchPlatform {
	switch ParseTrackSource(sourceName) {
	case TrackSourceTwitch, TrackSourceFloweryTTS:
		return fallback
	}
	if platform, ok := DefaultSources[strings.ToLower(sourceName)]; ok {
		return platform
	}
	return fallback
}

// linkSources maps URL host fragments to the source manager that plays them.
var linkSources = []struct {
	host   string
	source TrackSource
}{
	{"youtube.com", TrackSourceYouTube},
	{"youtu.be", TrackSourceYouTube},
	{"soundcloud.com", TrackSourceSoundCloud},
	{"open.spotify.com", TrackSourceSpotify},
	{"deezer.com", TrackSourceDeezer},
	{"deezer.page.link", TrackSourceDeezer},
	{"music.apple.com", TrackSourceAppleMusic},
	{"music.yandex", TrackSourceYandexMusic},
	{"bandcamp.com", TrackSourceBandcamp},
	{"twitch.tv", TrackSourceTwitch},
}

// LinkSource returns the source manager needed to load the given URL.
// Unknown hosts are played through the http source.
func LinkSource(link string) TrackSource {
	lower := strings.ToLower(link)
	for _, ls := range linkSources {
		if strings.Contains(lower, ls.host) {
			return ls.source
		}
	}
	return TrackSourceHTTP
}
