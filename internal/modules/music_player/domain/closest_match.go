package domain

import (
	"errors"
	"strings"
	"time"
)

// ErrNoClosestTrack is returned when a search for an unresolved track yields nothing.
var ErrNoClosestTrack = errors.New("no closest track found")

// DurationTolerance is how far a candidate's duration may be from the descriptor's.
const DurationTolerance = 1500 * time.Millisecond

// Placeholder titles that a descriptor title always replaces.
const (
	unknownTitle           = "Unknown title"
	unspecifiedDescription = "Unspecified description"
)

// ClosestMatch picks the candidate that best matches descriptor, by tier:
//  1. author equals the descriptor author (or "<author> - Topic"), or the
//     title equals the descriptor title; only tried when the author is known
//  2. duration within DurationTolerance
//  3. equal ISRC
//  4. the first candidate
func ClosestMatch(descriptor TrackInfo, candidates []Track) (Track, error) {
	if len(candidates) == 0 {
		return Track{}, ErrNoClosestTrack
	}

	if descriptor.Author != "" {
		topic := descriptor.Author + " - Topic"
		for _, c := range candidates {
			if strings.EqualFold(c.Info.Author, descriptor.Author) ||
				strings.EqualFold(c.Info.Author, topic) ||
				(descriptor.Title != "" && strings.EqualFold(c.Info.Title, descriptor.Title)) {
				return c, nil
			}
		}
	}

	if descriptor.Duration > 0 {
		for _, c := range candidates {
			diff := c.Info.Duration - descriptor.Duration
			if diff >= -DurationTolerance && diff <= DurationTolerance {
				return c, nil
			}
		}
	}

	if descriptor.ISRC != "" {
		for _, c := range candidates {
			if c.Info.ISRC == descriptor.ISRC {
				return c, nil
			}
		}
	}

	return candidates[0], nil
}

// ApplyUnresolvedData merges descriptor metadata into a resolved track.
//
// The descriptor URI always wins. With preferDescriptor, a non-empty
// descriptor title, author and artwork win as well. Otherwise the title is
// only replaced when the node returned a placeholder, while author and
// artwork are replaced whenever they differ from a non-empty descriptor
// value. Fields the resolved track lacks are filled from the descriptor.
func ApplyUnresolvedData(resolved Track, descriptor TrackInfo, preferDescriptor bool) Track {
	info := &resolved.Info

	if descriptor.URI != "" {
		info.URI = descriptor.URI
	}

	if preferDescriptor {
		if descriptor.ArtworkURL != "" {
			info.ArtworkURL = descriptor.ArtworkURL
		}
		if descriptor.Title != "" {
			info.Title = descriptor.Title
		}
		if descriptor.Author != "" {
			info.Author = descriptor.Author
		}
	} else {
		if descriptor.Title != "" && info.Title != descriptor.Title &&
			(info.Title == unknownTitle || info.Title == unspecifiedDescription) {
			info.Title = descriptor.Title
		}
		if descriptor.Author != "" && info.Author != descriptor.Author {
			info.Author = descriptor.Author
		}
		if descriptor.ArtworkURL != "" && info.ArtworkURL != descriptor.ArtworkURL {
			info.ArtworkURL = descriptor.ArtworkURL
		}
	}

	if info.Identifier == "" {
		info.Identifier = descriptor.Identifier
	}
	if info.Title == "" {
		info.Title = descriptor.Title
	}
	if info.Author == "" {
		info.Author = descriptor.Author
	}
	if info.Duration == 0 {
		info.Duration = descriptor.Duration
	}
	if info.URI == "" {
		info.URI = descriptor.URI
	}
	if info.SourceName == "" {
		info.SourceName = descriptor.SourceName
	}
	if info.ISRC == "" {
		info.ISRC = descriptor.ISRC
	}
	if info.ArtworkURL == "" {
		info.ArtworkURL = descriptor.ArtworkURL
	}

	return resolved
}
