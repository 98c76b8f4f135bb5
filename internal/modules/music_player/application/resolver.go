package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sglre6355/sgrlink/internal/modules/music_player/application/ports"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/domain"
)

// TrackResolver turns pending queue entries into playable tracks.
type TrackResolver struct {
	defaultPlatform  domain.SearchPlatform
	preferDescriptor bool
}

// NewTrackResolver creates a TrackResolver. preferDescriptor makes the
// descriptor's title, author and artwork win over what the node returns.
func NewTrackResolver(defaultPlatform domain.SearchPlatform, preferDescriptor bool) *TrackResolver {
	if defaultPlatform == "" {
		defaultPlatform = domain.SearchYouTube
	}
	return &TrackResolver{
		defaultPlatform:  defaultPlatform,
		preferDescriptor: preferDescriptor,
	}
}

// Resolve resolves entry in place using node. Resolved entries are left alone.
func (r *TrackResolver) Resolve(ctx context.Context, node ports.Node, entry *domain.QueueEntry) error {
	if entry.IsResolved() {
		return nil
	}
	if node == nil {
		return ErrNoNode
	}

	descriptor, ok := entry.Unresolved()
	if !ok || !descriptor.IsValid() {
		return domain.ErrInvalidUnresolvedTrack
	}
	if entry.RequesterID == 0 {
		return ErrMissingRequester
	}

	track, err := r.ClosestTrack(ctx, node, descriptor)
	if err != nil {
		return err
	}

	entry.Resolve(domain.ApplyUnresolvedData(track, descriptor.Info, r.preferDescriptor))
	return nil
}

// ClosestTrack finds the track on node that best matches descriptor: the
// encoded token is decoded if present, then the URI is loaded directly, and
// finally "<title> by <author>" is searched and the results are ranked.
func (r *TrackResolver) ClosestTrack(
	ctx context.Context,
	node ports.Node,
	descriptor domain.UnresolvedTrack,
) (domain.Track, error) {
	var decodeErr error
	if descriptor.Encoded != "" {
		track, err := node.DecodeTrack(ctx, descriptor.Encoded)
		if err == nil {
			return track, nil
		}
		decodeErr = fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}

	if descriptor.Info.URI != "" {
		list, err := node.LoadTracks(ctx, descriptor.Info.URI)
		if err != nil {
			return domain.Track{}, fmt.Errorf("%w: %w", ErrLoadFailed, err)
		}
		if !list.IsEmpty() {
			return list.Tracks[0], nil
		}
	}

	query := searchTerm(descriptor.Info)
	if query == "" {
		if decodeErr != nil {
			return domain.Track{}, decodeErr
		}
		return domain.Track{}, domain.ErrNoClosestTrack
	}

	platform := domain.SearchPlatformFor(descriptor.Info.SourceName, r.defaultPlatform)
	list, err := node.LoadTracks(ctx, string(platform)+":"+query)
	if err != nil {
		return domain.Track{}, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	if list == nil {
		return domain.Track{}, domain.ErrNoClosestTrack
	}

	track, err := domain.ClosestMatch(descriptor.Info, list.Tracks)
	if err != nil && decodeErr != nil {
		return domain.Track{}, errors.Join(decodeErr, err)
	}
	return track, err
}

func searchTerm(info domain.TrackInfo) string {
	parts := make([]string, 0, 2)
	if info.Title != "" {
		parts = append(parts, info.Title)
	}
	if info.Author != "" {
		parts = append(parts, info.Author)
	}
	return strings.Join(parts, " by ")
}
