package application

import "errors"

// Errors returned by the music player application layer.
var (
	// ErrInvalidOptions is returned when manager or player options are invalid.
	ErrInvalidOptions = errors.New("invalid options")

	// ErrPlayerDestroyed is returned when an operation targets a destroyed player.
	ErrPlayerDestroyed = errors.New("player is destroyed")

	// ErrPlayerNotFound is returned when no player exists for a guild.
	ErrPlayerNotFound = errors.New("no player for this guild")

	// ErrNoNode is returned when a player has no usable node.
	ErrNoNode = errors.New("no node available for the player")

	// ErrNoVoiceChannel is returned when connecting without a voice channel.
	ErrNoVoiceChannel = errors.New("no voice channel set")

	// ErrUserNotInVoice is returned when the user is not in a voice channel.
	ErrUserNotInVoice = errors.New("you must be in a voice channel")

	// ErrNotPlaying is returned when no track is currently playing.
	ErrNotPlaying = errors.New("nothing is currently playing")

	// ErrAlreadyPaused is returned when trying to pause while already paused.
	ErrAlreadyPaused = errors.New("playback is already paused")

	// ErrNotPaused is returned when trying to resume while not paused.
	ErrNotPaused = errors.New("playback is not paused")

	// ErrNoResults is returned when a search yields no results.
	ErrNoResults = errors.New("no results found")

	// ErrQueueEmpty is returned when the queue has nothing to play.
	ErrQueueEmpty = errors.New("the queue is empty")

	// ErrInvalidPosition is returned when an invalid queue position is specified.
	ErrInvalidPosition = errors.New("invalid queue position")

	// ErrNotSeekable is returned when seeking in a track that does not support it.
	ErrNotSeekable = errors.New("the current track is not seekable")

	// ErrInvalidVolume is returned for volumes outside 0..1000.
	ErrInvalidVolume = errors.New("volume must be between 0 and 1000")

	// ErrMissingRequester is returned when resolving a track nobody requested.
	ErrMissingRequester = errors.New("track has no requester")

	// ErrDecodeFailed is returned when a node could not decode a track token.
	ErrDecodeFailed = errors.New("failed to decode track")

	// ErrLoadFailed is returned when loading tracks fails.
	ErrLoadFailed = errors.New("failed to load track")

	// ErrVoiceTimeout is returned when the voice gateway does not answer in time.
	ErrVoiceTimeout = errors.New("timed out waiting for voice connection")
)
