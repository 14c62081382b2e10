package bgm

import "errors"

var (
	// ErrInvalidArgument is returned for a trigger whose pattern does not
	// compile as a regex.
	ErrInvalidArgument = errors.New("bgm: invalid argument")
	// ErrAudio is the error kind for a Player failure (invalid media,
	// missing file). The engine itself does not return it: it logs the
	// Player's error and moves to the Error state.
	ErrAudio = errors.New("bgm: audio error")
)
