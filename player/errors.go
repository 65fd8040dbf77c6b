package player

import "errors"

var (
	ErrNotReady      = errors.New("player: not initialized")
	ErrEmptyPlaylist = errors.New("player: playlist is empty")
	ErrTrackIndex    = errors.New("player: track index out of range")
	ErrNoSession     = errors.New("player: no track is open")
	ErrLoading       = errors.New("player: playlist is loading")
)

// EngineError reports a failed synthesis engine call. The controller is left
// stopped when one is returned from a session transition.
type EngineError struct {
	Op  string
	Err error
}

func (e *EngineError) Error() string {
	return "engine " + e.Op + ": " + e.Err.Error()
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// OutputError reports that the audio output could not be created or resumed.
type OutputError struct {
	Op  string
	Err error
}

func (e *OutputError) Error() string {
	return "output " + e.Op + ": " + e.Err.Error()
}

func (e *OutputError) Unwrap() error {
	return e.Err
}
