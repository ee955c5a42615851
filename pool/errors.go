package pool

import "errors"

var (
	ErrUnknownPool   = errors.New("unknown pool")
	ErrPoolExists    = errors.New("pool already exists")
	ErrInvalidBounds = errors.New("invalid pool bounds")
	ErrInvalidSink   = errors.New("invalid pool sink")
	ErrUnknownVoice  = errors.New("unknown voice")
	ErrVoiceNotBound = errors.New("voice not bound to a request")
)
