package ingest

import (
	"context"
	"errors"
)

// ErrDecodeFailed is returned when a frame holds no readable symbol
var ErrDecodeFailed = errors.New("no qr code detected")

// Frame is raw pixel data handed to a decoder
type Frame struct {
	Data   []byte
	Width  int
	Height int
}

// Decoded is the output of a successful decode
type Decoded struct {
	Data             string
	ProcessingTimeMs int64
	Confidence       float64
}

// Decoder turns pixels into a code. Implementations return
// ErrDecodeFailed when nothing is found.
type Decoder interface {
	Decode(ctx context.Context, frame Frame) (Decoded, error)
}

// DecoderFunc adapts a function to the Decoder interface
type DecoderFunc func(ctx context.Context, frame Frame) (Decoded, error)

func (f DecoderFunc) Decode(ctx context.Context, frame Frame) (Decoded, error) {
	return f(ctx, frame)
}

// NoDecoder is installed when no image decoder is wired in; every frame
// is reported as undecodable.
type NoDecoder struct{}

func (NoDecoder) Decode(ctx context.Context, frame Frame) (Decoded, error) {
	return Decoded{}, ErrDecodeFailed
}
