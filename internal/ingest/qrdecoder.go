package ingest

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"time"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// QRDecoder reads QR symbols with gozxing. Frames may carry raw RGBA or
// 8-bit grayscale pixels of the declared size, or an encoded PNG/JPEG.
type QRDecoder struct {
	hints map[gozxing.DecodeHintType]interface{}
}

func NewQRDecoder() *QRDecoder {
	return &QRDecoder{
		hints: map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_TRY_HARDER: true,
		},
	}
}

func (d *QRDecoder) Decode(ctx context.Context, frame Frame) (Decoded, error) {
	if err := ctx.Err(); err != nil {
		return Decoded{}, err
	}
	start := time.Now()

	img, err := frameImage(frame)
	if err != nil {
		return Decoded{}, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return Decoded{}, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	// A fresh reader per frame; readers keep state between calls
	result, err := qrcode.NewQRCodeReader().Decode(bmp, d.hints)
	if err != nil {
		return Decoded{}, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}

	elapsed := time.Since(start).Milliseconds()
	if elapsed == 0 {
		elapsed = 1
	}
	return Decoded{
		Data:             result.GetText(),
		ProcessingTimeMs: elapsed,
		// Error correction passed, there is no finer score
		Confidence: 1.0,
	}, nil
}

func frameImage(frame Frame) (image.Image, error) {
	w, h := frame.Width, frame.Height
	switch len(frame.Data) {
	case w * h * 4:
		return &image.RGBA{Pix: frame.Data, Stride: w * 4, Rect: image.Rect(0, 0, w, h)}, nil
	case w * h:
		return &image.Gray{Pix: frame.Data, Stride: w, Rect: image.Rect(0, 0, w, h)}, nil
	}
	img, _, err := image.Decode(bytes.NewReader(frame.Data))
	if err != nil {
		return nil, fmt.Errorf("frame is %d bytes for %dx%d and not an encoded image", len(frame.Data), w, h)
	}
	return img, nil
}
