package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
)

// MaskResult contains a binary mask encoded as base64 PNG.
//
// White pixels (255) are foreground and black pixels (0) are background.
type MaskResult struct {
	// Width of the mask in pixels.
	Width int `json:"width"`

	// Height of the mask in pixels.
	Height int `json:"height"`

	// Foreground is the number of white pixels.
	Foreground int `json:"foreground"`

	// ImageBase64 is the mask encoded as base64 PNG.
	ImageBase64 string `json:"image_base64"`

	// MimeType is always "image/png".
	MimeType string `json:"mime_type"`
}

// EncodeMask renders a mask as a base64 PNG for transport in JSON responses.
func EncodeMask(m *image.Gray) (*MaskResult, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, m); err != nil {
		return nil, fmt.Errorf("failed to encode mask image: %w", err)
	}

	return &MaskResult{
		Width:       m.Bounds().Dx(),
		Height:      m.Bounds().Dy(),
		Foreground:  Count(m),
		ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:    "image/png",
	}, nil
}
