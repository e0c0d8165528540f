package detector

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"

	"github.com/kozaktomas/roll-call/internal/constants"
)

// Preprocess decodes an image and downscales it so its width does not exceed
// the processing maximum, re-encoding as JPEG. Smaller images pass through
// re-encoded at full size. An undecodable payload is an error; the caller
// treats it as an unreadable image, not a missing face.
func Preprocess(imageData []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := src.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid image dimensions %dx%d", width, height)
	}

	if width > constants.MaxImageWidth {
		scale := float64(constants.MaxImageWidth) / float64(width)
		newWidth := constants.MaxImageWidth
		newHeight := int(float64(height) * scale)
		if newHeight < 1 {
			newHeight = 1
		}

		dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
		src = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}
