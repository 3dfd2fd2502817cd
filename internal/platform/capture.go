package platform

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/kbinani/screenshot"

	"github.com/ovidalb/webdesk/pkg/models"
)

const captureJPEGQuality = 75

// captureJPEG grabs the pixels bounded by (x, y)-(x+w, y+h) from the
// current display connection and encodes them as JPEG in memory. The
// image dimensions always equal the requested rectangle.
func captureJPEG(r models.Rect) ([]byte, error) {
	img, err := screenshot.CaptureRect(image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height))
	if err != nil {
		return nil, fmt.Errorf("grabbing %dx%d at (%d,%d): %v: %w",
			r.Width, r.Height, r.X, r.Y, err, ErrToolExecution)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: captureJPEGQuality}); err != nil {
		return nil, fmt.Errorf("encoding capture: %v: %w", err, ErrToolExecution)
	}
	return buf.Bytes(), nil
}
