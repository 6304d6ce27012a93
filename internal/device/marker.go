// File: internal/device/marker.go
package device

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"github.com/xkilldash9x/droidpilot/api/schemas"
)

var markColor = color.RGBA{R: 255, A: 255}

const (
	markStroke   = 4
	markCrossArm = 30
)

// MarkScreenshot returns a PNG copy of screenshot with box outlined and point
// crossed. Either may be nil.
func MarkScreenshot(screenshot []byte, box *schemas.Box, point *schemas.Point) ([]byte, error) {
	src, err := png.Decode(bytes.NewReader(screenshot))
	if err != nil {
		return nil, fmt.Errorf("failed to decode screenshot: %w", err)
	}
	canvas := image.NewRGBA(src.Bounds())
	draw.Draw(canvas, canvas.Bounds(), src, src.Bounds().Min, draw.Src)

	if box != nil {
		x1, y1, x2, y2 := box[0][0], box[0][1], box[1][0], box[1][1]
		fill(canvas, image.Rect(x1, y1, x2, y1+markStroke))
		fill(canvas, image.Rect(x1, y2-markStroke, x2, y2))
		fill(canvas, image.Rect(x1, y1, x1+markStroke, y2))
		fill(canvas, image.Rect(x2-markStroke, y1, x2, y2))
	}
	if point != nil {
		x, y := point.X(), point.Y()
		half := markStroke / 2
		fill(canvas, image.Rect(x-markCrossArm, y-half, x+markCrossArm, y+half))
		fill(canvas, image.Rect(x-half, y-markCrossArm, x+half, y+markCrossArm))
	}

	var out bytes.Buffer
	if err := png.Encode(&out, canvas); err != nil {
		return nil, fmt.Errorf("failed to encode marked screenshot: %w", err)
	}
	return out.Bytes(), nil
}

// fill paints r clipped to the canvas.
func fill(canvas *image.RGBA, r image.Rectangle) {
	r = r.Intersect(canvas.Bounds())
	if r.Empty() {
		return
	}
	draw.Draw(canvas, r, &image.Uniform{C: markColor}, image.Point{}, draw.Src)
}
