package proctor

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"io"
	"io/ioutil"
	"net/http"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"
)

const DefaultPreviewSize = 200

// CoverRect is where a srcW*srcH frame lands inside a size*size square so that it fills it.
// The longer side overflows and gets centered.
func CoverRect(srcW, srcH, size int) image.Rectangle {
	if srcW <= 0 || srcH <= 0 {
		return image.Rect(0, 0, size, size)
	}
	aspect := float64(srcW) / float64(srcH)
	var drawW, drawH, drawX, drawY int
	if aspect > 1 {
		drawH = size
		drawW = int(float64(size)*aspect + 0.5)
		drawX = -(drawW - size) / 2
	} else {
		drawW = size
		drawH = int(float64(size)/aspect + 0.5)
		drawY = -(drawH - size) / 2
	}
	return image.Rect(drawX, drawY, drawX+drawW, drawY+drawH)
}

type circleMask struct {
	center image.Point
	radius int
}

func (c circleMask) ColorModel() color.Model { return color.AlphaModel }

func (c circleMask) Bounds() image.Rectangle {
	return image.Rect(c.center.X-c.radius, c.center.Y-c.radius, c.center.X+c.radius, c.center.Y+c.radius)
}

func (c circleMask) At(x, y int) color.Color {
	dx := float64(x-c.center.X) + 0.5
	dy := float64(y-c.center.Y) + 0.5
	r := float64(c.radius)
	if dx*dx+dy*dy < r*r {
		return color.Alpha{A: 255}
	}
	return color.Alpha{}
}

// RenderCircularPreview scales frame to cover a size*size square and clips it to a circle.
// Pixels outside the circle stay transparent.
func RenderCircularPreview(frame image.Image, size int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	b := frame.Bounds()
	dr := CoverRect(b.Dx(), b.Dy(), size)
	mask := circleMask{center: image.Pt(size/2, size/2), radius: size / 2}
	draw.ApproxBiLinear.Scale(dst, dr, frame, b, draw.Over, &draw.Options{DstMask: mask})
	return dst
}

// DataURL encodes data as a base64 data URL.
func DataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// EncodePNG encodes img as a PNG data URL.
func EncodePNG(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", errors.Wrap(err, "encoding frame")
	}
	return DataURL("image/png", buf.Bytes()), nil
}

// LoadReference reads the enrollment photo once and returns it as a data URL.
func LoadReference(r io.Reader) (string, error) {
	data, err := ioutil.ReadAll(r)
	if err != nil {
		return "", errors.Wrap(err, "reading reference image")
	}
	if len(data) == 0 {
		return "", ErrNoReference
	}
	return DataURL(http.DetectContentType(data), data), nil
}

func LoadReferenceFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(err, "opening reference image")
	}
	defer f.Close()
	return LoadReference(f)
}
