package gstcam

import "image"

// RGBToImage converts packed 24-bit RGB pixels, as produced by the pipeline caps, to an opaque RGBA image.
func RGBToImage(data []byte, w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	n := w * h
	if len(data) < n*3 {
		n = len(data) / 3
	}
	for i := 0; i < n; i++ {
		j := i * 4
		k := i * 3
		img.Pix[j] = data[k]
		img.Pix[j+1] = data[k+1]
		img.Pix[j+2] = data[k+2]
		img.Pix[j+3] = 0xff
	}
	return img
}
