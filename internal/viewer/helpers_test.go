package viewer

import (
	"bytes"
	"image"
	"image/png"
)

func decodePNG(data []byte) (image.Image, error) {
	return png.Decode(bytes.NewReader(data))
}
