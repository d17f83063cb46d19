package qr

import (
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/makiuchi-d/gozxing"
	zxqr "github.com/makiuchi-d/gozxing/qrcode"
	"github.com/skip2/go-qrcode"
)

// DefaultSize is the side of generated codes in pixels.
const DefaultSize = 200

// maxDecodeSide bounds the image handed to the decoder.
const maxDecodeSide = 1024

// ErrNoCode is returned when an image holds no readable QR symbol.
var ErrNoCode = errors.New("no QR code found")

// Generate renders payload as a PNG with error correction level H and a
// quiet zone. size <= 0 means DefaultSize.
func Generate(payload string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultSize
	}
	png, err := qrcode.Encode(payload, qrcode.Highest, size)
	if err != nil {
		return nil, fmt.Errorf("generate qr code: %w", err)
	}
	return png, nil
}

// Filename is the download name of a campaign's code.
func Filename(campaignID string) string {
	return "ar-campaign-" + campaignID + ".png"
}

// DecodeImage finds a QR symbol in img and returns its text. Large frames
// are scaled down first.
func DecodeImage(img image.Image) (string, error) {
	b := img.Bounds()
	if b.Dx() > maxDecodeSide || b.Dy() > maxDecodeSide {
		img = imaging.Fit(img, maxDecodeSide, maxDecodeSide, imaging.Box)
	}

	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("binarize frame: %w", err)
	}

	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}
	result, err := zxqr.NewQRCodeReader().Decode(bmp, hints)
	if err != nil {
		var nf gozxing.NotFoundException
		var cs gozxing.ChecksumException
		var fe gozxing.FormatException
		if errors.As(err, &nf) || errors.As(err, &cs) || errors.As(err, &fe) {
			return "", ErrNoCode
		}
		return "", fmt.Errorf("decode qr code: %w", err)
	}
	return result.GetText(), nil
}
