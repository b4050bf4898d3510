package camera

import (
	"errors"
	"fmt"
	"image"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// Decoder reads the text of a code from one frame.
type Decoder interface {
	// Decode returns the decoded text, or an error wrapping ErrNotFound
	// when the frame holds no readable code.
	Decode(img image.Image) (string, error)
}

// ZXingDecoder decodes QR codes with gozxing.
type ZXingDecoder struct {
	reader gozxing.Reader
	hints  map[gozxing.DecodeHintType]interface{}
}

// NewZXingDecoder creates a QR decoder. A decoder must not be shared
// between goroutines.
func NewZXingDecoder() *ZXingDecoder {
	return &ZXingDecoder{
		reader: qrcode.NewQRCodeReader(),
		hints: map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_POSSIBLE_FORMATS: []gozxing.BarcodeFormat{gozxing.BarcodeFormat_QR_CODE},
			gozxing.DecodeHintType_TRY_HARDER:       true,
		},
	}
}

// Decode decodes a QR code from img.
func (d *ZXingDecoder) Decode(img image.Image) (string, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("failed to binarize frame: %w", err)
	}

	result, err := d.reader.Decode(bmp, d.hints)
	if err != nil {
		if IsTransient(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, err.Error())
		}
		return "", fmt.Errorf("failed to decode frame: %w", err)
	}
	return result.GetText(), nil
}

// IsTransient reports whether a gozxing error only means that this frame
// holds no complete code: nothing found, or a partially visible code that
// failed its checksum or format check.
func IsTransient(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var notFound gozxing.NotFoundException
	var checksum gozxing.ChecksumException
	var format gozxing.FormatException
	return errors.As(err, &notFound) || errors.As(err, &checksum) || errors.As(err, &format)
}
