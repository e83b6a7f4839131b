package recipes

import (
	"bytes"
	"encoding/base64"
	"net/http"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/recipebox/recipebox/errors"
)

// PrepareCover decodes an image, fits it inside maxDim x maxDim (never
// upscaling) and returns it as a JPEG data URL. maxDim <= 0 keeps the size.
func PrepareCover(img []byte, maxDim int) (string, error) {
	src, err := imaging.Decode(bytes.NewReader(img), imaging.AutoOrientation(true))
	if err != nil {
		return "", errors.Wrap(err, "decode cover image")
	}

	if maxDim > 0 {
		b := src.Bounds()
		if b.Dx() > maxDim || b.Dy() > maxDim {
			src = imaging.Fit(src, maxDim, maxDim, imaging.Lanczos)
		}
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, src, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return "", errors.Wrap(err, "encode cover image")
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DataURL wraps raw image bytes as a data URL without re-encoding.
func DataURL(img []byte) string {
	return "data:" + http.DetectContentType(img) + ";base64," + base64.StdEncoding.EncodeToString(img)
}
