package server

import (
	"io"
	"net/http"

	"github.com/recipebox/recipebox/errors"
)

// imageField is the multipart field carrying the photo.
const imageField = "image"

// multipartOverhead is allowed on top of the image limit for boundaries and headers.
const multipartOverhead = 64 << 10

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// readImage pulls the uploaded photo out of a multipart request. Errors carry
// user-facing messages and are marked ErrInvalidRequest.
func readImage(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, errors.NewInvalidRequestError("Image is too large (limit %d bytes)", limit)
		}
		return nil, errors.NewInvalidRequestError("Invalid multipart upload")
	}
	defer r.MultipartForm.RemoveAll()

	file, _, err := r.FormFile(imageField)
	if err != nil {
		return nil, errors.NewInvalidRequestError("No image file provided")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return nil, errors.NewInvalidRequestError("Failed to read uploaded image")
	}
	if int64(len(data)) > limit {
		return nil, errors.NewInvalidRequestError("Image is too large (limit %d bytes)", limit)
	}
	if len(data) == 0 {
		return nil, errors.NewInvalidRequestError("No image file provided")
	}
	if ct := http.DetectContentType(data); !allowedImageTypes[ct] {
		return nil, errors.NewInvalidRequestError("File is not a supported image (%s)", ct)
	}
	return data, nil
}
