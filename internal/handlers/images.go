package handlers

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/aciencia/apiserver/internal/services"
	"github.com/aciencia/apiserver/types"
)

const (
	maxImageSize   = 8 << 20
	imageFormField = "image"
)

// UploadImage stores the multipart "image" field and points the element's
// imageUrl at it.
func (h *ElementHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, paramElementID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxImageSize+(1<<20))
	if err := r.ParseMultipartForm(maxImageSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "image exceeds 8 MiB")
			return
		}
		writeServiceError(w, r, fmt.Errorf("%w: multipart form with an image field is required", services.ErrBadRequest))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile(imageFormField)
	if err != nil {
		writeServiceError(w, r, fmt.Errorf("%w: image field is required", services.ErrBadRequest))
		return
	}
	defer file.Close()

	if header.Size > maxImageSize {
		writeError(w, http.StatusRequestEntityTooLarge, "image exceeds 8 MiB")
		return
	}
	contentType, _, _ := mime.ParseMediaType(header.Header.Get("Content-Type"))
	if !strings.HasPrefix(contentType, "image/") {
		writeServiceError(w, r, fmt.Errorf("%w: image content type must be image/*", services.ErrBadRequest))
		return
	}

	updated, err := h.elements.SetImage(r.Context(), h.kind, id, services.ImageUpload{
		Reader:      file,
		Size:        header.Size,
		ContentType: contentType,
		Filename:    header.Filename,
	}, ifMatch[types.Element](r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeTagged(w, r, StatusUpdated, updated)
}
