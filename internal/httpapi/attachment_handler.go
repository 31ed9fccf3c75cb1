package httpapi

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/mindatlas/backend/internal/attachment"
	"github.com/mindatlas/backend/internal/model"
)

type attachmentHandler struct {
	uploader      *attachment.Uploader
	maxFileSizeMB int64
	log           zerolog.Logger
}

// upload accepts a multipart file, validates it, stores the bytes, and
// persists the metadata row (which enqueues the parse pipeline's outbox
// event in the same transaction).
func (h *attachmentHandler) upload(w http.ResponseWriter, r *http.Request) {
	entryID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeErr(w, h.log, model.NewValidationError("id", "not a valid entry id"))
		return
	}

	if err := r.ParseMultipartForm(h.maxFileSizeMB << 20); err != nil {
		writeErr(w, h.log, model.NewValidationError("file", "invalid multipart body"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeErr(w, h.log, model.NewValidationError("file", "missing file field"))
		return
	}
	defer file.Close()

	indexToKG := true
	if raw := r.FormValue("index_to_knowledge_graph"); raw != "" {
		indexToKG, _ = strconv.ParseBool(raw)
	}

	contentType := header.Header.Get("Content-Type")
	if err := attachment.ValidateUpload(contentType, header.Size, h.maxFileSizeMB, indexToKG); err != nil {
		writeErr(w, h.log, err)
		return
	}

	att, err := h.uploader.Upload(r.Context(), entryID, header.Filename, contentType, header.Size, file, indexToKG)
	if err != nil {
		writeErr(w, h.log, err)
		return
	}
	writeData(w, h.log, http.StatusCreated, att)
}
