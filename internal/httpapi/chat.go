package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/chayanin-k/rapport/internal/attachment"
	"github.com/chayanin-k/rapport/internal/engine"
)

const maxUploadBytes = 16 << 20

type chatResponse struct {
	Reply string `json:"reply"`
}

// handleChat accepts a multipart turn: session_id and message text fields
// plus an optional image file. The reply is returned synchronously; the turn
// itself is persisted after the response by the writeback queue.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid multipart body: "+err.Error())
		return
	}

	sessionID := strings.TrimSpace(r.FormValue("session_id"))
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "missing session_id")
		return
	}
	message := r.FormValue("message")

	attachmentPath, err := s.saveUpload(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_attachment", err.Error())
		return
	}

	reply, err := s.runner.Turn(r.Context(), engine.TurnRequest{
		SessionID:      sessionID,
		Message:        message,
		AttachmentPath: attachmentPath,
	})
	if err != nil {
		respondTurnError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, chatResponse{Reply: reply})
}

// saveUpload stores the optional image field and returns its path. An absent
// field or an empty file is not an error; a non-image payload is.
func (s *Server) saveUpload(r *http.Request) (string, error) {
	file, header, err := r.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return "", nil
		}
		return "", err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", nil
	}

	return attachment.Save(s.cfg.UploadDir, header.Filename, data)
}
