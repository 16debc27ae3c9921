package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// ─── GET /api/track/open/{sendID} ─────────────────────────────────────────────

// transparentGIF is a 1×1 transparent GIF89a.
var transparentGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// handleTrackOpen records an open from the pixel embedded in the email.
// The image is served whatever happens: a broken image in a customer's
// inbox is worse than a missed open.
func (s *Server) handleTrackOpen(w http.ResponseWriter, r *http.Request) {
	if sendID, err := uuid.Parse(chi.URLParam(r, "sendID")); err == nil {
		s.receiver.RecordPixelOpen(r.Context(), sendID)
	} else {
		s.logger.Debug("track: malformed send id", "error", err, logField(r))
	}

	h := w.Header()
	h.Set("Content-Type", "image/gif")
	h.Set("Content-Length", strconv.Itoa(len(transparentGIF)))
	h.Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(transparentGIF)
}
