package v0_rest

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/meower-media/feedsync/pkg/files"
)

func getMedia(w http.ResponseWriter, r *http.Request) {
	f, err := files.GetFile(r.Context(), chi.URLParam(r, "ref"))
	if err == files.ErrFileNotFound {
		returnErr(w, http.StatusNotFound, ErrNotFound, nil)
		return
	} else if err != nil {
		returnInternal(w, r, err)
		return
	}

	w.Header().Set("Content-Type", f.Mime)
	w.Header().Set("Content-Length", strconv.FormatInt(f.Size, 10))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	if _, err := files.Download(f.Id, w); err != nil {
		opts.Logger.Error().Err(err).Str("ref", f.Id).Msg("media download failed")
	}
}
