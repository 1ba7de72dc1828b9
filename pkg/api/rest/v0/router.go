package v0_rest

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/meower-media/feedsync/pkg/networks"
	"github.com/rs/zerolog"
)

type Options struct {
	TokenSecret []byte
	Location    *time.Location // feed days
	Logger      zerolog.Logger
	Blocklist   *networks.Blocklist // may only read
}

var opts = Options{Location: time.UTC, Logger: zerolog.Nop()}

func Router(o Options) *chi.Mux {
	if o.Location == nil {
		o.Location = time.UTC
	}
	opts = o

	r := chi.NewRouter()
	r.Use(blockWrites)

	r.Mount("/", RootRouter())
	r.Mount("/channels/{channelId}/posts", ChannelPostsRouter())
	r.Mount("/posts/{postId}", PostRouter())
	r.Mount("/comments/{commentId}", CommentRouter())
	r.Get("/media/{ref}", getMedia)

	return r
}

func blockWrites(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead && opts.Blocklist.IsBlocked(r.RemoteAddr) {
			returnErr(w, http.StatusForbidden, ErrIPBlocked, nil)
			return
		}
		h.ServeHTTP(w, r)
	})
}
