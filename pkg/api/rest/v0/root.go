package v0_rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/meower-media/feedsync/pkg/db"
	"github.com/meower-media/feedsync/pkg/rdb"
)

func RootRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Get("/", root)
	r.Get("/status", getStatus)
	r.Get("/favicon.ico", func(w http.ResponseWriter, r *http.Request) {})

	return r
}

func root(w http.ResponseWriter, r *http.Request) {
	returnData(w, http.StatusOK, WelcomeResp{
		Error: false,
		Name:  "feedsync",
	})
}

func getStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResp{IPBlocked: opts.Blocklist.IsBlocked(r.RemoteAddr)}
	if db.Client != nil {
		resp.Database = db.Client.Ping(r.Context(), nil) == nil
	}
	if rdb.Client != nil {
		resp.Redis = rdb.Client.Ping(r.Context()).Err() == nil
	}

	code := http.StatusOK
	if !resp.Database || !resp.Redis {
		code = http.StatusServiceUnavailable
	}
	returnData(w, code, resp)
}
