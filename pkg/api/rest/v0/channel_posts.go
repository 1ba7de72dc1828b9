package v0_rest

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/meower-media/feedsync/pkg/files"
	"github.com/meower-media/feedsync/pkg/posts"
	"github.com/meower-media/feedsync/pkg/store"
)

const maxUploadSize = 10 << 20

func ChannelPostsRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Get("/", getChannelPosts)
	r.Post("/", createChannelPost)

	return r
}

func getChannelPosts(w http.ResponseWriter, r *http.Request) {
	channelId := chi.URLParam(r, "channelId")

	// Get pagination opts
	paginationOpts := PaginationOpts{Request: r}
	date, ok := paginationOpts.Date(opts.Location)
	if !ok {
		returnErr(w, http.StatusBadRequest, ErrInvalidDate, nil)
		return
	}

	// Get posts
	key := posts.FeedKey{ChannelId: channelId, Date: date}
	list, err := store.GetPosts(r.Context(), key, opts.Location, paginationOpts.Page(), paginationOpts.Limit())
	if err != nil {
		returnInternal(w, r, err)
		return
	}

	returnData(w, http.StatusOK, PostsResp{
		Posts: list,
		Page:  paginationOpts.Page(),
		Limit: paginationOpts.Limit(),
		Date:  date,
	})
}

func createChannelPost(w http.ResponseWriter, r *http.Request) {
	channelId := chi.URLParam(r, "channelId")

	// Get authed user
	userId := getAuthedUserId(r)
	if userId == "" {
		returnErr(w, http.StatusUnauthorized, ErrUnauthorized, nil)
		return
	}

	// Parse form
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			returnErr(w, http.StatusRequestEntityTooLarge, ErrTooLarge, nil)
		} else {
			returnErr(w, http.StatusBadRequest, ErrBadRequest, nil)
		}
		return
	}
	body := CreatePostReq{Caption: r.FormValue("caption")}
	if !validateBody(w, &body) {
		return
	}

	// Store image
	var media *posts.Attachment
	var mediaRef string
	file, header, err := r.FormFile("file")
	if err == nil {
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			returnErr(w, http.StatusBadRequest, ErrBadRequest, nil)
			return
		}
		mime := http.DetectContentType(data)
		if !strings.HasPrefix(mime, "image/") {
			returnErr(w, http.StatusBadRequest, ErrUnsupportedMedia, nil)
			return
		}
		f, err := files.Save(r.Context(), userId, header.Filename, mime, data)
		if err != nil {
			returnInternal(w, r, err)
			return
		}
		attachment := f.Attachment()
		media = &attachment
		mediaRef = f.Id
	} else if err != http.ErrMissingFile {
		returnErr(w, http.StatusBadRequest, ErrBadRequest, nil)
		return
	} else if body.Caption == "" {
		returnErr(w, http.StatusBadRequest, ErrBadRequest, map[string]string{"caption": "caption or file required"})
		return
	}

	// Create post
	p, err := store.CreatePost(r.Context(), channelId, userId, body.Caption, mediaRef)
	if err != nil {
		returnInternal(w, r, err)
		return
	}

	returnData(w, http.StatusOK, PostResp{Post: p, Media: media})
}
