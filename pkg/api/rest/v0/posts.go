package v0_rest

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/meower-media/feedsync/pkg/posts"
	"github.com/meower-media/feedsync/pkg/store"
)

func PostRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Get("/", getPost)
	r.Delete("/", deletePost)

	r.Get("/comments", getPostComments)
	r.Post("/comments", createPostComment)

	r.Route("/reactions/{emoji}", func(r chi.Router) {
		r.Post("/", reactionHandler(posts.TargetPost, "postId", true))
		r.Delete("/", reactionHandler(posts.TargetPost, "postId", false))
	})

	return r
}

// loadPost fetches the post named by the postId URL param, answering 404 when
// it does not exist.
func loadPost(ctx context.Context, w http.ResponseWriter, r *http.Request) (posts.Post, bool) {
	p, err := store.GetPost(ctx, chi.URLParam(r, "postId"))
	if err == posts.ErrPostNotFound {
		returnErr(w, http.StatusNotFound, ErrNotFound, nil)
		return p, false
	} else if err != nil {
		returnInternal(w, r, err)
		return p, false
	}
	return p, true
}

func getPost(w http.ResponseWriter, r *http.Request) {
	p, ok := loadPost(r.Context(), w, r)
	if !ok {
		return
	}
	returnData(w, http.StatusOK, PostResp{Post: p})
}

func deletePost(w http.ResponseWriter, r *http.Request) {
	userId := getAuthedUserId(r)
	if userId == "" {
		returnErr(w, http.StatusUnauthorized, ErrUnauthorized, nil)
		return
	}

	p, ok := loadPost(r.Context(), w, r)
	if !ok {
		return
	}
	if p.AuthorId != userId {
		returnErr(w, http.StatusForbidden, ErrMissingPermissions, nil)
		return
	}

	if err := store.DeletePost(r.Context(), &p); err != nil {
		returnInternal(w, r, err)
		return
	}

	returnData(w, http.StatusOK, BaseResp{})
}

func getPostComments(w http.ResponseWriter, r *http.Request) {
	comments, err := store.GetComments(r.Context(), chi.URLParam(r, "postId"))
	if err != nil {
		returnInternal(w, r, err)
		return
	}

	returnData(w, http.StatusOK, CommentsResp{Comments: comments})
}

func createPostComment(w http.ResponseWriter, r *http.Request) {
	userId := getAuthedUserId(r)
	if userId == "" {
		returnErr(w, http.StatusUnauthorized, ErrUnauthorized, nil)
		return
	}

	// Decode body
	var body CreateCommentReq
	if !decodeBody(w, r, &body) {
		return
	}

	p, ok := loadPost(r.Context(), w, r)
	if !ok {
		return
	}

	c, err := store.CreateComment(r.Context(), &p, userId, body.Body)
	if err != nil {
		returnInternal(w, r, err)
		return
	}

	returnData(w, http.StatusOK, CommentResp{Comment: c})
}
