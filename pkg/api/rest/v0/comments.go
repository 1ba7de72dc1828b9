package v0_rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/meower-media/feedsync/pkg/posts"
	"github.com/meower-media/feedsync/pkg/store"
)

func CommentRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Delete("/", deleteComment)

	r.Route("/reactions/{emoji}", func(r chi.Router) {
		r.Post("/", reactionHandler(posts.TargetComment, "commentId", true))
		r.Delete("/", reactionHandler(posts.TargetComment, "commentId", false))
	})

	return r
}

func deleteComment(w http.ResponseWriter, r *http.Request) {
	userId := getAuthedUserId(r)
	if userId == "" {
		returnErr(w, http.StatusUnauthorized, ErrUnauthorized, nil)
		return
	}

	c, err := store.GetComment(r.Context(), chi.URLParam(r, "commentId"))
	if err == posts.ErrCommentNotFound {
		returnErr(w, http.StatusNotFound, ErrNotFound, nil)
		return
	} else if err != nil {
		returnInternal(w, r, err)
		return
	}
	if c.AuthorId != userId {
		returnErr(w, http.StatusForbidden, ErrMissingPermissions, nil)
		return
	}

	if err := store.DeleteComment(r.Context(), &c); err != nil {
		returnInternal(w, r, err)
		return
	}

	returnData(w, http.StatusOK, BaseResp{})
}
