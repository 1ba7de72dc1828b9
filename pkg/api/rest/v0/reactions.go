package v0_rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/meower-media/feedsync/pkg/posts"
	"github.com/meower-media/feedsync/pkg/store"
)

const (
	reactionRatelimit       = 30
	reactionRatelimitWindow = 10
)

// reactionHandler serves adding (add true) or removing the caller's reaction
// on the post or comment named by idParam.
func reactionHandler(kind posts.TargetKind, idParam string, add bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userId := getAuthedUserId(r)
		if userId == "" {
			returnErr(w, http.StatusUnauthorized, ErrUnauthorized, nil)
			return
		}

		emoji := chi.URLParam(r, "emoji")
		if err := validate.Var(emoji, "required,max=64"); err != nil {
			returnErr(w, http.StatusBadRequest, ErrBadRequest, map[string]string{"emoji": err.Error()})
			return
		}

		// Check ratelimit
		if ratelimited(r.Context(), "react", "user", userId) {
			returnErr(w, http.StatusTooManyRequests, ErrRatelimited, nil)
			return
		}
		if err := ratelimit(r.Context(), w, "react", "user", userId, reactionRatelimit, reactionRatelimitWindow); err != nil {
			returnInternal(w, r, err)
			return
		}

		// Resolve the channel the target lives in
		target := posts.Target{Kind: kind, Id: chi.URLParam(r, idParam)}
		var channelId string
		if kind == posts.TargetComment {
			c, err := store.GetComment(r.Context(), target.Id)
			if err == posts.ErrCommentNotFound {
				returnErr(w, http.StatusNotFound, ErrNotFound, nil)
				return
			} else if err != nil {
				returnInternal(w, r, err)
				return
			}
			channelId = c.ChannelId
		} else {
			p, err := store.GetPost(r.Context(), target.Id)
			if err == posts.ErrPostNotFound {
				returnErr(w, http.StatusNotFound, ErrNotFound, nil)
				return
			} else if err != nil {
				returnInternal(w, r, err)
				return
			}
			channelId = p.ChannelId
		}

		if !add {
			err := store.RemoveReaction(r.Context(), channelId, target, userId, emoji)
			if err == posts.ErrReactionNotFound {
				returnErr(w, http.StatusNotFound, ErrNotFound, nil)
			} else if err != nil {
				returnInternal(w, r, err)
			} else {
				returnData(w, http.StatusOK, BaseResp{})
			}
			return
		}

		group, err := store.AddReaction(r.Context(), channelId, target, userId, emoji)
		if err == posts.ErrReactionAlreadyExists {
			returnErr(w, http.StatusConflict, ErrReactionExists, nil)
			return
		} else if err != nil {
			returnInternal(w, r, err)
			return
		}

		returnData(w, http.StatusOK, ReactionResp{Reaction: group})
	}
}
