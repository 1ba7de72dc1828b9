package mutations

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/meower-media/feedsync/pkg/cache"
	"github.com/meower-media/feedsync/pkg/fetcher"
	"github.com/meower-media/feedsync/pkg/metrics"
	"github.com/meower-media/feedsync/pkg/posts"
	"github.com/rs/zerolog"
)

const DefaultWriteTimeout = 15 * time.Second

// Coordinator applies local edits to the cache before the server has them
// and settles each edit once its write returns: confirmed on success, rolled
// back on failure. Writes are never cancelled by the caller; a caller that
// goes away only stops waiting for the result.
type Coordinator struct {
	cache        *cache.Cache
	fetcher      fetcher.Fetcher
	log          zerolog.Logger
	writeTimeout time.Duration
}

func New(c *cache.Cache, f fetcher.Fetcher, logger zerolog.Logger, writeTimeout time.Duration) *Coordinator {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &Coordinator{
		cache:        c,
		fetcher:      f,
		log:          logger.With().Str("component", "mutations").Logger(),
		writeTimeout: writeTimeout,
	}
}

func (co *Coordinator) writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), co.writeTimeout)
}

// CreatePost shows a temporary post at the top of the feed, then replaces it
// with the server's post. On failure the temporary post is removed.
func (co *Coordinator) CreatePost(ctx context.Context, key posts.FeedKey, input fetcher.PostInput) (posts.Post, error) {
	input.ChannelId = key.ChannelId
	if err := fetcher.Validate(input); err != nil {
		return posts.Post{}, err
	}

	m, err := co.cache.BeginCreatePost(key, posts.Post{Caption: input.Caption})
	if err != nil {
		metrics.ObserveMutation(cache.MutationCreatePost.String(), "rejected")
		return posts.Post{}, err
	}

	wctx, cancel := co.writeContext(ctx)
	defer cancel()
	confirmed, err := co.fetcher.CreatePost(wctx, input)
	if err != nil {
		return posts.Post{}, co.rollback(m, err)
	}

	if err := co.cache.ConfirmPost(m.Token, confirmed); err != nil {
		co.log.Warn().Err(err).Str("token", m.Token).Msg("confirm post")
	}
	metrics.ObserveMutation(m.Kind.String(), "confirmed")
	return confirmed, nil
}

// CreateComment shows a temporary comment and bumps the post's comment count
// until the server answers.
func (co *Coordinator) CreateComment(ctx context.Context, input fetcher.CommentInput) (posts.Comment, error) {
	if err := fetcher.Validate(input); err != nil {
		return posts.Comment{}, err
	}

	m, err := co.cache.BeginCreateComment(posts.Comment{PostId: input.PostId, Body: input.Body})
	if err != nil {
		metrics.ObserveMutation(cache.MutationCreateComment.String(), "rejected")
		return posts.Comment{}, err
	}

	wctx, cancel := co.writeContext(ctx)
	defer cancel()
	confirmed, err := co.fetcher.CreateComment(wctx, input)
	if err != nil {
		return posts.Comment{}, co.rollback(m, err)
	}

	if err := co.cache.ConfirmComment(m.Token, confirmed); err != nil {
		co.log.Warn().Err(err).Str("token", m.Token).Msg("confirm comment")
	}
	metrics.ObserveMutation(m.Kind.String(), "confirmed")
	return confirmed, nil
}

// ToggleReaction adds the user's emoji reaction to a target, or removes it
// when the user already reacted. It reports whether the reaction was added.
// A second toggle of the same (target, emoji) while one is in flight fails
// with ErrMutationInFlight and changes nothing.
func (co *Coordinator) ToggleReaction(ctx context.Context, target posts.Target, emoji string) (bool, error) {
	if emoji == "" {
		return false, fetcher.ErrEmptyEmoji
	}

	m, err := co.cache.BeginToggle(target, emoji)
	if err != nil {
		metrics.ObserveMutation(cache.MutationToggleReaction.String(), "rejected")
		return false, err
	}

	wctx, cancel := co.writeContext(ctx)
	defer cancel()

	var group *posts.ReactionGroup
	if m.Add {
		g, err := co.fetcher.AddReaction(wctx, target, emoji)
		if err == nil {
			group = &g
		} else if !alreadyApplied(err, http.StatusConflict) {
			return m.Add, co.rollback(m, err)
		}
	} else {
		if err := co.fetcher.RemoveReaction(wctx, target, emoji); err != nil && !alreadyApplied(err, http.StatusNotFound) {
			return m.Add, co.rollback(m, err)
		}
	}

	if err := co.cache.ConfirmReaction(m.Token, group); err != nil {
		co.log.Warn().Err(err).Str("token", m.Token).Msg("confirm reaction")
	}
	metrics.ObserveMutation(m.Kind.String(), "confirmed")
	return m.Add, nil
}

func (co *Coordinator) rollback(m cache.PendingMutation, cause error) error {
	if err := co.cache.Rollback(m.Token); err != nil {
		co.log.Warn().Err(err).Str("token", m.Token).Msg("rollback")
	}
	metrics.ObserveMutation(m.Kind.String(), "rolled_back")
	co.log.Warn().Err(cause).
		Stringer("kind", m.Kind).
		Str("target", m.Target.Id).
		Str("emoji", m.Emoji).
		Msg("write failed, optimistic change reverted")
	return fmt.Errorf("%w: %w", ErrWriteFailed, cause)
}

// alreadyApplied reports whether the server refused a reaction write because
// it already holds the requested state: the reaction exists on add (409) or
// is gone on remove (404).
func alreadyApplied(err error, status int) bool {
	var tErr *fetcher.TransportError
	if !errors.As(err, &tErr) || tErr.Err != nil {
		return false
	}
	return tErr.Status == status
}
