package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/assert/v2"
	"github.com/meower-media/feedsync/pkg/posts"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()

	r.Get("/channels/{channelId}/posts", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("token") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":true,"type":"Unauthorized"}`))
			return
		}
		q := r.URL.Query()
		json.NewEncoder(w).Encode(map[string]any{
			"error": false,
			"posts": []posts.Post{{
				Id:        "p-" + q.Get("page") + "-" + q.Get("limit"),
				ChannelId: chi.URLParam(r, "channelId"),
				Caption:   q.Get("date"),
				Reactions: []posts.ReactionGroup{{Emoji: "👍", Count: 1, UserIds: []string{"u1"}}},
			}},
		})
	})
	r.Post("/channels/{channelId}/posts", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		p := posts.Post{Id: "new", ChannelId: chi.URLParam(r, "channelId"), Caption: r.FormValue("caption")}
		if f, header, err := r.FormFile("file"); err == nil {
			data, _ := io.ReadAll(f)
			p.MediaRef = header.Filename + ":" + string(data)
		}
		json.NewEncoder(w).Encode(map[string]any{"error": false, "post": p})
	})
	r.Post("/posts/{postId}/comments", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Body string `json:"body"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		json.NewEncoder(w).Encode(map[string]any{
			"comment": posts.Comment{Id: "cm", PostId: chi.URLParam(r, "postId"), Body: body.Body},
		})
	})
	r.Post("/comments/{commentId}/reactions/{emoji}", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"reaction": posts.ReactionGroup{Emoji: chi.URLParam(r, "emoji"), Count: 1, UserIds: []string{"me"}},
		})
	})
	r.Delete("/posts/{postId}/reactions/{emoji}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":true,"type":"tooManyRequests"}`))
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestLoadPage(t *testing.T) {
	srv := newTestServer(t)
	c := NewClient(srv.URL+"/", "secret", srv.Client())

	page, err := c.LoadPage(context.Background(), posts.FeedKey{ChannelId: "c1", Date: "20240301"}, 2, 10)
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, len(page))
	assert.Equal(t, "p-2-10", page[0].Id)
	assert.Equal(t, "c1", page[0].ChannelId)
	assert.Equal(t, "20240301", page[0].Caption)
	assert.Equal(t, []string{"u1"}, page[0].Reactions[0].UserIds)
}

func TestLoadPageUnauthorized(t *testing.T) {
	srv := newTestServer(t)
	c := NewClient(srv.URL, "wrong", srv.Client())

	_, err := c.LoadPage(context.Background(), posts.FeedKey{ChannelId: "c1"}, 0, 10)
	var tErr *TransportError
	assert.Equal(t, true, errors.As(err, &tErr))
	assert.Equal(t, http.StatusUnauthorized, tErr.Status)
	assert.Equal(t, "Unauthorized", tErr.Type)
	assert.Equal(t, false, tErr.Temporary())
}

func TestCreatePostMultipart(t *testing.T) {
	srv := newTestServer(t)
	c := NewClient(srv.URL, "secret", srv.Client())

	p, err := c.CreatePost(context.Background(), PostInput{
		ChannelId: "c1",
		Caption:   "hello",
		Image:     &Upload{Filename: "cat.png", Data: []byte("meow")},
	})
	assert.Equal(t, nil, err)
	assert.Equal(t, "new", p.Id)
	assert.Equal(t, "hello", p.Caption)
	assert.Equal(t, "cat.png:meow", p.MediaRef)

	_, err = c.CreatePost(context.Background(), PostInput{Caption: "no channel"})
	assert.Equal(t, true, errors.Is(err, ErrInvalidInput))
}

func TestCommentAndReactions(t *testing.T) {
	srv := newTestServer(t)
	c := NewClient(srv.URL, "secret", srv.Client())

	cm, err := c.CreateComment(context.Background(), CommentInput{PostId: "p1", Body: "nice"})
	assert.Equal(t, nil, err)
	assert.Equal(t, "p1", cm.PostId)
	assert.Equal(t, "nice", cm.Body)

	_, err = c.CreateComment(context.Background(), CommentInput{PostId: "p1"})
	assert.Equal(t, true, errors.Is(err, ErrInvalidInput))

	g, err := c.AddReaction(context.Background(), posts.Target{Kind: posts.TargetComment, Id: "cm"}, "🔥")
	assert.Equal(t, nil, err)
	assert.Equal(t, "🔥", g.Emoji)

	err = c.RemoveReaction(context.Background(), posts.Target{Kind: posts.TargetPost, Id: "p1"}, "🔥")
	var tErr *TransportError
	assert.Equal(t, true, errors.As(err, &tErr))
	assert.Equal(t, true, tErr.Temporary())

	assert.Equal(t, ErrEmptyEmoji, c.RemoveReaction(context.Background(), posts.Target{Id: "p1"}, ""))
}

func TestNetworkFailure(t *testing.T) {
	srv := newTestServer(t)
	c := NewClient(srv.URL, "secret", srv.Client())
	srv.Close()

	_, err := c.LoadComments(context.Background(), "p1")
	var tErr *TransportError
	assert.Equal(t, true, errors.As(err, &tErr))
	assert.NotEqual(t, nil, tErr.Err)
}
