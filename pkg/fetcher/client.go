package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/meower-media/feedsync/pkg/posts"
)

var validate = validator.New()

// Client is the Fetcher backed by the v0 REST API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL string, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
	}
}

type errResp struct {
	Error  bool              `json:"error"`
	Type   string            `json:"type"`
	Fields map[string]string `json:"fields"`
}

func (c *Client) LoadPage(ctx context.Context, key posts.FeedKey, page int, limit int) ([]posts.Post, error) {
	query := url.Values{}
	if key.Date != "" {
		query.Set("date", key.Date)
	}
	query.Set("page", strconv.Itoa(page))
	query.Set("limit", strconv.Itoa(limit))

	var resp struct {
		Posts []posts.Post `json:"posts"`
	}
	path := fmt.Sprint("/channels/", url.PathEscape(key.ChannelId), "/posts?", query.Encode())
	if err := c.do(ctx, "load page", http.MethodGet, path, nil, "", &resp); err != nil {
		return nil, err
	}
	return resp.Posts, nil
}

func (c *Client) LoadComments(ctx context.Context, postId string) ([]posts.Comment, error) {
	var resp struct {
		Comments []posts.Comment `json:"comments"`
	}
	path := fmt.Sprint("/posts/", url.PathEscape(postId), "/comments")
	if err := c.do(ctx, "load comments", http.MethodGet, path, nil, "", &resp); err != nil {
		return nil, err
	}
	return resp.Comments, nil
}

func (c *Client) CreatePost(ctx context.Context, input PostInput) (posts.Post, error) {
	if err := Validate(input); err != nil {
		return posts.Post{}, err
	}

	// Build multipart body
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("caption", input.Caption); err != nil {
		return posts.Post{}, err
	}
	if input.Image != nil {
		fw, err := mw.CreateFormFile("file", input.Image.Filename)
		if err != nil {
			return posts.Post{}, err
		}
		if _, err := fw.Write(input.Image.Data); err != nil {
			return posts.Post{}, err
		}
	}
	if err := mw.Close(); err != nil {
		return posts.Post{}, err
	}

	var resp struct {
		Post posts.Post `json:"post"`
	}
	path := fmt.Sprint("/channels/", url.PathEscape(input.ChannelId), "/posts")
	if err := c.do(ctx, "create post", http.MethodPost, path, &body, mw.FormDataContentType(), &resp); err != nil {
		return posts.Post{}, err
	}
	return resp.Post, nil
}

func (c *Client) CreateComment(ctx context.Context, input CommentInput) (posts.Comment, error) {
	if err := Validate(input); err != nil {
		return posts.Comment{}, err
	}

	marshaled, err := json.Marshal(map[string]string{"body": input.Body})
	if err != nil {
		return posts.Comment{}, err
	}

	var resp struct {
		Comment posts.Comment `json:"comment"`
	}
	path := fmt.Sprint("/posts/", url.PathEscape(input.PostId), "/comments")
	if err := c.do(ctx, "create comment", http.MethodPost, path, bytes.NewReader(marshaled), "application/json", &resp); err != nil {
		return posts.Comment{}, err
	}
	return resp.Comment, nil
}

func (c *Client) AddReaction(ctx context.Context, target posts.Target, emoji string) (posts.ReactionGroup, error) {
	if emoji == "" {
		return posts.ReactionGroup{}, ErrEmptyEmoji
	}
	var resp struct {
		Reaction posts.ReactionGroup `json:"reaction"`
	}
	if err := c.do(ctx, "add reaction", http.MethodPost, reactionPath(target, emoji), nil, "", &resp); err != nil {
		return posts.ReactionGroup{}, err
	}
	return resp.Reaction, nil
}

func (c *Client) RemoveReaction(ctx context.Context, target posts.Target, emoji string) error {
	if emoji == "" {
		return ErrEmptyEmoji
	}
	return c.do(ctx, "remove reaction", http.MethodDelete, reactionPath(target, emoji), nil, "", nil)
}

func reactionPath(target posts.Target, emoji string) string {
	collection := "/posts/"
	if target.Kind == posts.TargetComment {
		collection = "/comments/"
	}
	return fmt.Sprint(collection, url.PathEscape(target.Id), "/reactions/", url.PathEscape(emoji))
}

func (c *Client) do(ctx context.Context, op string, method string, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	if c.token != "" {
		req.Header.Set("token", c.token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		tErr := &TransportError{Op: op, Status: resp.StatusCode}
		var unmarshaledResp errResp
		if json.NewDecoder(resp.Body).Decode(&unmarshaledResp) == nil {
			tErr.Type = unmarshaledResp.Type
			tErr.Fields = unmarshaledResp.Fields
		}
		return tErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Op: op, Status: resp.StatusCode, Err: err}
	}
	return nil
}
