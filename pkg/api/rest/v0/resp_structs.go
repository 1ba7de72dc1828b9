package v0_rest

import "github.com/meower-media/feedsync/pkg/posts"

type BaseResp struct {
	Error bool `json:"error"`
}

type ErrResp struct {
	Error  bool              `json:"error"`
	Type   string            `json:"type"`
	Fields map[string]string `json:"fields,omitempty"`
}

type WelcomeResp struct {
	Error bool   `json:"error"`
	Name  string `json:"name"`
}

type StatusResp struct {
	Error     bool `json:"error"`
	Database  bool `json:"database"`
	Redis     bool `json:"redis"`
	IPBlocked bool `json:"ipBlocked"`
}

type PostsResp struct {
	Error bool         `json:"error"`
	Posts []posts.Post `json:"posts"`
	Page  int64        `json:"page"`
	Limit int64        `json:"limit"`
	Date  string       `json:"date,omitempty"`
}

type PostResp struct {
	Error bool              `json:"error"`
	Post  posts.Post        `json:"post"`
	Media *posts.Attachment `json:"media,omitempty"`
}

type CommentsResp struct {
	Error    bool            `json:"error"`
	Comments []posts.Comment `json:"comments"`
}

type CommentResp struct {
	Error   bool          `json:"error"`
	Comment posts.Comment `json:"comment"`
}

type ReactionResp struct {
	Error    bool                `json:"error"`
	Reaction posts.ReactionGroup `json:"reaction"`
}
