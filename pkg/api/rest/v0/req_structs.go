package v0_rest

type CreatePostReq struct {
	Caption string `json:"caption" validate:"max=2000"`
}

type CreateCommentReq struct {
	Body string `json:"body" validate:"required,max=1000"`
}
