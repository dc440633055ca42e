package httpdto

type SendMessageRequest struct {
	Content       string   `json:"content"`
	Kind          string   `json:"kind"`
	AttachmentIDs []string `json:"attachment_ids"`
	ReplyToID     string   `json:"reply_to_id"`
}

type EditMessageRequest struct {
	Content string `json:"content" binding:"required"`
}
