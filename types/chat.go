package types

type ChatRequest struct {
	Messages []Message `json:"messages"`
}

type ChatResponse struct {
	Message *Message `json:"message"`
}
