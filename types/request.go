package types

type ContextRequest struct {
	Query    string `json:"query"`
	Document string `json:"document,omitempty"`
}

type FeedbackRequest struct {
	Question string `json:"question"`
	Response string `json:"response"`
	Category string `json:"category"`
	Rating   int    `json:"rating"`
	Text     string `json:"text,omitempty"`
}
