package types

type DataResponse struct {
	Status  bool        `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Hints   []string    `json:"hints,omitempty"`
}

type ContextResponse struct {
	Passages []Passage `json:"passages"`
}

type DocumentListResponse struct {
	Documents []DocumentSummary `json:"documents"`
}
