package types

import "time"

const (
	AuditActionUpload    = "document.upload"
	AuditActionDuplicate = "document.duplicate"
	AuditActionDelete    = "document.delete"
)

const (
	FeedbackHelpful       = "Helpful"
	FeedbackNotQuiteRight = "Not Quite Right"
	FeedbackImprovement   = "Suggest an Improvement"
)

// AuditEntry is a best-effort record of a user action.
type AuditEntry struct {
	UserID    string    `bson:"user_id" json:"user_id"`
	Action    string    `bson:"action" json:"action"`
	Metadata  string    `bson:"metadata" json:"metadata"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

// Feedback is a user's rating of one answer.
type Feedback struct {
	UserID    string    `bson:"user_id" json:"user_id"`
	Question  string    `bson:"user_query" json:"question"`
	Response  string    `bson:"ai_response" json:"response"`
	Category  string    `bson:"feedback_category" json:"category"`
	Rating    int       `bson:"rating" json:"rating"`
	Text      string    `bson:"feedback_text" json:"text,omitempty"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

// FeedbackStats aggregates feedback for one user.
type FeedbackStats struct {
	Total            int     `json:"total_feedback"`
	AverageRating    float64 `json:"avg_rating"`
	HelpfulCount     int     `json:"helpful_count"`
	NotRightCount    int     `json:"not_right_count"`
	ImprovementCount int     `json:"improvement_count"`
}

// ValidFeedbackCategory reports whether c is one of the accepted categories.
func ValidFeedbackCategory(c string) bool {
	switch c {
	case FeedbackHelpful, FeedbackNotQuiteRight, FeedbackImprovement:
		return true
	}
	return false
}
