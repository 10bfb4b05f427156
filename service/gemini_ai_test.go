package service

import (
	"context"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/tieubaoca/edu-assistant/types"
	"go.uber.org/zap/zaptest"
)

func TestNewGeminiService_RequiresKey(t *testing.T) {
	_, err := NewGeminiService(context.Background(), []string{" ", ""}, "gemini-1.5-flash", zaptest.NewLogger(t))
	assert.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestGeminiSchema(t *testing.T) {
	assert.Equal(t, genai.TypeInteger, geminiSchema(ToolParam{Type: "integer"}).Type)
	assert.Equal(t, genai.TypeString, geminiSchema(ToolParam{Type: "string"}).Type)
	assert.Equal(t, genai.TypeString, geminiSchema(ToolParam{}).Type)

	s := geminiSchema(ToolParam{Name: "query", Type: "string", Description: "What to look for"})
	assert.Equal(t, "What to look for", s.Description)
}

func TestResponseText(t *testing.T) {
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{
		{Content: &genai.Content{Parts: []genai.Part{genai.Text("Week "), genai.Text("two")}}},
		{Content: nil},
	}}
	assert.Equal(t, "Week two", responseText(resp))
	assert.Equal(t, "", responseText(nil))
}
