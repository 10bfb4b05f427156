package service

import (
	"context"
	"fmt"

	"github.com/tieubaoca/edu-assistant/config"
	"github.com/tieubaoca/edu-assistant/types"
	"go.uber.org/zap"
)

// SystemPrompt instructs the model to answer from the user's documents only.
const SystemPrompt = "You are an educational assistant that must ground answers in the user's documents. " +
	"Always call tools to retrieve context before answering. " +
	"For summary requests (summarize, summary, bullet points), first call search_documents; " +
	"if no relevant context is found, say so rather than summarizing unrelated content. " +
	"When summarizing, call summarize_text on the retrieved passages or summarize_last_answer when the user asks to summarize your previous reply. " +
	"For follow-up questions that reference earlier answers, use summarize_last_answer to recall what you said before searching. " +
	"When responding, cite chunk indices and filenames from tool output like [1] (filename). " +
	"If no context is available, state that clearly."

const summarizePrompt = "Return concise bullet points only (each starting with •). Keep it factual."

// historyWindow is the number of trailing messages sent to the model.
const historyWindow = 12

// maxToolRounds bounds consecutive tool-call round trips in one answer.
const maxToolRounds = 5

// ChatService answers a conversation, calling registered tools as the
// model requests them.
type ChatService interface {
	Chat(ctx context.Context, messages []types.Message) (*types.Message, error)
	ChatStream(ctx context.Context, messages []types.Message, handler types.StreamHandler) error
}

// ToolRegistrar is a ChatService able to expose tools to its model.
type ToolRegistrar interface {
	ChatService
	RegisterTool(tool Tool)
	Summarize(ctx context.Context, text string, maxPoints int) (string, error)
}

// NewAssistantBuilder returns the builder used by the SessionFactory. The
// chat service is built per user with tools bound to that user's session;
// the document service is scoped to the user's OpenAI key when one is sent.
func NewAssistantBuilder(cfg config.AIConfig, docs *DocumentService, logger *zap.Logger) AssistantBuilder {
	return func(session Session, creds Credentials) (*Assistant, error) {
		var chat ToolRegistrar
		switch cfg.Provider {
		case "gemini":
			keys := cfg.GeminiAPIKeys
			if creds.GeminiKey != "" {
				keys = []string{creds.GeminiKey}
			}
			svc, err := NewGeminiService(context.Background(), keys, cfg.Model, logger)
			if err != nil {
				return nil, err
			}
			chat = svc
		default:
			key := cfg.APIKey
			if creds.OpenAIKey != "" {
				key = creds.OpenAIKey
			}
			if key == "" {
				return nil, fmt.Errorf("%w: an OpenAI API key is required", types.ErrInvalidInput)
			}
			chat = NewOpenAIService(cfg.Endpoint, key, cfg.Model, logger)
		}
		userDocs := docs.ForCredentials(creds)
		for _, tool := range DocumentTools(userDocs, session, chat.Summarize) {
			chat.RegisterTool(tool)
		}
		return &Assistant{Session: session, Documents: userDocs, Chat: chat}, nil
	}
}

// trimHistory keeps the last historyWindow messages.
func trimHistory(messages []types.Message) []types.Message {
	if len(messages) > historyWindow {
		return messages[len(messages)-historyWindow:]
	}
	return messages
}
