package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tieubaoca/edu-assistant/types"
)

const (
	ToolListDocuments       = "list_documents"
	ToolSearchDocuments     = "search_documents"
	ToolSummarizeText       = "summarize_text"
	ToolSummarizeLastAnswer = "summarize_last_answer"

	defaultSearchLimit = 10
	defaultMaxPoints   = 5
	fallbackSnippetLen = 500
)

// ToolParam describes one argument of a tool. Type is a JSON schema type.
type ToolParam struct {
	Name        string
	Type        string
	Description string
	Required    bool
}

// Tool is a provider independent function the model may call.
type Tool struct {
	Name        string
	Description string
	Params      []ToolParam
	Handler     types.FunctionHandler
}

// Summarizer condenses text into at most maxPoints bullet points.
type Summarizer func(ctx context.Context, text string, maxPoints int) (string, error)

type conversationKey struct{}

// withConversation attaches the conversation being answered to ctx so tools
// can refer back to it.
func withConversation(ctx context.Context, messages []types.Message) context.Context {
	return context.WithValue(ctx, conversationKey{}, messages)
}

func lastAnswer(ctx context.Context) string {
	messages, _ := ctx.Value(conversationKey{}).([]types.Message)
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "assistant" && strings.TrimSpace(messages[i].Content) != "" {
			return messages[i].Content
		}
	}
	return ""
}

// DocumentTools returns the tools answering questions from session's
// documents. A nil summarize uses a plain bullet fallback.
func DocumentTools(docs *DocumentService, session Session, summarize Summarizer) []Tool {
	runSummary := func(ctx context.Context, text string, maxPoints int) (string, error) {
		cleaned := strings.TrimSpace(text)
		if cleaned == "" {
			return "Nothing to summarize.", nil
		}
		if maxPoints <= 0 {
			maxPoints = defaultMaxPoints
		}
		if summarize == nil {
			return fallbackSummary(cleaned), nil
		}
		return summarize(ctx, cleaned, maxPoints)
	}

	return []Tool{
		{
			Name:        ToolListDocuments,
			Description: "List available documents for the current user.",
			Handler: func(ctx context.Context, _ []byte) (any, error) {
				list, err := docs.ListDocuments(ctx, session)
				if err != nil {
					return nil, err
				}
				if len(list) == 0 {
					return "No documents available.", nil
				}
				lines := make([]string, 0, len(list))
				for _, d := range list {
					lines = append(lines, fmt.Sprintf("- %s (uploaded: %s)", d.Filename, d.UploadedAt.Format("2006-01-02 15:04")))
				}
				return strings.Join(lines, "\n"), nil
			},
		},
		{
			Name: ToolSearchDocuments,
			Description: "Search the user's documents for passages relevant to a query. " +
				"Optional: specify a document filename. Returns formatted chunks with sources.",
			Params: []ToolParam{
				{Name: "query", Type: "string", Description: "What to look for", Required: true},
				{Name: "document", Type: "string", Description: "Restrict the search to this filename"},
				{Name: "limit", Type: "integer", Description: "Maximum number of passages"},
			},
			Handler: func(ctx context.Context, args []byte) (any, error) {
				var in struct {
					Query    string `json:"query"`
					Document string `json:"document"`
					Limit    int    `json:"limit"`
				}
				if err := decodeArgs(args, &in); err != nil {
					return nil, err
				}
				if strings.TrimSpace(in.Query) == "" {
					return "Query is required.", nil
				}
				if in.Limit <= 0 {
					in.Limit = defaultSearchLimit
				}
				passages := docs.GetContext(ctx, session, in.Query, in.Document)
				if len(passages) == 0 {
					return NoPassagesFound, nil
				}
				if len(passages) > in.Limit {
					passages = passages[:in.Limit]
				}
				return FormatPassages(passages), nil
			},
		},
		{
			Name:        ToolSummarizeText,
			Description: "Summarize provided text into concise bullet points (use after searching documents).",
			Params: []ToolParam{
				{Name: "text", Type: "string", Description: "Text to summarize", Required: true},
				{Name: "max_points", Type: "integer", Description: "Maximum number of bullet points"},
			},
			Handler: func(ctx context.Context, args []byte) (any, error) {
				var in struct {
					Text      string `json:"text"`
					MaxPoints int    `json:"max_points"`
				}
				if err := decodeArgs(args, &in); err != nil {
					return nil, err
				}
				return runSummary(ctx, in.Text, in.MaxPoints)
			},
		},
		{
			Name:        ToolSummarizeLastAnswer,
			Description: "Summarize the assistant's most recent answer into concise bullet points.",
			Params: []ToolParam{
				{Name: "max_points", Type: "integer", Description: "Maximum number of bullet points"},
			},
			Handler: func(ctx context.Context, args []byte) (any, error) {
				var in struct {
					MaxPoints int `json:"max_points"`
				}
				if err := decodeArgs(args, &in); err != nil {
					return nil, err
				}
				last := lastAnswer(ctx)
				if last == "" {
					return "No previous answer to summarize.", nil
				}
				return runSummary(ctx, last, in.MaxPoints)
			},
		},
	}
}

func decodeArgs(args []byte, v any) error {
	if len(strings.TrimSpace(string(args))) == 0 {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("%w: tool arguments: %v", types.ErrInvalidInput, err)
	}
	return nil
}

// fallbackSummary turns the first lines of text into bullets without a model.
func fallbackSummary(text string) string {
	snippet := text
	if r := []rune(text); len(r) > fallbackSnippetLen {
		snippet = string(r[:fallbackSnippetLen]) + "..."
	}
	var bullets []string
	for _, line := range strings.Split(snippet, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			bullets = append(bullets, "• "+line)
		}
	}
	if len(bullets) == 0 {
		return "• " + snippet
	}
	return strings.Join(bullets, "\n")
}

// toolResult renders a handler result as the text returned to the model.
func toolResult(result any) string {
	switch v := result.(type) {
	case string:
		return v
	case nil:
		return ""
	}
	b, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprint(result)
	}
	return string(b)
}
