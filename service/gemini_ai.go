package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"github.com/tieubaoca/edu-assistant/types"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

type GeminiService struct {
	apiKeys       []string
	currentKey    int
	modelName     string
	client        *genai.Client
	model         *genai.GenerativeModel
	tools         []*genai.Tool
	functionsCall map[string]types.FunctionHandler
	logger        *zap.Logger
	mu            sync.Mutex
}

func NewGeminiService(ctx context.Context, apiKeys []string, modelName string, logger *zap.Logger) (*GeminiService, error) {
	keys := make([]string, 0, len(apiKeys))
	for _, k := range apiKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: no Gemini API keys provided", types.ErrInvalidInput)
	}

	service := &GeminiService{
		apiKeys:       keys,
		modelName:     modelName,
		functionsCall: make(map[string]types.FunctionHandler),
		logger:        logger,
	}

	service.mu.Lock()
	defer service.mu.Unlock()
	if err := service.initClientLocked(ctx); err != nil {
		return nil, err
	}
	return service, nil
}

func (s *GeminiService) initClientLocked(ctx context.Context) error {
	client, err := genai.NewClient(ctx, option.WithAPIKey(s.apiKeys[s.currentKey]))
	if err != nil {
		return err
	}
	s.client = client
	s.model = client.GenerativeModel(s.modelName)
	s.model.SetTemperature(0.3)
	s.model.SystemInstruction = genai.NewUserContent(genai.Text(SystemPrompt))
	s.model.Tools = s.tools
	return nil
}

// rotateAPIKey switches to the next key and rebuilds the client. It reports
// false when there is no other key to try.
func (s *GeminiService) rotateAPIKey(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.apiKeys) < 2 {
		return false, nil
	}
	s.currentKey = (s.currentKey + 1) % len(s.apiKeys)
	if err := s.client.Close(); err != nil {
		s.logger.Warn("closing gemini client failed", zap.Error(err))
	}
	s.logger.Info("rotated gemini api key", zap.Int("key_index", s.currentKey))
	return true, s.initClientLocked(ctx)
}

func (s *GeminiService) startChat(messages []types.Message) (*genai.ChatSession, genai.Part) {
	s.mu.Lock()
	model := s.model
	s.mu.Unlock()

	messages = trimHistory(messages)
	chat := model.StartChat()
	if len(messages) == 0 {
		return chat, genai.Text("")
	}
	history := make([]*genai.Content, 0, len(messages)-1)
	for _, msg := range messages[:len(messages)-1] {
		role := "user"
		if msg.Role == "assistant" {
			role = "model"
		}
		history = append(history, &genai.Content{
			Parts: []genai.Part{genai.Text(msg.Content)},
			Role:  role,
		})
	}
	chat.History = history
	return chat, genai.Text(messages[len(messages)-1].Content)
}

func (s *GeminiService) Chat(ctx context.Context, messages []types.Message) (*types.Message, error) {
	ctx = withConversation(ctx, messages)
	chat, prompt := s.startChat(messages)

	resp, err := chat.SendMessage(ctx, prompt)
	if err != nil {
		rotated, rerr := s.rotateAPIKey(ctx)
		if rerr != nil {
			return nil, rerr
		}
		if !rotated {
			return nil, err
		}
		chat, prompt = s.startChat(messages)
		resp, err = chat.SendMessage(ctx, prompt)
		if err != nil {
			return nil, err
		}
	}

	if len(resp.Candidates) == 0 {
		return nil, errNoResponse
	}

	if funcs := resp.Candidates[0].FunctionCalls(); len(funcs) > 0 {
		resp, err = s.handleFunctionCall(ctx, chat, funcs, 1)
		if err != nil {
			return nil, err
		}
	}

	return &types.Message{Role: "assistant", Content: responseText(resp)}, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	var content strings.Builder
	if resp == nil {
		return ""
	}
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				content.WriteString(string(text))
			}
		}
	}
	return content.String()
}

func (s *GeminiService) runFunctionCalls(ctx context.Context, functions []genai.FunctionCall) []genai.Part {
	funcResults := make([]genai.Part, 0, len(functions))
	for _, function := range functions {
		var result string
		handler, exists := s.functionsCall[function.Name]
		if !exists {
			result = fmt.Sprintf("unknown tool %q", function.Name)
		} else if argsBytes, err := json.Marshal(function.Args); err != nil {
			result = fmt.Sprintf("invalid arguments: %v", err)
		} else if out, err := handler(ctx, argsBytes); err != nil {
			s.logger.Warn("tool call failed", zap.String("tool", function.Name), zap.Error(err))
			result = fmt.Sprintf("tool %s failed: %v", function.Name, err)
		} else {
			result = toolResult(out)
		}
		funcResults = append(funcResults, genai.FunctionResponse{
			Name:     function.Name,
			Response: map[string]any{"result": result},
		})
	}
	return funcResults
}

func (s *GeminiService) handleFunctionCall(ctx context.Context, chat *genai.ChatSession, functions []genai.FunctionCall, round int) (*genai.GenerateContentResponse, error) {
	if round > maxToolRounds {
		return nil, fmt.Errorf("too many tool rounds (%d)", round-1)
	}
	resp, err := chat.SendMessage(ctx, s.runFunctionCalls(ctx, functions)...)
	if err != nil {
		return nil, err
	}
	if len(resp.Candidates) == 0 {
		return nil, errNoResponse
	}
	if funcs := resp.Candidates[0].FunctionCalls(); len(funcs) > 0 {
		return s.handleFunctionCall(ctx, chat, funcs, round+1)
	}
	return resp, nil
}

// ChatStream streams the answer to handler, resolving tool calls between
// streamed turns.
func (s *GeminiService) ChatStream(ctx context.Context, messages []types.Message, handler types.StreamHandler) error {
	ctx = withConversation(ctx, messages)
	chat, prompt := s.startChat(messages)
	parts := []genai.Part{prompt}

	for round := 0; ; round++ {
		iter := chat.SendMessageStream(ctx, parts...)
		funcs, err := drainGemini(iter, handler)
		if err != nil && round == 0 {
			rotated, rerr := s.rotateAPIKey(ctx)
			if rerr != nil {
				return rerr
			}
			if !rotated {
				return err
			}
			chat, prompt = s.startChat(messages)
			parts = []genai.Part{prompt}
			iter = chat.SendMessageStream(ctx, parts...)
			funcs, err = drainGemini(iter, handler)
		}
		if err != nil {
			return err
		}
		if len(funcs) == 0 {
			return nil
		}
		if round >= maxToolRounds {
			return fmt.Errorf("too many tool rounds (%d)", round)
		}
		parts = s.runFunctionCalls(ctx, funcs)
	}
}

func drainGemini(iter *genai.GenerateContentResponseIterator, handler types.StreamHandler) ([]genai.FunctionCall, error) {
	var funcs []genai.FunctionCall
	for {
		resp, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return funcs, nil
		}
		if err != nil {
			return nil, err
		}
		for _, candidate := range resp.Candidates {
			funcs = append(funcs, candidate.FunctionCalls()...)
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if text, ok := part.(genai.Text); ok && handler != nil {
					handler(string(text))
				}
			}
		}
	}
}

// Summarize condenses text into bullet points without tools.
func (s *GeminiService) Summarize(ctx context.Context, text string, maxPoints int) (string, error) {
	s.mu.Lock()
	model := s.client.GenerativeModel(s.modelName)
	s.mu.Unlock()
	model.SystemInstruction = genai.NewUserContent(genai.Text(summarizePrompt))
	resp, err := model.GenerateContent(ctx, genai.Text(fmt.Sprintf("Limit to %d bullet points. Text:\n%s", maxPoints, text)))
	if err != nil {
		return "", err
	}
	return responseText(resp), nil
}

// RegisterTool exposes tool to the model.
func (s *GeminiService) RegisterTool(tool Tool) {
	properties := make(map[string]*genai.Schema, len(tool.Params))
	var required []string
	for _, p := range tool.Params {
		properties[p.Name] = geminiSchema(p)
		if p.Required {
			required = append(required, p.Name)
		}
	}
	s.RegisterFunction(tool.Name, tool.Description, properties, required, tool.Handler)
}

func geminiSchema(p ToolParam) *genai.Schema {
	schema := &genai.Schema{Description: p.Description}
	switch p.Type {
	case "integer":
		schema.Type = genai.TypeInteger
	case "number":
		schema.Type = genai.TypeNumber
	case "boolean":
		schema.Type = genai.TypeBoolean
	default:
		schema.Type = genai.TypeString
	}
	return schema
}

// RegisterFunction adds a new function to the model's capabilities
func (s *GeminiService) RegisterFunction(name, description string, parameters map[string]*genai.Schema, required []string, handler types.FunctionHandler) {
	functionDeclaration := &genai.FunctionDeclaration{
		Name:        name,
		Description: description,
	}
	if len(parameters) > 0 {
		functionDeclaration.Parameters = &genai.Schema{
			Type:       genai.TypeObject,
			Properties: parameters,
			Required:   required,
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools = append(s.tools, &genai.Tool{
		FunctionDeclarations: []*genai.FunctionDeclaration{functionDeclaration},
	})
	s.model.Tools = s.tools
	s.functionsCall[name] = handler
}
