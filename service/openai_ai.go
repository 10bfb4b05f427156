package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/tieubaoca/edu-assistant/types"
	"go.uber.org/zap"
)

var (
	SystemMessageEducationalAssistant = openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: SystemPrompt,
	}

	errNoResponse = errors.New("no response generated")
)

type OpenAIService struct {
	client        *openai.Client
	functionsCall map[string]types.FunctionHandler
	tools         []openai.Tool
	model         string
	logger        *zap.Logger
}

func NewOpenAIService(baseURL string, apiKey, model string, logger *zap.Logger) *OpenAIService {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	client := openai.NewClientWithConfig(config)
	return &OpenAIService{
		client:        client,
		functionsCall: make(map[string]types.FunctionHandler),
		tools:         make([]openai.Tool, 0),
		model:         model,
		logger:        logger,
	}
}

func (s *OpenAIService) buildMessages(messages []types.Message) []openai.ChatCompletionMessage {
	openaiMessages := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	openaiMessages = append(openaiMessages, SystemMessageEducationalAssistant)
	for _, msg := range trimHistory(messages) {
		role := openai.ChatMessageRoleUser
		if msg.Role == openai.ChatMessageRoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		openaiMessages = append(openaiMessages, openai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Content,
		})
	}
	return openaiMessages
}

func (s *OpenAIService) request(messages []openai.ChatCompletionMessage) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Messages:    messages,
		Model:       s.model,
		Temperature: 0.3,
	}
	if len(s.tools) > 0 {
		req.Tools = s.tools
	}
	return req
}

func (s *OpenAIService) Chat(ctx context.Context, messages []types.Message) (*types.Message, error) {
	ctx = withConversation(ctx, messages)
	openaiMessages := s.buildMessages(messages)

	resp, err := s.client.CreateChatCompletion(ctx, s.request(openaiMessages))
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errNoResponse
	}

	if resp.Choices[0].FinishReason == openai.FinishReasonToolCalls || len(resp.Choices[0].Message.ToolCalls) > 0 {
		resp, err = s.handleFunctionCall(ctx, openaiMessages, resp, 1)
		if err != nil {
			return nil, err
		}
	}

	return &types.Message{
		Role:    openai.ChatMessageRoleAssistant,
		Content: resp.Choices[0].Message.Content,
	}, nil
}

// ChatStream streams the answer to handler. Tool calls requested mid-stream
// are executed and the stream is reopened with their results.
func (s *OpenAIService) ChatStream(ctx context.Context, messages []types.Message, streamHandler types.StreamHandler) error {
	ctx = withConversation(ctx, messages)
	openaiMessages := s.buildMessages(messages)

	for round := 0; ; round++ {
		req := s.request(openaiMessages)
		req.Stream = true
		stream, err := s.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			return err
		}
		content, calls, err := s.drainStream(stream, streamHandler)
		stream.Close()
		if err != nil {
			return err
		}
		if len(calls) == 0 {
			return nil
		}
		if round >= maxToolRounds {
			return fmt.Errorf("too many tool rounds (%d)", round)
		}
		openaiMessages = append(openaiMessages, openai.ChatCompletionMessage{
			Role:      openai.ChatMessageRoleAssistant,
			Content:   content,
			ToolCalls: calls,
		})
		openaiMessages = append(openaiMessages, s.runToolCalls(ctx, calls)...)
	}
}

func (s *OpenAIService) drainStream(stream *openai.ChatCompletionStream, streamHandler types.StreamHandler) (string, []openai.ToolCall, error) {
	var content strings.Builder
	pending := make(map[int]*openai.ToolCall)
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", nil, err
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta
		if delta.Content != "" {
			content.WriteString(delta.Content)
			if streamHandler != nil {
				streamHandler(delta.Content)
			}
		}
		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			call, ok := pending[idx]
			if !ok {
				call = &openai.ToolCall{Type: openai.ToolTypeFunction}
				pending[idx] = call
			}
			if tc.ID != "" {
				call.ID = tc.ID
			}
			if tc.Function.Name != "" {
				call.Function.Name = tc.Function.Name
			}
			call.Function.Arguments += tc.Function.Arguments
		}
	}

	indexes := make([]int, 0, len(pending))
	for idx := range pending {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)
	calls := make([]openai.ToolCall, 0, len(indexes))
	for _, idx := range indexes {
		calls = append(calls, *pending[idx])
	}
	return content.String(), calls, nil
}

// RegisterTool exposes tool to the model.
func (s *OpenAIService) RegisterTool(tool Tool) {
	params := jsonschema.Definition{
		Type:       jsonschema.Object,
		Properties: make(map[string]jsonschema.Definition, len(tool.Params)),
	}
	for _, p := range tool.Params {
		params.Properties[p.Name] = jsonschema.Definition{
			Type:        jsonschema.DataType(p.Type),
			Description: p.Description,
		}
		if p.Required {
			params.Required = append(params.Required, p.Name)
		}
	}
	s.RegisterFunctionCall(tool.Name, tool.Description, params, tool.Handler)
}

func (s *OpenAIService) RegisterFunctionCall(name, description string, params jsonschema.Definition, handler types.FunctionHandler) {
	if s.functionsCall == nil {
		s.functionsCall = make(map[string]types.FunctionHandler)
	}
	f := openai.FunctionDefinition{
		Name:        name,
		Description: description,
		Parameters:  params,
	}
	t := openai.Tool{
		Type:     openai.ToolTypeFunction,
		Function: &f,
	}
	s.functionsCall[name] = handler
	s.tools = append(s.tools, t)
}

// Summarize condenses text into bullet points without tools.
func (s *OpenAIService) Summarize(ctx context.Context, text string, maxPoints int) (string, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		Temperature: 0.3,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: summarizePrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("Limit to %d bullet points. Text:\n%s", maxPoints, text)},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errNoResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// runToolCalls executes calls and returns one tool message per call. A
// failing tool reports its error to the model instead of aborting the answer.
func (s *OpenAIService) runToolCalls(ctx context.Context, calls []openai.ToolCall) []openai.ChatCompletionMessage {
	results := make([]openai.ChatCompletionMessage, 0, len(calls))
	for _, toolCall := range calls {
		if toolCall.Type != "" && toolCall.Type != openai.ToolTypeFunction {
			continue
		}
		var content string
		handler := s.functionsCall[toolCall.Function.Name]
		if handler == nil {
			content = fmt.Sprintf("unknown tool %q", toolCall.Function.Name)
		} else if result, err := handler(ctx, []byte(toolCall.Function.Arguments)); err != nil {
			s.logger.Warn("tool call failed", zap.String("tool", toolCall.Function.Name), zap.Error(err))
			content = fmt.Sprintf("tool %s failed: %v", toolCall.Function.Name, err)
		} else {
			content = toolResult(result)
		}
		s.logger.Debug("tool call", zap.String("tool", toolCall.Function.Name), zap.Int("result_len", len(content)))
		results = append(results, openai.ChatCompletionMessage{
			Role:       openai.ChatMessageRoleTool,
			Content:    content,
			Name:       toolCall.Function.Name,
			ToolCallID: toolCall.ID,
		})
	}
	return results
}

func (s *OpenAIService) handleFunctionCall(ctx context.Context, openaiMessages []openai.ChatCompletionMessage, resp openai.ChatCompletionResponse, round int) (openai.ChatCompletionResponse, error) {
	if round > maxToolRounds {
		return openai.ChatCompletionResponse{}, fmt.Errorf("too many tool rounds (%d)", round-1)
	}
	openaiMessages = append(openaiMessages, resp.Choices[0].Message)
	openaiMessages = append(openaiMessages, s.runToolCalls(ctx, resp.Choices[0].Message.ToolCalls)...)

	resp, err := s.client.CreateChatCompletion(ctx, s.request(openaiMessages))
	if err != nil {
		return openai.ChatCompletionResponse{}, err
	}
	if len(resp.Choices) == 0 {
		return openai.ChatCompletionResponse{}, errNoResponse
	}
	if resp.Choices[0].FinishReason == openai.FinishReasonToolCalls || len(resp.Choices[0].Message.ToolCalls) > 0 {
		return s.handleFunctionCall(ctx, openaiMessages, resp, round+1)
	}
	return resp, nil
}
