package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tieubaoca/edu-assistant/types"
)

func toolByName(t *testing.T, tools []Tool, name string) Tool {
	t.Helper()
	for _, tool := range tools {
		if tool.Name == name {
			return tool
		}
	}
	t.Fatalf("tool %s not registered", name)
	return Tool{}
}

func callTool(t *testing.T, ctx context.Context, tool Tool, args string) string {
	t.Helper()
	out, err := tool.Handler(ctx, []byte(args))
	require.NoError(t, err)
	return toolResult(out)
}

func TestDocumentTools_EmptyLibrary(t *testing.T) {
	f := newLifecycleFixture(t)
	tools := DocumentTools(f.svc, mustSession("1"), nil)
	ctx := context.Background()

	assert.Equal(t, "No documents available.", callTool(t, ctx, toolByName(t, tools, ToolListDocuments), ""))
	assert.Equal(t, NoPassagesFound, callTool(t, ctx, toolByName(t, tools, ToolSearchDocuments), `{"query":"photosynthesis"}`))
	assert.Equal(t, "Query is required.", callTool(t, ctx, toolByName(t, tools, ToolSearchDocuments), `{"query":"  "}`))
}

func TestDocumentTools_SearchAndList(t *testing.T) {
	f := newLifecycleFixture(t)
	session := mustSession("1")
	ctx := context.Background()
	_, err := f.svc.ProcessDocument(ctx, session, "syllabus.pdf", []byte("syllabus"))
	require.NoError(t, err)

	tools := DocumentTools(f.svc, session, nil)

	listed := callTool(t, ctx, toolByName(t, tools, ToolListDocuments), "{}")
	assert.True(t, strings.HasPrefix(listed, "- syllabus.pdf (uploaded: "))

	found := callTool(t, ctx, toolByName(t, tools, ToolSearchDocuments), `{"query":"photosynthesis","limit":1}`)
	assert.True(t, strings.HasPrefix(found, "[1] (syllabus.pdf) "))
	assert.Contains(t, found, "photosynthesis")

	other := DocumentTools(f.svc, mustSession("2"), nil)
	assert.Equal(t, NoPassagesFound, callTool(t, ctx, toolByName(t, other, ToolSearchDocuments), `{"query":"photosynthesis"}`))
}

func TestDocumentTools_InvalidArguments(t *testing.T) {
	f := newLifecycleFixture(t)
	tools := DocumentTools(f.svc, mustSession("1"), nil)

	_, err := toolByName(t, tools, ToolSearchDocuments).Handler(context.Background(), []byte("{not json"))
	assert.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestDocumentTools_Summaries(t *testing.T) {
	f := newLifecycleFixture(t)
	var gotPoints int
	summarize := func(_ context.Context, text string, maxPoints int) (string, error) {
		gotPoints = maxPoints
		return "• " + strings.ToUpper(text), nil
	}
	tools := DocumentTools(f.svc, mustSession("1"), summarize)
	ctx := context.Background()

	assert.Equal(t, "• LEAVES", callTool(t, ctx, toolByName(t, tools, ToolSummarizeText), `{"text":" leaves "}`))
	assert.Equal(t, defaultMaxPoints, gotPoints)
	assert.Equal(t, "Nothing to summarize.", callTool(t, ctx, toolByName(t, tools, ToolSummarizeText), `{"text":""}`))

	last := toolByName(t, tools, ToolSummarizeLastAnswer)
	assert.Equal(t, "No previous answer to summarize.", callTool(t, ctx, last, "{}"))

	convo := withConversation(ctx, []types.Message{
		{Role: "user", Content: "what is chlorophyll?"},
		{Role: "assistant", Content: "a pigment"},
		{Role: "user", Content: "summarize that"},
	})
	assert.Equal(t, "• A PIGMENT", callTool(t, convo, last, `{"max_points":3}`))
	assert.Equal(t, 3, gotPoints)
}

func TestFallbackSummary(t *testing.T) {
	assert.Equal(t, "• first\n• second", fallbackSummary("first\n\n  second  "))

	long := strings.Repeat("a", 600)
	out := fallbackSummary(long)
	assert.True(t, strings.HasSuffix(out, "..."))
	assert.Len(t, out, len("• ")+500+3)
}

func TestToolResult(t *testing.T) {
	assert.Equal(t, "plain", toolResult("plain"))
	assert.Equal(t, "", toolResult(nil))
	assert.Equal(t, `{"n":1}`, toolResult(map[string]int{"n": 1}))
}
