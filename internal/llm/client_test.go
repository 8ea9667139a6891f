package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSSEConcatenatesMultiLineDataFrames(t *testing.T) {
	// A single logical event whose content value contains an embedded
	// newline arrives as two "data:"-prefixed physical lines that the
	// SSE spec requires rejoining with "\n" before parsing.
	body := "data: {\"choices\":[{\"delta\":{\"content\":\"line1\n" +
		"data: line2\"}}]}\n\n" +
		"data: [DONE]\n\n"

	resp, err := parseSSE(strings.NewReader(body), "gpt-test")
	require.NoError(t, err)
	require.Equal(t, "line1\nline2", resp.Content)
}

func TestParseSSEFallsBackToReasoningContent(t *testing.T) {
	body := "data: {\"choices\":[{\"delta\":{\"reasoning_content\":\"thinking...\"}}]}\n\n" +
		"data: [DONE]\n\n"
	resp, err := parseSSE(strings.NewReader(body), "gpt-test")
	require.NoError(t, err)
	require.Equal(t, "thinking...", resp.Content)
}

func TestParseSSEAssemblesStreamedToolCallArguments(t *testing.T) {
	frame1 := `data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"shell.exec","arguments":"{\"cmd\":"}}]}}]}` + "\n\n"
	frame2 := `data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"ls\"}"}}]}}]}` + "\n\n"
	body := frame1 + frame2 + "data: [DONE]\n\n"

	resp, err := parseSSE(strings.NewReader(body), "gpt-test")
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	require.Equal(t, "shell.exec", resp.ToolCalls[0].Name)
	require.Equal(t, `{"cmd":"ls"}`, resp.ToolCalls[0].Arguments)
}

func TestParseSSEEmptyStreamReturnsErrEmptyStream(t *testing.T) {
	_, err := parseSSE(strings.NewReader("data: [DONE]\n\n"), "gpt-test")
	require.Error(t, err)
	_, ok := err.(ErrEmptyStream)
	require.True(t, ok)
}

func TestChatRetriesOnEmptyStreamThenSucceeds(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "text/event-stream")
		if calls < 2 {
			w.Write([]byte("data: [DONE]\n\n"))
			return
		}
		w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\ndata: [DONE]\n\n"))
	}))
	defer server.Close()

	p := NewHTTPChatProvider(server.URL, "test-key")
	resp, err := p.Chat(context.Background(), Request{Model: "gpt-test", Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Content)
	require.Equal(t, 2, calls)
}

func TestChatFallsBackToNonStreamingJSONBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"plain json body"}}]}`))
	}))
	defer server.Close()

	p := NewHTTPChatProvider(server.URL, "test-key")
	resp, err := p.Chat(context.Background(), Request{Model: "gpt-test", Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	require.NoError(t, err)
	require.Equal(t, "plain json body", resp.Content)
}

func TestChatSurfacesHTTPErrorWithoutRetry(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"bad key"}`))
	}))
	defer server.Close()

	p := NewHTTPChatProvider(server.URL, "bad-key")
	_, err := p.Chat(context.Background(), Request{Model: "gpt-test", Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}
