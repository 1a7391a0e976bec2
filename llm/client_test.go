package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexops/deepresearch/message"
	"github.com/lexops/deepresearch/workflow"
)

func sseServer(t *testing.T, lines ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range lines {
			w.Write([]byte(line + "\n\n"))
		}
	}))
}

func contentChunk(content string) string {
	return `data: {"id":"c1","model":"m","choices":[{"index":0,"delta":{"content":"` + content + `"}}]}`
}

func TestStreamDeliversChunksAndFiltersDone(t *testing.T) {
	srv := sseServer(t,
		contentChunk("Hello"),
		contentChunk(" world"),
		`data: {"id":"c1","model":"m","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
		`data: [DONE]`,
	)
	defer srv.Close()

	var mu sync.Mutex
	var contents []string
	finish := ""
	done := make(chan struct{})
	c := NewClient()
	c.Stream(context.Background(), Request{BaseURL: srv.URL}, Handlers{
		OnChunk: func(ch *Chunk) {
			mu.Lock()
			defer mu.Unlock()
			for _, choice := range ch.Choices {
				if choice.Delta != nil && choice.Delta.Content != "" {
					contents = append(contents, choice.Delta.Content)
				}
				if choice.FinishReason != "" {
					finish = choice.FinishReason
				}
			}
		},
		OnError:    func(err error) { t.Errorf("unexpected error: %v", err) },
		OnComplete: func() { close(done) },
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not complete")
	}
	assert.Equal(t, []string{"Hello", " world"}, contents)
	assert.Equal(t, "stop", finish)
}

func TestStreamHTTPErrorReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	errs := make(chan error, 1)
	c := NewClient()
	c.Stream(context.Background(), Request{BaseURL: srv.URL}, Handlers{
		OnError:    func(err error) { errs <- err },
		OnComplete: func() { t.Error("unexpected complete") },
	})

	select {
	case err := <-errs:
		var se *workflow.ServerError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, http.StatusUnauthorized, se.Code)
	case <-time.After(2 * time.Second):
		t.Fatal("no error reported")
	}
}

func TestStreamDisposeSilencesHandlers(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(contentChunk("first") + "\n\n"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-release
	}))
	defer srv.Close()
	defer close(release)

	got := make(chan struct{}, 1)
	terminal := make(chan string, 2)
	c := NewClient()
	sub := c.Stream(context.Background(), Request{BaseURL: srv.URL}, Handlers{
		OnChunk:    func(*Chunk) { got <- struct{}{} },
		OnError:    func(error) { terminal <- "error" },
		OnComplete: func() { terminal <- "complete" },
	})

	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("no chunk before dispose")
	}
	sub.Dispose()

	select {
	case ev := <-terminal:
		t.Fatalf("terminal event after dispose: %s", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStreamRawToContextAssemblesResult(t *testing.T) {
	srv := sseServer(t,
		contentChunk("Hello"),
		contentChunk(", world"),
		`data: {"id":"c1","model":"m","choices":[{"index":0,"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`,
		`data: [DONE]`,
	)
	defer srv.Close()

	var emitted []*Chunk
	c := NewClient()
	wc := c.StreamRawToContext(context.Background(), Request{BaseURL: srv.URL},
		workflow.ListenerFuncs[*Chunk]{Next: func(ch *Chunk) { emitted = append(emitted, ch) }})

	got, err := wc.Get(context.Background())
	require.NoError(t, err)
	require.Len(t, got.Choices, 1)
	require.NotNil(t, got.Choices[0].Message)
	assert.Equal(t, "Hello, world", got.Choices[0].Message.Content)
	assert.Equal(t, "assistant", got.Choices[0].Message.Role)
	assert.Equal(t, "stop", got.Choices[0].FinishReason)
	require.NotNil(t, got.Usage)
	assert.Equal(t, 5, got.Usage.TotalTokens)
	assert.Len(t, emitted, 3)
}

func TestStreamRawToContextErrorFailsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient()
	wc := c.StreamRawToContext(context.Background(), Request{BaseURL: srv.URL}, nil)
	_, err := wc.Get(context.Background())
	var se *workflow.ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.Code)
}

func TestStreamToContextStripsCitations(t *testing.T) {
	srv := sseServer(t,
		contentChunk("A "),
		contentChunk("<citation><id>d1</id>"),
		contentChunk("B"),
		contentChunk("</citation>"),
		contentChunk(" C"),
		`data: [DONE]`,
	)
	defer srv.Close()

	var visible string
	var citations []message.Citation
	c := NewClient()
	wc := c.StreamToContext(context.Background(), Request{BaseURL: srv.URL},
		workflow.ListenerFuncs[*CitedChunk]{Next: func(ch *CitedChunk) {
			for _, choice := range ch.Choices {
				if choice.Delta != nil {
					visible += choice.Delta.Content
					citations = append(citations, choice.Delta.Citations...)
				}
			}
		}})

	got, err := wc.Get(context.Background())
	require.NoError(t, err)
	require.Len(t, got.Choices, 1)
	msg := got.Choices[0].Message
	require.NotNil(t, msg)
	assert.Equal(t, "A B C", msg.Content)
	require.Len(t, msg.Citations, 1)
	assert.Equal(t, message.Citation{Index: 0, ID: "d1", Start: 2, End: 3}, msg.Citations[0])

	assert.Equal(t, "A B C", visible)
	require.Len(t, citations, 1)
	assert.Equal(t, "d1", citations[0].ID)
}

func TestStreamToContextErrorCompletesWithPartial(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient()
	wc := c.StreamToContext(context.Background(), Request{BaseURL: srv.URL}, nil)
	got, err := wc.Get(context.Background())
	require.NoError(t, err)
	require.Len(t, got.Choices, 1)
	assert.Equal(t, FinishReasonError, got.Choices[0].FinishReason)
}

func TestStreamToContextCancelCompletesWithPartial(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(contentChunk("partial text") + "\n\n"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-release
	}))
	defer srv.Close()
	defer close(release)

	seen := make(chan struct{}, 1)
	c := NewClient()
	wc := c.StreamToContext(context.Background(), Request{BaseURL: srv.URL},
		workflow.ListenerFuncs[*CitedChunk]{Next: func(*CitedChunk) {
			select {
			case seen <- struct{}{}:
			default:
			}
		}})

	select {
	case <-seen:
	case <-time.After(2 * time.Second):
		t.Fatal("no delta before cancel")
	}
	wc.Cancel()

	got, err := wc.Get(context.Background())
	require.NoError(t, err)
	require.Len(t, got.Choices, 1)
	assert.Equal(t, FinishReasonCancelled, got.Choices[0].FinishReason)
	require.NotNil(t, got.Choices[0].Message)
	assert.Equal(t, "partial text", got.Choices[0].Message.Content)
}
