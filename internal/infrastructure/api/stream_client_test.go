package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/tenq-ai/tenq-cli/internal/application/ports"
	"github.com/tenq-ai/tenq-cli/internal/core/domain/streaming"
)

// MockLogger implements the LoggingGateway interface for testing
type MockLogger struct{}

func (m *MockLogger) Log(level ports.LogLevel, message string, fields map[string]interface{}) {}
func (m *MockLogger) LogError(err error, message string, fields map[string]interface{})       {}
func (m *MockLogger) SetLogLevel(level ports.LogLevel)                                        {}
func (m *MockLogger) GetLogLevel() ports.LogLevel                                             { return ports.LogLevelInfo }

// staticCredentials implements the CredentialProvider port with a fixed header.
type staticCredentials struct {
	header string
}

func (s *staticCredentials) AuthorizationHeader(ctx context.Context) (string, error) {
	return s.header, nil
}

// recordingHandler records callback invocations in arrival order.
type recordingHandler struct {
	mu    sync.Mutex
	calls []string
}

func (h *recordingHandler) record(call string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, call)
}

func (h *recordingHandler) OnChunk(text string) { h.record("chunk:" + text) }

func (h *recordingHandler) OnProgress(stage, message string, telemetry *streaming.Telemetry) {
	h.record(fmt.Sprintf("progress:%s:%s", stage, message))
}

func (h *recordingHandler) OnComplete(summaryID int64) {
	h.record(fmt.Sprintf("complete:%d", summaryID))
}

func (h *recordingHandler) OnError(message string) { h.record("error:" + message) }

func (h *recordingHandler) Calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

func writeFrames(w http.ResponseWriter, frames ...string) {
	flusher := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/event-stream")
	for _, frame := range frames {
		fmt.Fprintf(w, "data: %s\n", frame)
		flusher.Flush()
	}
}

func TestStreamSummary_DispatchOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/filings/7/generate-stream", r.URL.Path)
		writeFrames(w,
			`{"type":"progress","stage":"fetching","message":"Fetching filing document..."}`,
			`{"type":"chunk","content":"Executive summary text"}`,
			`{"type":"complete","summary_id":42}`,
		)
	}))
	defer server.Close()

	client := NewStreamClient(server.URL, nil, &MockLogger{})
	handler := &recordingHandler{}

	timeline, err := client.StreamSummary(context.Background(), 7, handler, StreamOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"progress:fetching:Fetching filing document...",
		"chunk:Executive summary text",
		"complete:42",
	}, handler.Calls())

	// Progress and complete frames produce stage timings; chunks do not.
	require.Len(t, timeline, 2)
	assert.Equal(t, "fetching", timeline[0].Stage)
	assert.Equal(t, "complete", timeline[1].Stage)
}

func TestStreamSummary_ForceFlag(t *testing.T) {
	var query string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		writeFrames(w, `{"type":"complete","summary_id":1}`)
	}))
	defer server.Close()

	client := NewStreamClient(server.URL, nil, &MockLogger{})
	_, err := client.StreamSummary(context.Background(), 7, &recordingHandler{}, StreamOptions{Force: true})
	require.NoError(t, err)
	assert.Equal(t, "force=true", query)
}

func TestStreamSummary_StartFrameAliasesProgress(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeFrames(w,
			`{"type":"start","message":"Summary generation started"}`,
			`{"type":"complete","summary_id":3}`,
		)
	}))
	defer server.Close()

	client := NewStreamClient(server.URL, nil, &MockLogger{})
	handler := &recordingHandler{}

	timeline, err := client.StreamSummary(context.Background(), 12, handler, StreamOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"progress:summarizing:Summary generation started",
		"complete:3",
	}, handler.Calls())
	require.Len(t, timeline, 2)
	assert.Equal(t, "summarizing", timeline[0].Stage)
}

func TestStreamSummary_MalformedFramesSkipped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"type\":\"chunk\",\"content\":\"first\"}\n")
		fmt.Fprint(w, "data: {not json at all\n")
		fmt.Fprint(w, "unexpected line without prefix\n")
		fmt.Fprint(w, "data: {\"type\":\"chunk\",\"content\":\"second\"}\n")
		flusher.Flush()
	}))
	defer server.Close()

	client := NewStreamClient(server.URL, nil, &MockLogger{})
	handler := &recordingHandler{}

	_, err := client.StreamSummary(context.Background(), 7, handler, StreamOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"chunk:first", "chunk:second"}, handler.Calls())
}

func TestStreamSummary_TrailingFrameWithoutNewline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Final frame is separated, not terminated, by newlines.
		fmt.Fprint(w, "data: {\"type\":\"chunk\",\"content\":\"a\"}\ndata: {\"type\":\"complete\",\"summary_id\":9}")
	}))
	defer server.Close()

	client := NewStreamClient(server.URL, nil, &MockLogger{})
	handler := &recordingHandler{}

	_, err := client.StreamSummary(context.Background(), 7, handler, StreamOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"chunk:a", "complete:9"}, handler.Calls())
}

func TestStreamSummary_GuestRetryOn401(t *testing.T) {
	var mu sync.Mutex
	var authHeaders []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		authHeaders = append(authHeaders, r.Header.Get("Authorization"))
		mu.Unlock()

		if r.Header.Get("Authorization") != "" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"detail":"Session expired"}`)
			return
		}
		writeFrames(w, `{"type":"complete","summary_id":5}`)
	}))
	defer server.Close()

	client := NewStreamClient(server.URL, &staticCredentials{header: "Bearer stale-token"}, &MockLogger{})
	handler := &recordingHandler{}

	_, err := client.StreamSummary(context.Background(), 7, handler, StreamOptions{})
	require.NoError(t, err)

	// Exactly one credentialed attempt, then exactly one guest retry.
	require.Equal(t, []string{"Bearer stale-token", ""}, authHeaders)
	assert.Equal(t, []string{"complete:5"}, handler.Calls())
}

func TestStreamSummary_AuthenticationErrorWhenRetryRejected(t *testing.T) {
	var requests int
	var mu sync.Mutex

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		mu.Unlock()
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"detail":"Guest access disabled"}`)
	}))
	defer server.Close()

	client := NewStreamClient(server.URL, &staticCredentials{header: "Bearer token"}, &MockLogger{})
	handler := &recordingHandler{}

	_, err := client.StreamSummary(context.Background(), 7, handler, StreamOptions{})

	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "Guest access disabled", authErr.Message)
	assert.Equal(t, 2, requests, "401 retry must happen at most once, never recurse")
	assert.Equal(t, []string{"error:Guest access disabled"}, handler.Calls())
}

func TestStreamSummary_HTTPErrorMapping(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantMessage string
	}{
		{
			name:        "body detail takes precedence over status default",
			status:      http.StatusTooManyRequests,
			body:        `{"detail":"Rate limit exceeded"}`,
			wantMessage: "Rate limit exceeded",
		},
		{
			name:        "message field is honored",
			status:      http.StatusBadRequest,
			body:        `{"message":"Unknown filing"}`,
			wantMessage: "Unknown filing",
		},
		{
			name:        "403 without body",
			status:      http.StatusForbidden,
			body:        "",
			wantMessage: "permission denied",
		},
		{
			name:        "429 without body",
			status:      http.StatusTooManyRequests,
			body:        "not json",
			wantMessage: "rate limited, try again later",
		},
		{
			name:        "5xx without body",
			status:      http.StatusBadGateway,
			body:        "",
			wantMessage: "server error, try again later",
		},
		{
			name:        "other status without body",
			status:      http.StatusNotFound,
			body:        "",
			wantMessage: "request failed with status 404",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var requests int
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				requests++
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			client := NewStreamClient(server.URL, nil, &MockLogger{})
			_, err := client.StreamSummary(context.Background(), 7, &recordingHandler{}, StreamOptions{})

			var httpErr *HTTPError
			require.ErrorAs(t, err, &httpErr)
			assert.Equal(t, tt.status, httpErr.StatusCode)
			assert.Equal(t, tt.wantMessage, httpErr.Error())
			assert.Equal(t, 1, requests, "non-401 errors must not be retried")
		})
	}
}

func TestStreamSummary_InactivityTimeout(t *testing.T) {
	aborted := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeFrames(w, `{"type":"progress","stage":"analyzing","message":"working"}`)
		// Go silent; the client must abort the request.
		<-r.Context().Done()
		close(aborted)
	}))
	defer server.Close()

	client := NewStreamClient(server.URL, nil, &MockLogger{})
	handler := &recordingHandler{}

	_, err := client.StreamSummary(context.Background(), 7, handler, StreamOptions{Timeout: 100 * time.Millisecond})

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, 100*time.Millisecond, timeoutErr.Window)
	assert.Contains(t, err.Error(), "100ms")

	select {
	case <-aborted:
	case <-time.After(2 * time.Second):
		t.Fatal("server never observed the aborted request")
	}

	calls := handler.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "progress:analyzing:working", calls[0])
	assert.Contains(t, calls[1], "stream timed out")
}

func TestStreamSummary_TimerResetsOnHeartbeats(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		// Each write is inside the window; the total exceeds it. The timer
		// must reset on every read, so the stream still completes.
		for i := 0; i < 4; i++ {
			fmt.Fprintf(w, "data: {\"type\":\"progress\",\"stage\":\"analyzing\",\"message\":\"hb %d\"}\n", i)
			flusher.Flush()
			time.Sleep(60 * time.Millisecond)
		}
		fmt.Fprint(w, "data: {\"type\":\"complete\",\"summary_id\":8}\n")
		flusher.Flush()
	}))
	defer server.Close()

	client := NewStreamClient(server.URL, nil, &MockLogger{})
	handler := &recordingHandler{}

	_, err := client.StreamSummary(context.Background(), 7, handler, StreamOptions{Timeout: 150 * time.Millisecond})
	require.NoError(t, err)

	calls := handler.Calls()
	require.Len(t, calls, 5)
	assert.Equal(t, "complete:8", calls[4])
}

func TestStreamSummary_ErrorFrameDoesNotCloseStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeFrames(w,
			`{"type":"error","message":"Model overloaded"}`,
			`{"type":"chunk","content":"still streaming"}`,
		)
	}))
	defer server.Close()

	client := NewStreamClient(server.URL, nil, &MockLogger{})
	handler := &recordingHandler{}

	// The error callback is the primary channel; the operation itself
	// completes once the body drains.
	_, err := client.StreamSummary(context.Background(), 7, handler, StreamOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"error:Model overloaded", "chunk:still streaming"}, handler.Calls())
}

func TestStreamSummary_ConnectionError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // nothing listening anymore

	client := NewStreamClient(server.URL, nil, &MockLogger{})
	_, err := client.StreamSummary(context.Background(), 7, &recordingHandler{}, StreamOptions{})

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
}

// TestFrameParser_ArbitraryChunking verifies that frame dispatch is invariant
// under how the raw bytes are chunked across reads, including cuts inside a
// multi-byte UTF-8 sequence and inside the "data: " prefix.
func TestFrameParser_ArbitraryChunking(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		contents := rapid.SliceOfN(rapid.String(), 1, 8).Draw(t, "contents")

		var wire strings.Builder
		var want []string
		wire.WriteString(`data: {"type":"progress","stage":"fetching","message":"Fetching filing…"}` + "\n")
		want = append(want, "progress:fetching:Fetching filing…")
		for _, content := range contents {
			payload, err := json.Marshal(map[string]string{"type": "chunk", "content": content})
			require.NoError(t, err)
			wire.WriteString("data: " + string(payload) + "\n")
			want = append(want, "chunk:"+content)
		}
		wire.WriteString(`data: {"type":"complete","summary_id":42}` + "\n")
		want = append(want, "complete:42")

		handler := &recordingHandler{}
		session := &streamSession{
			client:   NewStreamClient("http://example.invalid", nil, &MockLogger{}),
			handler:  handler,
			window:   time.Second,
			cancel:   func() {},
			timeline: streaming.NewTimeline(time.Now()),
		}

		// Feed the wire bytes in randomly sized pieces.
		data := []byte(wire.String())
		for len(data) > 0 {
			n := rapid.IntRange(1, len(data)).Draw(t, "n")
			session.feed(data[:n])
			data = data[n:]
		}
		session.flush()

		assert.Equal(t, want, handler.Calls())
	})
}

func TestStreamSession_CleanupIdempotent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	session := &streamSession{
		client:   NewStreamClient("http://example.invalid", nil, &MockLogger{}),
		handler:  &recordingHandler{},
		window:   time.Minute,
		cancel:   cancel,
		timeline: streaming.NewTimeline(time.Now()),
	}
	session.timer = time.AfterFunc(time.Minute, func() {})

	// Simulate multiple exit paths racing into cleanup.
	assert.NotPanics(t, func() {
		session.cleanup()
		session.cleanup()
		session.cleanup()
	})

	assert.False(t, session.timer.Stop(), "timer must already be stopped")
	select {
	case <-ctx.Done():
	default:
		t.Fatal("cleanup must abort the stream context")
	}
}

func TestStreamSummary_ConcurrentInvocationsAreIndependent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id int64
		fmt.Sscanf(r.URL.Path, "/api/filings/%d/generate-stream", &id)
		writeFrames(w,
			fmt.Sprintf(`{"type":"chunk","content":"summary for %d"}`, id),
			fmt.Sprintf(`{"type":"complete","summary_id":%d}`, id),
		)
	}))
	defer server.Close()

	client := NewStreamClient(server.URL, nil, &MockLogger{})

	var wg sync.WaitGroup
	for _, id := range []int64{101, 202, 303} {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			handler := &recordingHandler{}
			_, err := client.StreamSummary(context.Background(), id, handler, StreamOptions{})
			assert.NoError(t, err)
			assert.Equal(t, []string{
				fmt.Sprintf("chunk:summary for %d", id),
				fmt.Sprintf("complete:%d", id),
			}, handler.Calls())
		}(id)
	}
	wg.Wait()
}
