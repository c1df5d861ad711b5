package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tenq-ai/tenq-cli/internal/application/ports"
	"github.com/tenq-ai/tenq-cli/internal/core/domain/streaming"
	streamp "github.com/tenq-ai/tenq-cli/internal/core/ports/streaming"
)

const (
	// DefaultStreamTimeout is the inactivity window: the maximum permitted
	// gap between successive reads before the stream is considered stalled.
	DefaultStreamTimeout = 120 * time.Second

	framePrefix = "data: "

	readBufferSize = 4096
)

// StreamOptions controls a single summary stream invocation.
type StreamOptions struct {
	// Force bypasses any server-side cache and forces regeneration.
	Force bool

	// Timeout overrides the inactivity window. Zero means DefaultStreamTimeout.
	Timeout time.Duration
}

// StreamClient opens summary generation streams against the TenQ API and
// decodes the newline-delimited "data:" frames into handler callbacks.
//
// Each invocation owns its own buffer, timer, and cancel function, so
// concurrent calls are fully independent.
type StreamClient struct {
	baseURL     string
	credentials ports.CredentialProvider
	httpClient  *http.Client
	logger      ports.LoggingGateway
}

// NewStreamClient creates a stream client. credentials may be nil for
// anonymous use.
func NewStreamClient(baseURL string, credentials ports.CredentialProvider, logger ports.LoggingGateway) *StreamClient {
	return &StreamClient{
		baseURL:     baseURL,
		credentials: credentials,
		// No client-level timeout: it would cap the whole stream. The
		// inactivity timer owns cancellation.
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// attempt enumerates the two-step connection state machine: one credentialed
// attempt, then at most one guest retry on 401.
type attempt int

const (
	attemptWithCredentials attempt = iota
	attemptGuest
)

// StreamSummary opens the generation stream for a filing and dispatches
// decoded frames to the handler until the body is drained, an unrecoverable
// condition occurs, or the inactivity timer fires. It returns the stage
// timeline accumulated while the stream was consumed.
//
// Callbacks run synchronously in wire order. Malformed frames are logged and
// skipped, never fatal. Terminal failures invoke handler.OnError before the
// error is returned.
func (c *StreamClient) StreamSummary(ctx context.Context, filingID int64, handler streamp.StreamHandler, opts StreamOptions) ([]streaming.StageTimingRecord, error) {
	window := opts.Timeout
	if window <= 0 {
		window = DefaultStreamTimeout
	}

	streamCtx, cancel := context.WithCancel(ctx)
	s := &streamSession{
		client:   c,
		handler:  handler,
		window:   window,
		cancel:   cancel,
		timeline: streaming.NewTimeline(time.Now()),
	}
	defer s.cleanup()

	err := s.run(streamCtx, filingID, opts.Force)
	if err != nil {
		handler.OnError(err.Error())
	}
	return s.timeline.Records(), err
}

// streamSession holds the per-invocation state: the frame buffer, the
// inactivity timer, and the cancel function shared between the timeout path
// and cleanup. Nothing here outlives the invocation.
type streamSession struct {
	client   *StreamClient
	handler  streamp.StreamHandler
	window   time.Duration
	cancel   context.CancelFunc
	timer    *time.Timer
	timedOut atomic.Bool
	once     sync.Once
	buf      []byte
	timeline *streaming.Timeline
}

func (s *streamSession) run(ctx context.Context, filingID int64, force bool) error {
	resp, err := s.connect(ctx, filingID, force)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Armed as soon as headers are in; reset on every raw read.
	s.timer = time.AfterFunc(s.window, func() {
		s.timedOut.Store(true)
		s.cancel()
	})

	return s.consume(resp.Body)
}

// connect performs the credentialed attempt and, on 401, exactly one guest
// retry with credentials omitted. A 401 on the retry is terminal.
func (s *streamSession) connect(ctx context.Context, filingID int64, force bool) (*http.Response, error) {
	resp, status, errBody, err := s.open(ctx, filingID, force, attemptWithCredentials)
	if err != nil {
		return nil, &ConnectionError{Err: err}
	}

	if status == http.StatusUnauthorized {
		s.client.logger.Log(ports.LogLevelWarn, "Authentication rejected, retrying as guest", map[string]interface{}{
			"filing_id": filingID,
		})
		resp, status, errBody, err = s.open(ctx, filingID, force, attemptGuest)
		if err != nil {
			return nil, &ConnectionError{Err: err}
		}
		if status == http.StatusUnauthorized {
			return nil, authenticationError(errBody)
		}
	}

	if status < 200 || status >= 300 {
		return nil, httpError(status, errBody)
	}
	return resp, nil
}

// open issues one POST to the generate-stream endpoint. On a 2xx it returns
// the live response; otherwise it drains and closes the body and returns the
// status and body for error mapping.
func (s *streamSession) open(ctx context.Context, filingID int64, force bool, att attempt) (*http.Response, int, []byte, error) {
	url := fmt.Sprintf("%s/api/filings/%d/generate-stream", s.client.baseURL, filingID)
	if force {
		url += "?force=true"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("User-Agent", userAgent)

	if att == attemptWithCredentials && s.client.credentials != nil {
		header, err := s.client.credentials.AuthorizationHeader(ctx)
		if err != nil {
			return nil, 0, nil, fmt.Errorf("failed to obtain credentials: %w", err)
		}
		if header != "" {
			req.Header.Set("Authorization", header)
		}
	}

	resp, err := s.client.httpClient.Do(req)
	if err != nil {
		return nil, 0, nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, resp.StatusCode, body, nil
	}
	return resp, resp.StatusCode, nil, nil
}

// consume reads raw chunks until EOF, resetting the inactivity timer on every
// read regardless of how many frames the chunk yields.
func (s *streamSession) consume(body io.Reader) error {
	chunk := make([]byte, readBufferSize)
	for {
		n, err := body.Read(chunk)
		if n > 0 {
			s.timer.Reset(s.window)
			s.feed(chunk[:n])
		}
		if err == io.EOF {
			s.flush()
			return nil
		}
		if err != nil {
			if s.timedOut.Load() {
				return &TimeoutError{Window: s.window}
			}
			return fmt.Errorf("failed to read stream: %w", err)
		}
	}
}

// feed appends raw bytes to the line buffer and processes every complete
// line. The trailing (possibly incomplete) element stays buffered, so frames
// and multi-byte UTF-8 sequences split across reads are reassembled intact.
func (s *streamSession) feed(p []byte) {
	s.buf = append(s.buf, p...)
	for {
		idx := bytes.IndexByte(s.buf, '\n')
		if idx < 0 {
			return
		}
		line := s.buf[:idx]
		s.buf = s.buf[idx+1:]
		s.handleLine(line)
	}
}

// flush processes whatever remains buffered once the body is drained, so a
// final frame without a trailing newline is not lost.
func (s *streamSession) flush() {
	if len(s.buf) == 0 {
		return
	}
	line := s.buf
	s.buf = nil
	s.handleLine(line)
}

func (s *streamSession) handleLine(line []byte) {
	line = bytes.TrimSuffix(line, []byte("\r"))
	if len(bytes.TrimSpace(line)) == 0 {
		// Keep-alive separators between frames.
		return
	}

	if !bytes.HasPrefix(line, []byte(framePrefix)) {
		s.client.logger.Log(ports.LogLevelWarn, "Skipping non-frame line in stream", map[string]interface{}{
			"line": preview(line),
		})
		return
	}

	evt, err := streaming.DecodeEvent(line[len(framePrefix):])
	if err != nil {
		s.client.logger.Log(ports.LogLevelWarn, "Skipping malformed stream frame", map[string]interface{}{
			"error": err.Error(),
			"line":  preview(line),
		})
		return
	}
	s.dispatch(evt)
}

func (s *streamSession) dispatch(evt *streaming.Event) {
	switch evt.Type {
	case streaming.EventChunk:
		s.handler.OnChunk(evt.Content)
	case streaming.EventProgress:
		s.timeline.Record(time.Now(), evt.Stage, evt.Message)
		s.handler.OnProgress(evt.Stage, evt.Message, evt.Telemetry())
	case streaming.EventStart:
		s.timeline.Record(time.Now(), streaming.StageSummarizing, evt.Message)
		s.handler.OnProgress(streaming.StageSummarizing, evt.Message, evt.Telemetry())
	case streaming.EventComplete, streaming.EventPartial:
		s.timeline.Record(time.Now(), string(evt.Type), evt.Message)
		s.handler.OnComplete(evt.SummaryID)
	case streaming.EventError:
		// The server may keep the connection open after an error frame;
		// keep reading until the body closes.
		s.handler.OnError(evt.Message)
	default:
		s.client.logger.Log(ports.LogLevelDebug, "Ignoring unknown frame type", map[string]interface{}{
			"type": string(evt.Type),
		})
	}
}

// cleanup stops the timer and aborts the in-flight request. It runs on every
// exit path and is safe to invoke more than once.
func (s *streamSession) cleanup() {
	s.once.Do(func() {
		if s.timer != nil {
			s.timer.Stop()
		}
		s.cancel()
	})
}

func preview(line []byte) string {
	const max = 120
	if len(line) > max {
		return string(line[:max]) + "..."
	}
	return string(line)
}
