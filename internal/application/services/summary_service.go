package services

import (
	"context"
	"strings"
	"time"

	"github.com/tenq-ai/tenq-cli/internal/application/ports"
	"github.com/tenq-ai/tenq-cli/internal/core/domain"
	"github.com/tenq-ai/tenq-cli/internal/core/domain/streaming"
	streamp "github.com/tenq-ai/tenq-cli/internal/core/ports/streaming"
	"github.com/tenq-ai/tenq-cli/internal/infrastructure/api"
)

// SummaryStreamer opens a summary generation stream. Implemented by
// api.StreamClient.
type SummaryStreamer interface {
	StreamSummary(ctx context.Context, filingID int64, handler streamp.StreamHandler, opts api.StreamOptions) ([]streaming.StageTimingRecord, error)
}

// StreamRequest carries the per-invocation knobs for StreamSummary.
type StreamRequest struct {
	Force bool

	// Timeout overrides the service's inactivity window when positive.
	Timeout time.Duration
}

// StreamResult is the aggregate outcome of one summary stream invocation.
type StreamResult struct {
	SummaryID int64
	Content   string
	Errors    []string
	Timeline  []streaming.StageTimingRecord
	Elapsed   time.Duration
}

// SummaryService orchestrates summary generation and retrieval for the CLI.
type SummaryService struct {
	streamer SummaryStreamer
	gateway  ports.SummaryGateway
	logger   ports.LoggingGateway
	timeout  time.Duration
}

// NewSummaryService creates a summary service. timeout is the stream
// inactivity window; zero keeps the client default.
func NewSummaryService(streamer SummaryStreamer, gateway ports.SummaryGateway, logger ports.LoggingGateway, timeout time.Duration) *SummaryService {
	return &SummaryService{
		streamer: streamer,
		gateway:  gateway,
		logger:   logger,
		timeout:  timeout,
	}
}

// StreamSummary runs one generation stream for a filing, forwarding events to
// the given handler while accumulating the full text, server error messages,
// and the stage timeline. The accumulated result is returned even when the
// stream fails partway.
func (s *SummaryService) StreamSummary(ctx context.Context, filingID int64, req StreamRequest, handler streamp.StreamHandler) (*StreamResult, error) {
	s.logger.Log(ports.LogLevelInfo, "Starting summary stream", map[string]interface{}{
		"filing_id": filingID,
		"force":     req.Force,
	})

	timeout := s.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}

	result := &StreamResult{}
	var content strings.Builder

	recording := streamp.HandlerFuncs{
		Chunk: func(text string) {
			content.WriteString(text)
			handler.OnChunk(text)
		},
		Progress: func(stage, message string, telemetry *streaming.Telemetry) {
			s.logger.Log(ports.LogLevelDebug, "Stream progress", map[string]interface{}{
				"filing_id": filingID,
				"stage":     stage,
			})
			handler.OnProgress(stage, message, telemetry)
		},
		Complete: func(summaryID int64) {
			result.SummaryID = summaryID
			handler.OnComplete(summaryID)
		},
		Error: func(message string) {
			result.Errors = append(result.Errors, message)
			handler.OnError(message)
		},
	}

	started := time.Now()
	timeline, err := s.streamer.StreamSummary(ctx, filingID, recording, api.StreamOptions{
		Force:   req.Force,
		Timeout: timeout,
	})

	result.Content = content.String()
	result.Timeline = timeline
	result.Elapsed = time.Since(started)

	if err != nil {
		s.logger.LogError(err, "Summary stream failed", map[string]interface{}{
			"filing_id": filingID,
		})
		return result, err
	}

	s.logger.Log(ports.LogLevelInfo, "Summary stream finished", map[string]interface{}{
		"filing_id":  filingID,
		"summary_id": result.SummaryID,
		"elapsed_ms": result.Elapsed.Milliseconds(),
	})
	return result, nil
}

// ListFilings returns the most recent filings known to the backend.
func (s *SummaryService) ListFilings(ctx context.Context, limit int) ([]domain.Filing, error) {
	return s.gateway.ListFilings(ctx, limit)
}

// GetSummary fetches the stored summary for a filing.
func (s *SummaryService) GetSummary(ctx context.Context, filingID int64) (*domain.Summary, error) {
	return s.gateway.GetSummary(ctx, filingID)
}

// TestConnection checks the API connection.
func (s *SummaryService) TestConnection(ctx context.Context) error {
	return s.gateway.TestConnection(ctx)
}
