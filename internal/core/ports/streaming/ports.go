package streaming

import (
	"github.com/tenq-ai/tenq-cli/internal/core/domain/streaming"
)

// StreamHandler receives decoded summary stream events. Callbacks are invoked
// synchronously from the read loop, in the order frames arrive on the wire;
// implementations must not block indefinitely.
type StreamHandler interface {
	// OnChunk receives an incremental fragment of summary text.
	OnChunk(text string)

	// OnProgress reports a server-side processing stage. Telemetry is nil
	// when the frame carried no numeric fields.
	OnProgress(stage, message string, telemetry *streaming.Telemetry)

	// OnComplete reports the identifier of the finished summary. This is the
	// terminal success callback; trailing frames may still arrive after it.
	OnComplete(summaryID int64)

	// OnError reports a server-emitted error message. It does not imply the
	// stream has closed.
	OnError(message string)
}

// HandlerFuncs adapts plain functions to the StreamHandler interface. Nil
// members are skipped.
type HandlerFuncs struct {
	Chunk    func(text string)
	Progress func(stage, message string, telemetry *streaming.Telemetry)
	Complete func(summaryID int64)
	Error    func(message string)
}

func (h HandlerFuncs) OnChunk(text string) {
	if h.Chunk != nil {
		h.Chunk(text)
	}
}

func (h HandlerFuncs) OnProgress(stage, message string, telemetry *streaming.Telemetry) {
	if h.Progress != nil {
		h.Progress(stage, message, telemetry)
	}
}

func (h HandlerFuncs) OnComplete(summaryID int64) {
	if h.Complete != nil {
		h.Complete(summaryID)
	}
}

func (h HandlerFuncs) OnError(message string) {
	if h.Error != nil {
		h.Error(message)
	}
}
