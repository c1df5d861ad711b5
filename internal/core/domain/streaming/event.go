package streaming

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType discriminates the frames emitted by the summary stream.
type EventType string

const (
	EventChunk    EventType = "chunk"
	EventProgress EventType = "progress"
	EventComplete EventType = "complete"
	EventPartial  EventType = "partial"
	EventError    EventType = "error"
	EventStart    EventType = "start"
)

// StageSummarizing is the stage reported for "start" frames, which carry no
// stage of their own.
const StageSummarizing = "summarizing"

// Event is one decoded frame from the summary stream. Only the fields
// relevant to the frame's Type are populated.
type Event struct {
	Type      EventType `json:"type"`
	Content   string    `json:"content,omitempty"`
	Stage     string    `json:"stage,omitempty"`
	Message   string    `json:"message,omitempty"`
	SummaryID int64     `json:"summary_id,omitempty"`

	ElapsedSeconds *float64 `json:"elapsed_seconds,omitempty"`
	HeartbeatCount *int     `json:"heartbeat_count,omitempty"`
	Percent        *float64 `json:"percent,omitempty"`
}

// Telemetry carries the optional numeric fields of a progress frame.
type Telemetry struct {
	ElapsedSeconds *float64
	HeartbeatCount *int
	Percent        *float64
}

// DecodeEvent parses a single frame payload (the JSON after the "data: "
// prefix) into an Event.
func DecodeEvent(payload []byte) (*Event, error) {
	var evt Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("failed to decode stream frame: %w", err)
	}
	if evt.Type == "" {
		return nil, fmt.Errorf("stream frame missing type field")
	}
	return &evt, nil
}

// Telemetry returns the progress telemetry of the event, or nil when the
// frame carried none.
func (e *Event) Telemetry() *Telemetry {
	if e.ElapsedSeconds == nil && e.HeartbeatCount == nil && e.Percent == nil {
		return nil
	}
	return &Telemetry{
		ElapsedSeconds: e.ElapsedSeconds,
		HeartbeatCount: e.HeartbeatCount,
		Percent:        e.Percent,
	}
}

// IsTerminal reports whether the event is the stream's terminal success frame.
func (e *Event) IsTerminal() bool {
	return e.Type == EventComplete || e.Type == EventPartial
}

// StageTimingRecord is one entry in the stage timeline built while a stream
// is consumed. Pure observability data; it never drives control flow.
type StageTimingRecord struct {
	Stage   string        `json:"stage"`
	Offset  time.Duration `json:"offset"`
	Delta   time.Duration `json:"delta"`
	Message string        `json:"message,omitempty"`
}

// Timeline accumulates StageTimingRecords relative to a fixed start instant.
type Timeline struct {
	started time.Time
	last    time.Time
	records []StageTimingRecord
}

// NewTimeline creates a timeline anchored at the given start instant.
func NewTimeline(started time.Time) *Timeline {
	return &Timeline{started: started, last: started}
}

// Record appends a stage entry stamped at the given instant.
func (t *Timeline) Record(now time.Time, stage, message string) StageTimingRecord {
	rec := StageTimingRecord{
		Stage:   stage,
		Offset:  now.Sub(t.started),
		Delta:   now.Sub(t.last),
		Message: message,
	}
	t.last = now
	t.records = append(t.records, rec)
	return rec
}

// Records returns the accumulated entries in arrival order.
func (t *Timeline) Records() []StageTimingRecord {
	return t.records
}
