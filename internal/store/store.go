package store

// Record is one device event offered for storage.
//
// The triple (DeviceID, EventID, EventTime) is the deduplication key:
// two records with the same triple are the same logical event no matter
// which producer offered them.
type Record struct {
	DeviceID string

	// EventID is the vendor's event identifier when one exists, or a
	// deterministic hash of the event content for stream events.
	EventID string

	// EventTime is the event occurrence time in Unix milliseconds.
	EventTime int64

	// Source records the ingestion path: "poll" or "stream".
	Source string

	// Code is the event kind or datapoint code, e.g. "switch_1".
	Code string

	Value  string
	Status string

	// RawJSON preserves the vendor payload verbatim.
	RawJSON string

	// CollectedAt is the ingestion timestamp in Unix milliseconds.
	// Set by the store on insert; ignored on input.
	CollectedAt int64
}

// Filter narrows a Query. Zero values mean "no constraint".
type Filter struct {
	DeviceID string
	Code     string

	// Since and Until bound EventTime, inclusive.
	Since int64
	Until int64

	// Limit caps the number of returned records. Offset skips past
	// earlier rows and only applies when Limit is set.
	Limit  int
	Offset int
}

// Cursor is one device's collection watermark.
type Cursor struct {
	DeviceID      string
	LastEventTime int64
	UpdatedAt     int64
}

// Run summarizes one collector cycle.
type Run struct {
	ID            string
	StartedAt     int64
	FinishedAt    int64
	DevicesSeen   int
	DevicesFailed int
	LogsInserted  int
	Status        string
}

// Run status values.
const (
	RunRunning            = "running"
	RunCompleted          = "completed"
	RunCompletedWithWarns = "completed_with_errors"
	RunFailed             = "failed"
)

// Stats is an aggregate view of the stored data.
type Stats struct {
	TotalLogs   int64
	Devices     int64
	OldestEvent int64
	NewestEvent int64
	LastRun     *Run
}
