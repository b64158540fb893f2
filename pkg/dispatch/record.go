package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MaxLogEntries is the number of completed requests kept for the log page.
const MaxLogEntries = 10

// Record describes one request as it moved through Core.Handle. Durations
// are in milliseconds; -1 means the phase never ran.
type Record struct {
	ID                int64     `json:"id"`
	Reference         string    `json:"reference"`
	Shape             string    `json:"shape"`
	Start             time.Time `json:"start"`
	StatusCode        int       `json:"statusCode"`
	DurationStreamIn  int64     `json:"durationStreamIn"`
	DurationTransform int64     `json:"durationTransform"`
	DurationStreamOut int64     `json:"durationStreamOut"`
	Source            string    `json:"source,omitempty"`
	SourceSize        int64     `json:"sourceSize"`
	Target            string    `json:"target,omitempty"`
	TargetSize        int64     `json:"targetSize"`
	Transformer       string    `json:"transformer,omitempty"`
	Options           string    `json:"options,omitempty"`
	Message           string    `json:"message,omitempty"`

	// Err is set when the request failed.
	Err *TransformError `json:"-"`
}

func newRecord(id int64, shape string) *Record {
	return &Record{
		ID:                id,
		Shape:             shape,
		Start:             time.Now(),
		StatusCode:        http.StatusOK,
		DurationTransform: -1,
		DurationStreamOut: -1,
		TargetSize:        -1,
	}
}

func (r *Record) elapsed() int64 {
	return time.Since(r.Start).Milliseconds()
}

// sourceStored marks the end of the stream-in phase.
func (r *Record) sourceStored(name string, size int64) {
	r.Source = name
	r.SourceSize = size
	r.DurationStreamIn = r.elapsed()
}

// finish records the outcome and the end of the transform phase.
func (r *Record) finish(status int, message string) {
	r.StatusCode = status
	r.Message = message
	r.DurationTransform = r.elapsed() - r.DurationStreamIn
}

func (r *Record) complete() {
	if r.StatusCode == http.StatusOK {
		r.DurationStreamOut = r.elapsed() - r.DurationStreamIn - max(r.DurationTransform, 0)
	}
}

// TransformDuration is the time spent transforming, excluding stream-in.
func (r *Record) TransformDuration() time.Duration {
	return time.Duration(max(r.DurationTransform, 0)) * time.Millisecond
}

// Duration is the total time from start to completion.
func (r *Record) Duration() time.Duration {
	total := r.DurationStreamIn + max(r.DurationTransform, 0) + max(r.DurationStreamOut, 0)
	return time.Duration(total) * time.Millisecond
}

// DurationText renders the total with its phases, e.g. "1.2s (10ms 1.1s
// 90ms)". Requests that took 5ms or less show nothing.
func (r *Record) DurationText() string {
	total := r.DurationStreamIn + max(r.DurationTransform, 0) + max(r.DurationStreamOut, 0)
	if total <= 5 {
		return ""
	}
	phases := strings.TrimSpace(formatMillis(r.DurationStreamIn) + " " +
		formatMillis(r.DurationTransform) + " " + formatMillis(r.DurationStreamOut))
	return formatMillis(total) + " (" + phases + ")"
}

// String renders the record as a single log line.
func (r *Record) String() string {
	var sb strings.Builder
	for _, v := range []string{
		fmt.Sprint(r.ID),
		r.Start.Format(time.TimeOnly),
		fmt.Sprint(r.StatusCode),
		r.DurationText(),
		r.Source,
		FormatSize(r.SourceSize),
		r.Target,
		FormatSize(r.TargetSize),
		r.Options,
	} {
		if strings.TrimSpace(v) != "" && v != "0bytes" {
			sb.WriteString(v)
			sb.WriteByte(' ')
		}
	}
	sb.WriteString(r.Message)
	return strings.TrimSpace(sb.String())
}

var (
	timeUnits    = []string{"ms", "s", "min", "hr"}
	timeDividers = []int64{1000, 60, 60}
	sizeUnits    = []string{"bytes", " KB", " MB", " GB", " TB"}
)

func formatMillis(ms int64) string {
	if ms < 0 {
		return ""
	}
	divider := int64(1)
	for i, unit := range timeUnits {
		if i == len(timeUnits)-1 || ms < divider*timeDividers[i] {
			return unitFormat(ms, divider, unit)
		}
		divider *= timeDividers[i]
	}
	return ""
}

// FormatSize renders a byte count using binary units. Unknown sizes (-1)
// render as an empty string.
func FormatSize(size int64) string {
	switch {
	case size < 0:
		return ""
	case size == 1:
		return "1 byte"
	}
	divider := int64(1)
	for i, unit := range sizeUnits {
		if i == len(sizeUnits)-1 || size < divider*1024 {
			return unitFormat(size, divider, unit)
		}
		divider *= 1024
	}
	return ""
}

// unitFormat prints value/divider with one decimal place when it is not
// zero.
func unitFormat(value, divider int64, unit string) string {
	tenths := value * 10 / divider
	whole, fraction := tenths/10, tenths%10
	if fraction == 0 {
		return fmt.Sprintf("%d%s", whole, unit)
	}
	return fmt.Sprintf("%d.%d%s", whole, fraction, unit)
}

// LogBuffer keeps the most recent records, newest first. It is safe for
// concurrent use.
type LogBuffer struct {
	mu      sync.Mutex
	entries []Record
	nextID  atomic.Int64
}

// NewLogBuffer creates an empty buffer.
func NewLogBuffer() *LogBuffer {
	return &LogBuffer{}
}

func (b *LogBuffer) next() int64 {
	return b.nextID.Add(1)
}

// Add stores a completed record, dropping the oldest when full.
func (b *LogBuffer) Add(r *Record) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append([]Record{*r}, b.entries...)
	if len(b.entries) > MaxLogEntries {
		b.entries = b.entries[:MaxLogEntries]
	}
}

// Entries returns a copy of the buffered records, newest first.
func (b *LogBuffer) Entries() []Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Record, len(b.entries))
	copy(out, b.entries)
	return out
}

type recordKey struct{}

func withRecord(ctx context.Context, r *Record) context.Context {
	return context.WithValue(ctx, recordKey{}, r)
}

// RecordFromContext returns the record of the request being handled, or
// nil outside Core.Handle. Implementations may annotate Options with
// what they actually applied.
func RecordFromContext(ctx context.Context) *Record {
	r, _ := ctx.Value(recordKey{}).(*Record)
	return r
}
