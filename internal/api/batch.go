package api

import "time"

// Batch status values reported by the server.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusPartial    = "partial"
)

// Batch is a server-side batch processing record.
type Batch struct {
	ID           string       `json:"id"`
	Status       string       `json:"status"`
	Progress     int          `json:"progress"`
	CurrentImage int          `json:"current_image"`
	SuccessCount int          `json:"success_count"`
	Created      *Timestamp   `json:"created,omitempty"`
	StartTime    *Timestamp   `json:"start_time"`
	EndTime      *Timestamp   `json:"end_time"`
	Images       []BatchImage `json:"images"`
}

// Done reports whether the batch has reached a terminal status.
func (b *Batch) Done() bool {
	switch b.Status {
	case StatusCompleted, StatusFailed, StatusPartial:
		return true
	}
	return false
}

// BatchImage is the per-image record inside a Batch.
type BatchImage struct {
	Index        int        `json:"index"`
	Filename     string     `json:"filename"`
	Path         string     `json:"path"`
	OriginalPath string     `json:"original_path"`
	Status       string     `json:"status"`
	StartTime    *Timestamp `json:"start_time"`
	EndTime      *Timestamp `json:"end_time"`
	Error        *string    `json:"error"`
	ResultDir    *string    `json:"result_dir"`
	CSVPath      *string    `json:"csv_path"`
	HTMLPath     *string    `json:"html_path"`
}

// Timestamp is a server time sent as fractional Unix seconds.
type Timestamp float64

// Time converts the timestamp to a time.Time.
func (t Timestamp) Time() time.Time {
	sec := int64(t)
	nsec := int64((float64(t) - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

// Elapsed returns how long the batch has run, measured up to now for a batch
// still in progress. It is zero before the batch starts.
func (b *Batch) Elapsed(now time.Time) time.Duration {
	if b.StartTime == nil {
		return 0
	}
	end := now
	if b.EndTime != nil {
		end = b.EndTime.Time()
	}
	return end.Sub(b.StartTime.Time())
}
