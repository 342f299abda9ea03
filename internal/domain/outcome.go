package domain

// DownloadStatus is the terminal state of a single transfer.
type DownloadStatus string

const (
	DownloadCompleted DownloadStatus = "completed"
	DownloadFailed    DownloadStatus = "failed"
)

// ErrorKind classifies why a media item could not be acquired.
type ErrorKind string

const (
	ErrorKindNone                  ErrorKind = ""
	ErrorKindUnresolvableReference ErrorKind = "unresolvable_reference"
	ErrorKindPermanentHTTP         ErrorKind = "permanent_http_error"
	ErrorKindTransientTransfer     ErrorKind = "transient_transfer_error"
	ErrorKindSizeLimitExceeded     ErrorKind = "size_limit_exceeded"
	ErrorKindNoResolvableURL       ErrorKind = "no_resolvable_url"
	ErrorKindInvalidMediaKind      ErrorKind = "invalid_media_kind"
	ErrorKindInternal              ErrorKind = "internal_error"
)

// Terminal reports whether retrying within the same call is pointless.
func (k ErrorKind) Terminal() bool {
	return k != ErrorKindTransientTransfer && k != ErrorKindNone
}

// DownloadOutcome is the result of acquiring one media item.
type DownloadOutcome struct {
	MediaID      string         `json:"media_id,omitempty"`
	Status       DownloadStatus `json:"status"`
	LocalPath    string         `json:"local_path,omitempty"`
	FileSize     int64          `json:"file_size,omitempty"`
	Checksum     string         `json:"checksum,omitempty"`
	ErrorKind    ErrorKind      `json:"error_kind,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Attempts     int            `json:"attempts"`
	SourceURL    string         `json:"source_url,omitempty"`
	Width        int            `json:"width,omitempty"`
	Height       int            `json:"height,omitempty"`
	DurationMs   int64          `json:"duration_ms,omitempty"`
}

// Completed returns true if the item was downloaded and verified.
func (o *DownloadOutcome) Completed() bool {
	return o.Status == DownloadCompleted
}

// FailedOutcome builds a failed outcome from a classified error.
func FailedOutcome(mediaID string, kind ErrorKind, err error, attempts int) DownloadOutcome {
	out := DownloadOutcome{
		MediaID:   mediaID,
		Status:    DownloadFailed,
		ErrorKind: kind,
		Attempts:  attempts,
	}
	if err != nil {
		out.ErrorMessage = err.Error()
	}
	return out
}
