package progress

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart       Stage = "RUN_START"
	StageRunDone        Stage = "RUN_DONE"
	StageRunError       Stage = "RUN_ERROR"
	StageDatasetStart   Stage = "DATASET_START"
	StageDatasetDone    Stage = "DATASET_DONE"
	StageDatasetSkipped Stage = "DATASET_SKIPPED"
	StageFetchDone      Stage = "FETCH_DONE"
	StageFileFound      Stage = "FILE_FOUND"
	StageIssue          Stage = "ISSUE"
)

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Supported HTTP status classes tracked for fetch completions.
const (
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusError StatusClass = "error"
	StatusOther StatusClass = "other"
)

// Event captures a single milestone of an export run.
type Event struct {
	// RunID identifies the export run in 16-byte UUID form.
	RunID [16]byte
	TS    time.Time
	Stage Stage
	// Dataset is the display title of the dataset being crawled, if any.
	Dataset string
	URL     string
	Depth   int
	// Host labels fetch events; derived from URL when empty.
	Host        string
	Bytes       int64
	Files       int64
	StatusClass StatusClass
	// Kind carries the issue kind for StageIssue and the skip reason for
	// StageDatasetSkipped.
	Kind string
	Dur  time.Duration
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StageDatasetStart, StageDatasetDone, StageDatasetSkipped:
		if e.Dataset == "" {
			return fmt.Errorf("%s requires dataset", e.Stage)
		}
	case StageFetchDone:
		if e.StatusClass == "" {
			return errors.New("fetch done requires status class")
		}
	case StageFileFound:
		if e.URL == "" {
			return errors.New("file found requires url")
		}
	case StageIssue:
		if e.Kind == "" {
			return errors.New("issue requires kind")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// HostLabel returns Host, falling back to the URL's host and then "unknown".
func (e Event) HostLabel() string {
	if e.Host != "" {
		return e.Host
	}
	if u, err := url.Parse(e.URL); err == nil && u.Host != "" {
		return u.Host
	}
	return "unknown"
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	return [16]byte(id)
}

// ClassifyStatus groups HTTP status codes for fetch events. A zero code means
// the request never produced a response.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code == 0:
		return StatusError
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}
