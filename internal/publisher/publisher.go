// Package publisher announces finished catalog exports to downstream consumers.
package publisher

import (
	"context"
	"time"
)

// Publisher sends payload to topic and returns the broker's message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// ExportNotice is the payload published after a successful export.
type ExportNotice struct {
	RunID       string    `json:"run_id"`
	Datasets    int       `json:"datasets"`
	Files       int       `json:"files"`
	Digest      string    `json:"digest"`
	URIs        []string  `json:"uris"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Attributes returns message attributes for broker-side filtering.
func (n ExportNotice) Attributes() map[string]string {
	return map[string]string{
		"run_id": n.RunID,
		"digest": n.Digest,
	}
}
