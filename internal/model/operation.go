package model

import (
	"encoding/json"
	"time"
)

// OpType is the kind of write a queued operation replays.
type OpType string

const (
	OpCreate OpType = "create"
	OpUpdate OpType = "update"
	OpDelete OpType = "delete"
	OpSync   OpType = "sync"
)

// QueuedOperation is a write that could not be confirmed against the remote.
type QueuedOperation struct {
	ID         string            `json:"id"`
	Type       OpType            `json:"type"`
	Resource   string            `json:"resource"`
	Endpoint   string            `json:"endpoint"`
	Method     string            `json:"method"`
	Payload    json.RawMessage   `json:"payload,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	RetryCount int               `json:"retryCount"`
	MaxRetries int               `json:"maxRetries"`
	CreatedAt  time.Time         `json:"createdAt"`
	LastError  string            `json:"lastError,omitempty"`
}
