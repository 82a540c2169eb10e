package contracts

import "time"

// Sync actions carried by the outbox.
const (
	ActionCreateRemote = "create-remote"
	ActionUpdateRemote = "update-remote"
	ActionDeleteRemote = "delete-remote"
)

// Entity kinds a sync operation can target.
const (
	KindEvent = "event"
	KindTask  = "task"
)

// SyncOperation is the outbox message published by the API when a local write
// requests a remote mirror change, and consumed by the sync worker. The local
// write has already committed before this message exists; applying the
// operation to the provider is best-effort and retried by the worker.
type SyncOperation struct {
	OperationID string    `json:"operation_id"`
	UserID      string    `json:"user_id"`
	Kind        string    `json:"kind"`
	EntityID    string    `json:"entity_id"`
	Action      string    `json:"action"`
	RemoteID    string    `json:"remote_id,omitempty"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	Date        string    `json:"date,omitempty"`
	Time        string    `json:"time,omitempty"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}
