package messaging

import (
	"errors"

	"github.com/nats-io/nats.go"
)

const (
	// SyncStream holds pending remote-calendar operations until the sync
	// worker has applied them.
	SyncStream = "CALSYNC"

	// SyncSubjects matches every sharded per-user sync subject.
	SyncSubjects = "taskleaf.sync.>"

	// SyncDurableConsumer is the worker's durable consumer name.
	SyncDurableConsumer = "sync-worker"
)

// EnsureStreams creates (or validates) the outbox stream.
func EnsureStreams(js nats.JetStreamContext) error {
	if _, err := js.StreamInfo(SyncStream); err != nil {
		if errors.Is(err, nats.ErrStreamNotFound) {
			if _, addErr := js.AddStream(&nats.StreamConfig{
				Name:      SyncStream,
				Subjects:  []string{SyncSubjects},
				Retention: nats.LimitsPolicy,
				Storage:   nats.FileStorage,
				Replicas:  1,
			}); addErr != nil {
				return addErr
			}
		} else {
			return err
		}
	}
	return nil
}
