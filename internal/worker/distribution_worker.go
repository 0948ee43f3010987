package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/patchnotes/api/internal/client"
	"github.com/patchnotes/api/internal/model"
	"github.com/patchnotes/api/internal/store"
)

// DistributionWorker delivers finished patch notes to outbound channels.
// Delivery is at-least-once; providers are expected to deduplicate on the
// note key if their channel requires it.
type DistributionWorker struct {
	store     store.RecordStore
	storage   client.StorageClient
	providers map[model.DistributionChannel]client.OutboundProvider
}

// NewDistributionWorker creates a new distribution worker. Channels with no
// registered provider fall back to the logging provider.
func NewDistributionWorker(recordStore store.RecordStore, storage client.StorageClient, providers []client.OutboundProvider) *DistributionWorker {
	byChannel := make(map[model.DistributionChannel]client.OutboundProvider, len(providers))
	for _, p := range providers {
		byChannel[p.Channel()] = p
	}
	return &DistributionWorker{
		store:     recordStore,
		storage:   storage,
		providers: byChannel,
	}
}

// ProcessTask handles one distribution delivery.
func (w *DistributionWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload model.DistributionTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}

	log.Printf("Distributing note %s via %s", payload.NoteKey, payload.Channel)

	note, err := w.store.GetNote(ctx, payload.NoteKey)
	if err != nil {
		return fmt.Errorf("failed to load note %s: %v: %w", payload.NoteKey, err, asynq.SkipRetry)
	}
	if note.Status != model.NoteStatusCompleted || note.Content == nil || *note.Content == "" {
		return fmt.Errorf("note %s is not ready for distribution: %w", payload.NoteKey, asynq.SkipRetry)
	}

	msg := &client.OutboundMessage{
		NoteKey:    note.Key,
		Subject:    note.Title,
		Body:       *note.Content,
		Recipients: payload.Recipients,
	}
	if note.VideoURL != nil {
		msg.VideoURL = *note.VideoURL
	}

	w.snapshotContent(ctx, note)

	provider, ok := w.providers[payload.Channel]
	if !ok {
		provider = client.NewLogProvider(payload.Channel)
	}
	if err := provider.Send(ctx, msg); err != nil {
		return fmt.Errorf("delivery via %s failed for note %s: %w", payload.Channel, note.Key, err)
	}

	log.Printf("Note %s distributed via %s", note.Key, payload.Channel)
	return nil
}

// snapshotContent archives the distributed markdown to object storage so
// the delivered text stays retrievable even after later re-generation.
// Failures are logged, not fatal.
func (w *DistributionWorker) snapshotContent(ctx context.Context, note *model.PatchNote) {
	if w.storage == nil || !w.storage.IsConfigured() {
		return
	}

	key := fmt.Sprintf("notes/%s/distributed.md", note.Key)
	if _, err := w.storage.Upload(ctx, key, strings.NewReader(*note.Content), "text/markdown"); err != nil {
		log.Printf("Failed to snapshot note %s content: %v", note.Key, err)
	}
}
