package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/hibiken/asynq"

	"github.com/patchnotes/api/internal/client"
	"github.com/patchnotes/api/internal/model"
	"github.com/patchnotes/api/internal/service"
	"github.com/patchnotes/api/internal/testsupport"
)

type recordingProvider struct {
	mu       sync.Mutex
	channel  model.DistributionChannel
	messages []*client.OutboundMessage
	err      error
}

func (p *recordingProvider) Channel() model.DistributionChannel { return p.channel }

func (p *recordingProvider) Send(_ context.Context, msg *client.OutboundMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, msg)
	return nil
}

func distributeTask(t *testing.T, noteKey string, channel model.DistributionChannel) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(&model.DistributionTaskPayload{
		NoteKey:    noteKey,
		Channel:    channel,
		Recipients: []string{"dev@example.com"},
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return asynq.NewTask(service.TaskTypeDistribute, payload)
}

func TestDistributionDelivers(t *testing.T) {
	st := testsupport.NewStore()
	content := "# Widgets 1.2.0\n\n- one"
	url := "https://cdn.example.com/v.mp4"
	st.Seed(&model.PatchNote{
		Key:      "n1",
		Title:    "Widgets 1.2.0",
		Status:   model.NoteStatusCompleted,
		Content:  &content,
		VideoURL: &url,
	})

	provider := &recordingProvider{channel: model.ChannelEmail}
	w := NewDistributionWorker(st, nil, []client.OutboundProvider{provider})

	if err := w.ProcessTask(context.Background(), distributeTask(t, "n1", model.ChannelEmail)); err != nil {
		t.Fatalf("process: %v", err)
	}

	if len(provider.messages) != 1 {
		t.Fatalf("messages = %d", len(provider.messages))
	}
	msg := provider.messages[0]
	if msg.Subject != "Widgets 1.2.0" || msg.Body != content || msg.VideoURL != url {
		t.Errorf("message = %+v", msg)
	}
	if len(msg.Recipients) != 1 {
		t.Errorf("recipients = %v", msg.Recipients)
	}
}

func TestDistributionNotReadySkipsRetry(t *testing.T) {
	st := testsupport.NewStore()
	st.Seed(&model.PatchNote{Key: "n1", Status: model.NoteStatusGenerating})

	w := NewDistributionWorker(st, nil, nil)
	err := w.ProcessTask(context.Background(), distributeTask(t, "n1", model.ChannelEmail))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
}

func TestDistributionProviderErrorRetries(t *testing.T) {
	st := testsupport.NewStore()
	content := "notes"
	st.Seed(&model.PatchNote{Key: "n1", Status: model.NoteStatusCompleted, Content: &content})

	provider := &recordingProvider{channel: model.ChannelEmail, err: errors.New("smtp down")}
	w := NewDistributionWorker(st, nil, []client.OutboundProvider{provider})

	err := w.ProcessTask(context.Background(), distributeTask(t, "n1", model.ChannelEmail))
	if err == nil {
		t.Fatal("expected delivery error")
	}
	if errors.Is(err, asynq.SkipRetry) {
		t.Error("transient delivery failure must stay retryable")
	}
}
