package service

import (
	"context"
	"errors"
	"testing"

	"github.com/patchnotes/api/internal/model"
	"github.com/patchnotes/api/internal/testsupport"
)

func TestDistributeRequiresCompletedContent(t *testing.T) {
	st := testsupport.NewStore()
	st.Seed(&model.PatchNote{Key: "n1", Status: model.NoteStatusGenerating})
	content := "notes"
	st.Seed(&model.PatchNote{Key: "n2", Status: model.NoteStatusCompleted}) // no content
	st.Seed(&model.PatchNote{Key: "n3", Status: model.NoteStatusCompleted, Content: &content})

	enq := &testsupport.Enqueuer{}
	svc := NewDistributionService(st, enq)
	req := &model.DistributeRequest{Channel: model.ChannelEmail}

	if _, err := svc.Distribute(context.Background(), "n1", req); !errors.Is(err, ErrNoteNotReady) {
		t.Errorf("generating note: got %v", err)
	}
	if _, err := svc.Distribute(context.Background(), "n2", req); !errors.Is(err, ErrNoteNotReady) {
		t.Errorf("content-less note: got %v", err)
	}

	resp, err := svc.Distribute(context.Background(), "n3", req)
	if err != nil {
		t.Fatalf("ready note: %v", err)
	}
	if !resp.Accepted || resp.Channel != model.ChannelEmail {
		t.Errorf("response = %+v", resp)
	}
	if len(enq.Tasks) != 1 || enq.Tasks[0].Type() != TaskTypeDistribute {
		t.Fatalf("tasks = %v", enq.Tasks)
	}
}
