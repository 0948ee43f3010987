package render

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/patchnotes/api/internal/client"
	"github.com/patchnotes/api/internal/model"
)

// URLBuilder qualifies a relative engine output reference against the
// storage bucket it was written to.
type URLBuilder interface {
	ObjectURL(bucket, key string) string
}

// Poller drives queued → rendering → completed|failed by querying the
// render engine. Poll is idempotent and safe to call repeatedly from
// multiple clients at once; the executor's conditional writes resolve any
// race, and terminal jobs are returned without contacting the engine.
type Poller struct {
	reader   *StatusReader
	executor *Executor
	engine   client.RenderEngine
	urls     URLBuilder // may be nil
}

// NewPoller creates a progress poller. urls may be nil to fall back to the
// bucket's default public hostname for relative output refs.
func NewPoller(reader *StatusReader, executor *Executor, engine client.RenderEngine, urls URLBuilder) *Poller {
	return &Poller{reader: reader, executor: executor, engine: engine, urls: urls}
}

// Poll reads the current status and, for in-flight jobs, advances it from
// one engine progress snapshot.
func (p *Poller) Poll(ctx context.Context, jobKey string) (*model.RenderJob, error) {
	job, err := p.reader.Read(ctx, jobKey)
	if err != nil {
		return nil, err
	}

	// Terminal states have no outgoing edges; a late progress snapshot must
	// be rejected here, not merely out-raced by the conditional write.
	if IsTerminal(job.State) {
		return job, nil
	}

	// Nothing to poll before a render was initiated.
	if job.State == model.RenderStateIdle {
		return job, nil
	}

	if job.EngineJobID == nil || *job.EngineJobID == "" {
		// An active job without a handle should not occur if the initiator's
		// contract held; report it as failed without persisting anything.
		msg := "render job has no engine handle"
		return &model.RenderJob{
			JobKey:     job.JobKey,
			State:      model.RenderStateFailed,
			LastError:  &msg,
			StageLabel: job.StageLabel,
		}, nil
	}

	bucket := ""
	if job.EngineBucket != nil {
		bucket = *job.EngineBucket
	}

	prog, err := p.engine.Progress(ctx, *job.EngineJobID, bucket)
	if err != nil {
		// Transient transport fault: the job stays active and the next poll
		// retries. The last known status is returned alongside the error.
		return job, fmt.Errorf("engine progress for %s: %w", jobKey, err)
	}

	if prog.FatalError != nil {
		return p.apply(ctx, jobKey, model.RenderEventFail, Fields{Message: prog.FatalError.Message})
	}

	if prog.Done {
		if prog.OutputRef == "" {
			return p.apply(ctx, jobKey, model.RenderEventFail, Fields{
				Message: "render engine reported completion without output",
			})
		}
		return p.apply(ctx, jobKey, model.RenderEventComplete, Fields{
			VideoURL: p.videoURL(bucket, prog.OutputRef),
		})
	}

	percent := ClampPercent(int(prog.Fraction * 100))
	if job.State == model.RenderStateQueued {
		return p.apply(ctx, jobKey, model.RenderEventProgress, Fields{ProgressPercent: percent})
	}

	updated, err := p.executor.RefreshProgress(ctx, jobKey, percent)
	if err != nil {
		if errors.Is(err, ErrConcurrentModification) {
			return p.reader.Read(ctx, jobKey)
		}
		return nil, err
	}
	return updated, nil
}

// apply runs one transition; when a concurrent poller won the race, the
// winner's result is read back and returned instead of an error.
func (p *Poller) apply(ctx context.Context, jobKey string, event model.RenderEvent, f Fields) (*model.RenderJob, error) {
	job, err := p.executor.Transition(ctx, jobKey, event, f)
	if err != nil {
		if errors.Is(err, ErrConcurrentModification) || IsInvalidTransition(err) {
			return p.reader.Read(ctx, jobKey)
		}
		return nil, err
	}
	return job, nil
}

// videoURL passes absolute output refs through and qualifies relative ones
// against the bucket the engine wrote into.
func (p *Poller) videoURL(bucket, ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	key := strings.TrimPrefix(ref, "/")
	if p.urls != nil {
		return p.urls.ObjectURL(bucket, key)
	}
	return fmt.Sprintf("https://%s.r2.cloudflarestorage.com/%s", bucket, key)
}
