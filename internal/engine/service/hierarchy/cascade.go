// Copyright 2025 Arcade Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-arcade/hierarchy/internal/engine/model"
	repo "github.com/go-arcade/hierarchy/internal/engine/repo/hierarchy"
	"github.com/go-arcade/hierarchy/pkg/database"
	"github.com/go-arcade/hierarchy/pkg/errs"
	"github.com/go-arcade/hierarchy/pkg/event"
	"github.com/go-arcade/hierarchy/pkg/id"
	"github.com/go-arcade/hierarchy/pkg/log"
	"github.com/go-arcade/hierarchy/pkg/statemachine"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// maxPasses bounds how often a cascade rescans its sub-tree after finding
// nodes that slipped past the cursor.
const maxPasses = 8

// CascadeOperator blocks or unblocks a node and all of its descendants.
//
// A cascade is registered as a CascadeJob and applied in chunks of
// ChunkSize nodes ordered by node id. Every chunk is its own transaction
// and advances the job cursor in the same commit, so a crashed or cancelled
// cascade resumes exactly where it stopped.
type CascadeOperator struct {
	db      database.DB
	nodes   repo.INodeRepository
	codes   repo.IInviteCodeRepository
	jobs    repo.ICascadeJobRepository
	bus     *event.EventBus
	conf    *Conf
	metrics MetricsRecorder
	retry   retrier
	now     func() time.Time
}

func NewCascadeOperator(
	db database.DB,
	nodes repo.INodeRepository,
	codes repo.IInviteCodeRepository,
	jobs repo.ICascadeJobRepository,
	bus *event.EventBus,
	conf *Conf,
	metrics MetricsRecorder,
) *CascadeOperator {
	metrics = orNoop(metrics)
	if bus == nil {
		bus = event.NewEventBus()
	}
	return &CascadeOperator{
		db:      db,
		nodes:   nodes,
		codes:   codes,
		jobs:    jobs,
		bus:     bus,
		conf:    conf,
		metrics: metrics,
		retry:   retrier{conf: conf, metrics: metrics},
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Block marks nodeId and every descendant blocked and revokes their active
// codes. Already blocked nodes stay blocked.
func (o *CascadeOperator) Block(ctx context.Context, nodeId string) (*model.ChangeSet, error) {
	return o.start(ctx, nodeId, model.ActionBlock)
}

// Unblock clears the block flag on nodeId and every descendant, including
// blocks that were set independently deeper in the sub-tree. Codes are not
// re-issued.
func (o *CascadeOperator) Unblock(ctx context.Context, nodeId string) (*model.ChangeSet, error) {
	return o.start(ctx, nodeId, model.ActionUnblock)
}

func (o *CascadeOperator) start(ctx context.Context, nodeId string, action model.CascadeAction) (cs *model.ChangeSet, err error) {
	ctx, span := startSpan(ctx, "hierarchy.Cascade",
		attribute.String("node.id", nodeId),
		attribute.String("cascade.action", string(action)))
	defer func() { endSpan(span, err) }()

	var job *model.CascadeJob
	err = o.retry.run(ctx, "cascade.register", func(ctx context.Context) error {
		j, err := o.register(ctx, nodeId, action)
		job = j
		return err
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("cascade.job_id", job.JobId))
	log.WithContext(ctx).Infow("cascade registered", "job_id", job.JobId, "action", action, "node_id", nodeId, "path", job.Path)

	return o.drive(ctx, job)
}

// register 在活动根节点的行锁下检查重叠任务并登记新任务
func (o *CascadeOperator) register(ctx context.Context, nodeId string, action model.CascadeAction) (*model.CascadeJob, error) {
	var job *model.CascadeJob
	err := database.Transaction(ctx, o.db, func(tx *gorm.DB) error {
		nodes, jobs := o.nodes.WithTx(tx), o.jobs.WithTx(tx)

		node, err := nodes.GetNode(ctx, nodeId)
		if err != nil {
			return err
		}
		if _, err := nodes.GetRootForUpdate(ctx, node.CampaignId); err != nil {
			return err
		}

		unfinished, err := jobs.ListUnfinished(ctx, node.CampaignId)
		if err != nil {
			return err
		}
		now := o.now()
		for _, other := range unfinished {
			if !other.Overlaps(node.Path) {
				continue
			}
			if other.Status == statemachine.CascadeRunning && other.LeaseUntil.After(now) {
				return errs.Transient(nil, "cascade %s is still running over an overlapping sub-tree", other.JobId)
			}
			return errs.Conflict("cascade %s over an overlapping sub-tree was interrupted, resume it first", other.JobId)
		}

		job = &model.CascadeJob{
			JobId:      id.GetUUID(),
			CampaignId: node.CampaignId,
			NodeId:     node.NodeId,
			Path:       node.Path,
			Action:     action,
			Status:     statemachine.CascadeRunning,
			Passes:     1,
			LeaseUntil: now.Add(o.conf.JobLease),
		}
		return jobs.Create(ctx, job)
	})
	return job, err
}

// drive applies chunks until the job is done. Cancellation between chunks
// marks the job INTERRUPTED and returns the changes committed so far.
func (o *CascadeOperator) drive(ctx context.Context, job *model.CascadeJob) (*model.ChangeSet, error) {
	started := o.now()
	total := &model.ChangeSet{
		JobId:      job.JobId,
		CampaignId: job.CampaignId,
		NodeId:     job.NodeId,
		Action:     job.Action,
		Timestamp:  started,
	}

	for {
		if err := ctx.Err(); err != nil {
			o.interrupt(ctx, job.JobId, err)
			return total, fmt.Errorf("cascade %s interrupted after %d chunks: %w", job.JobId, total.Chunk, err)
		}

		var (
			cs   *model.ChangeSet
			done bool
		)
		err := o.retry.run(ctx, "cascade.chunk", func(ctx context.Context) error {
			c, d, err := o.applyChunk(ctx, job.JobId)
			cs, done = c, d
			return err
		})
		if err != nil {
			o.interrupt(ctx, job.JobId, err)
			return total, err
		}

		if cs != nil {
			total.Merge(cs)
			o.metrics.RecordCascadeChunk(string(job.Action), len(cs.Changes), len(cs.RevokedCodes))
			o.bus.Publish(cs)
		}
		if done {
			break
		}
	}

	total.Final = true
	o.metrics.RecordCascadeDone(string(job.Action), o.now().Sub(started))
	log.WithContext(ctx).Infow("cascade finished",
		"job_id", job.JobId,
		"action", job.Action,
		"nodes", len(total.Changes),
		"revoked_codes", len(total.RevokedCodes),
		"chunks", total.Chunk)
	return total, nil
}

// applyChunk processes the next chunk of the job in one transaction.
// It reports done once the job reaches DONE.
func (o *CascadeOperator) applyChunk(ctx context.Context, jobId string) (*model.ChangeSet, bool, error) {
	var (
		cs   *model.ChangeSet
		done bool
	)
	err := database.Transaction(ctx, o.db, func(tx *gorm.DB) error {
		nodes, codes, jobs := o.nodes.WithTx(tx), o.codes.WithTx(tx), o.jobs.WithTx(tx)

		job, err := jobs.GetForUpdate(ctx, jobId)
		if err != nil {
			return err
		}
		switch job.Status {
		case statemachine.CascadeDone:
			done = true
			return nil
		case statemachine.CascadeInterrupted:
			return errs.Conflict("cascade %s was interrupted", jobId)
		}

		batch, err := nodes.SubtreeChunkForUpdate(ctx, job, o.conf.ChunkSize)
		if err != nil {
			return err
		}

		target := job.Action.Target()
		now := o.now()
		cs = &model.ChangeSet{
			JobId:      job.JobId,
			CampaignId: job.CampaignId,
			NodeId:     job.NodeId,
			Action:     job.Action,
			Changes:    make([]model.NodeChange, 0, len(batch)),
			Timestamp:  now,
		}
		ids := make([]string, 0, len(batch))
		for _, n := range batch {
			ids = append(ids, n.NodeId)
			cs.Changes = append(cs.Changes, model.NodeChange{NodeId: n.NodeId, Before: n.IsBlocked, After: target})
		}

		if err := nodes.SetBlocked(ctx, ids, target); err != nil {
			return err
		}
		if job.Action == model.ActionBlock {
			if cs.RevokedCodes, err = codes.RevokeByIssuers(ctx, ids); err != nil {
				return err
			}
			if err := nodes.ClearInviteCodes(ctx, ids); err != nil {
				return err
			}
		}

		job.Chunks++
		job.Processed += int64(len(batch))
		job.LeaseUntil = now.Add(o.conf.JobLease)
		if len(batch) > 0 {
			job.LastNodeId = batch[len(batch)-1].NodeId
		}
		cs.Chunk = job.Chunks

		if len(batch) == o.conf.ChunkSize {
			return jobs.SaveProgress(ctx, job)
		}

		// 最后一块：确认整棵子树已收敛，否则从头再扫一遍
		pending, err := o.pending(ctx, nodes, codes, job)
		if err != nil {
			return err
		}
		if pending > 0 {
			if job.Passes >= maxPasses {
				return errs.Transient(nil, "cascade %s did not converge after %d passes", job.JobId, job.Passes)
			}
			log.WithContext(ctx).Infow("cascade rescanning sub-tree", "job_id", job.JobId, "pending", pending, "pass", job.Passes+1)
			job.Passes++
			job.LastNodeId = ""
			return jobs.SaveProgress(ctx, job)
		}

		if err := jobs.SaveProgress(ctx, job); err != nil {
			return err
		}
		if err := jobs.Transition(ctx, job, statemachine.CascadeDone); err != nil {
			return err
		}
		cs.Final = true
		done = true
		return nil
	})
	return cs, done, err
}

func (o *CascadeOperator) pending(ctx context.Context, nodes repo.INodeRepository, codes repo.IInviteCodeRepository, job *model.CascadeJob) (int64, error) {
	mismatched, err := nodes.CountMismatched(ctx, job)
	if err != nil || job.Action != model.ActionBlock {
		return mismatched, err
	}
	active, err := codes.CountActiveInSubtree(ctx, job)
	return mismatched + active, err
}

// interrupt marks a RUNNING job INTERRUPTED. It runs detached from ctx so
// that a cancelled caller still leaves a resumable record.
func (o *CascadeOperator) interrupt(ctx context.Context, jobId string, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	err := database.Transaction(ctx, o.db, func(tx *gorm.DB) error {
		jobs := o.jobs.WithTx(tx)
		job, err := jobs.GetForUpdate(ctx, jobId)
		if err != nil {
			return err
		}
		if job.Status != statemachine.CascadeRunning {
			return nil
		}
		return jobs.Transition(ctx, job, statemachine.CascadeInterrupted)
	})
	if err != nil {
		log.WithContext(ctx).Errorw("failed to mark cascade interrupted", "job_id", jobId, "cause", cause, "error", err)
		return
	}
	log.WithContext(ctx).Warnw("cascade interrupted", "job_id", jobId, "cause", cause)
}

// Resume continues an interrupted job, or a running job whose lease has
// expired, until it is DONE. Resuming a finished job is a no-op.
func (o *CascadeOperator) Resume(ctx context.Context, jobId string) (cs *model.ChangeSet, err error) {
	ctx, span := startSpan(ctx, "hierarchy.Resume", attribute.String("cascade.job_id", jobId))
	defer func() { endSpan(span, err) }()

	var job *model.CascadeJob
	err = o.retry.run(ctx, "cascade.resume", func(ctx context.Context) error {
		return database.Transaction(ctx, o.db, func(tx *gorm.DB) error {
			jobs := o.jobs.WithTx(tx)
			j, err := jobs.GetForUpdate(ctx, jobId)
			if err != nil {
				return err
			}
			job = j
			now := o.now()
			switch j.Status {
			case statemachine.CascadeDone:
				return nil
			case statemachine.CascadeRunning:
				if j.LeaseUntil.After(now) {
					return errs.Conflict("cascade %s is running", jobId)
				}
				// 租约过期，接管任务
				j.LeaseUntil = now.Add(o.conf.JobLease)
				return jobs.SaveProgress(ctx, j)
			default:
				j.LeaseUntil = now.Add(o.conf.JobLease)
				return jobs.Transition(ctx, j, statemachine.CascadeRunning)
			}
		})
	})
	if err != nil {
		return nil, err
	}
	if job.Status == statemachine.CascadeDone {
		return &model.ChangeSet{
			JobId:      job.JobId,
			CampaignId: job.CampaignId,
			NodeId:     job.NodeId,
			Action:     job.Action,
			Chunk:      job.Chunks,
			Final:      true,
			Timestamp:  o.now(),
		}, nil
	}

	log.WithContext(ctx).Infow("cascade resumed", "job_id", jobId, "cursor", job.LastNodeId, "processed", job.Processed)
	return o.drive(ctx, job)
}

// ResumeStale resumes every interrupted or lease-expired job. Jobs taken
// over by another process in the meantime are skipped.
func (o *CascadeOperator) ResumeStale(ctx context.Context) ([]*model.ChangeSet, error) {
	stale, err := o.jobs.ListResumable(ctx, o.now())
	if err != nil {
		return nil, err
	}

	var (
		results []*model.ChangeSet
		failed  []error
	)
	for _, job := range stale {
		cs, err := o.Resume(ctx, job.JobId)
		if errors.Is(err, errs.ErrConflict) {
			log.WithContext(ctx).Infow("cascade taken over elsewhere", "job_id", job.JobId)
			continue
		}
		if err != nil {
			failed = append(failed, fmt.Errorf("resume cascade %s: %w", job.JobId, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		results = append(results, cs)
	}
	return results, errors.Join(failed...)
}

// Job returns the durable record of a cascade.
func (o *CascadeOperator) Job(ctx context.Context, jobId string) (*model.CascadeJob, error) {
	return o.jobs.Get(ctx, jobId)
}

// Subscribe registers fn for every committed cascade chunk.
func (o *CascadeOperator) Subscribe(fn func(*model.ChangeSet)) {
	o.bus.Subscribe(model.ChangeSetEventName, func(e event.Event) {
		if cs, ok := e.(*model.ChangeSet); ok {
			fn(cs)
		}
	})
}
