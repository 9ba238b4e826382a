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
	"time"

	"github.com/go-arcade/hierarchy/internal/engine/model"
	"github.com/go-arcade/hierarchy/pkg/database"
	"github.com/go-arcade/hierarchy/pkg/errs"
	"github.com/go-arcade/hierarchy/pkg/statemachine"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ICascadeJobRepository interface {
	WithTx(tx *gorm.DB) ICascadeJobRepository
	Create(ctx context.Context, job *model.CascadeJob) error
	Get(ctx context.Context, jobId string) (*model.CascadeJob, error)
	GetForUpdate(ctx context.Context, jobId string) (*model.CascadeJob, error)
	ListUnfinished(ctx context.Context, campaignId string) ([]*model.CascadeJob, error)
	ListResumable(ctx context.Context, now time.Time) ([]*model.CascadeJob, error)
	SaveProgress(ctx context.Context, job *model.CascadeJob) error
	Transition(ctx context.Context, job *model.CascadeJob, to statemachine.CascadeStatus) error
}

type CascadeJobRepo struct {
	db database.DB
}

func NewCascadeJobRepo(db database.DB) ICascadeJobRepository {
	return &CascadeJobRepo{db: db}
}

// WithTx returns a repository bound to tx.
func (r *CascadeJobRepo) WithTx(tx *gorm.DB) ICascadeJobRepository {
	return &CascadeJobRepo{db: database.NewGormDB(tx)}
}

func (r *CascadeJobRepo) conn(ctx context.Context) *gorm.DB {
	return r.db.DB().WithContext(ctx)
}

// Create 登记级联任务
func (r *CascadeJobRepo) Create(ctx context.Context, job *model.CascadeJob) error {
	return Classify(r.conn(ctx).Create(job).Error, "cascade job %s already exists", job.JobId)
}

func (r *CascadeJobRepo) get(db *gorm.DB, jobId string) (*model.CascadeJob, error) {
	var job model.CascadeJob
	if err := db.Where("job_id = ?", jobId).First(&job).Error; err != nil {
		return nil, Classify(err, "cascade job %s not found", jobId)
	}
	return &job, nil
}

func (r *CascadeJobRepo) Get(ctx context.Context, jobId string) (*model.CascadeJob, error) {
	return r.get(r.conn(ctx), jobId)
}

func (r *CascadeJobRepo) GetForUpdate(ctx context.Context, jobId string) (*model.CascadeJob, error) {
	return r.get(r.conn(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), jobId)
}

// ListUnfinished 获取活动下所有未完成的级联任务
func (r *CascadeJobRepo) ListUnfinished(ctx context.Context, campaignId string) ([]*model.CascadeJob, error) {
	var jobs []*model.CascadeJob
	err := r.conn(ctx).
		Where("campaign_id = ? AND status IN ?", campaignId,
			[]statemachine.CascadeStatus{statemachine.CascadeRunning, statemachine.CascadeInterrupted}).
		Order("id ASC").
		Find(&jobs).Error
	if err != nil {
		return nil, Classify(err, "list unfinished cascades of campaign %s", campaignId)
	}
	return jobs, nil
}

// ListResumable returns interrupted jobs and running jobs whose lease has expired.
func (r *CascadeJobRepo) ListResumable(ctx context.Context, now time.Time) ([]*model.CascadeJob, error) {
	var jobs []*model.CascadeJob
	err := r.conn(ctx).
		Where("status = ? OR (status = ? AND lease_until < ?)",
			statemachine.CascadeInterrupted, statemachine.CascadeRunning, now).
		Order("id ASC").
		Find(&jobs).Error
	if err != nil {
		return nil, Classify(err, "list resumable cascades")
	}
	return jobs, nil
}

// SaveProgress 保存游标、计数和租约
func (r *CascadeJobRepo) SaveProgress(ctx context.Context, job *model.CascadeJob) error {
	err := r.conn(ctx).Model(&model.CascadeJob{}).
		Where("job_id = ?", job.JobId).
		Updates(map[string]any{
			"last_node_id": job.LastNodeId,
			"processed":    job.Processed,
			"chunks":       job.Chunks,
			"passes":       job.Passes,
			"lease_until":  job.LeaseUntil,
		}).Error
	return Classify(err, "save progress of cascade %s", job.JobId)
}

// Transition moves the job to status to, guarded by the cascade state
// machine and by the status the caller last read.
func (r *CascadeJobRepo) Transition(ctx context.Context, job *model.CascadeJob, to statemachine.CascadeStatus) error {
	if err := statemachine.CheckCascadeTransition(job.Status, to); err != nil {
		return errs.Wrap(errs.KindConflict, err, "cascade job %s", job.JobId)
	}

	fields := map[string]any{
		"status":      to,
		"lease_until": job.LeaseUntil,
	}
	if to == statemachine.CascadeDone {
		now := time.Now()
		job.FinishedAt = &now
		fields["finished_at"] = now
	}
	res := r.conn(ctx).Model(&model.CascadeJob{}).
		Where("job_id = ? AND status = ?", job.JobId, job.Status).
		Updates(fields)
	if res.Error != nil {
		return Classify(res.Error, "move cascade job %s to %s", job.JobId, to)
	}
	if res.RowsAffected != 1 {
		return errs.Conflict("cascade job %s is no longer %s", job.JobId, job.Status)
	}
	job.Status = to
	return nil
}
