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

package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-arcade/hierarchy/internal/engine/model"
	"github.com/go-arcade/hierarchy/pkg/log"
	"github.com/redis/go-redis/v9"
)

const (
	SinkNone  = "none"
	SinkLog   = "log"
	SinkRedis = "redis"
)

// Conf 审计输出配置
type Conf struct {
	// Sink none | log | redis
	Sink string `mapstructure:"sink"`
	// Stream redis stream key
	Stream string `mapstructure:"stream"`
	// MaxLen 近似裁剪长度，0 不裁剪
	MaxLen int64 `mapstructure:"maxLen"`
	// Buffer 待写队列长度，满了丢弃并计数
	Buffer  int           `mapstructure:"buffer"`
	Timeout time.Duration `mapstructure:"timeout"`
}

func (c *Conf) SetDefaults() {
	if c.Sink == "" {
		c.Sink = SinkLog
	}
	if c.Stream == "" {
		c.Stream = "hierarchy:audit"
	}
	if c.Buffer <= 0 {
		c.Buffer = 1024
	}
	if c.Timeout <= 0 {
		c.Timeout = 3 * time.Second
	}
}

func (c *Conf) Validate() error {
	switch c.Sink {
	case SinkNone, SinkLog, SinkRedis:
		return nil
	default:
		return fmt.Errorf("unsupported audit sink %q", c.Sink)
	}
}

// Writer delivers one change-set to an audit collaborator.
type Writer interface {
	Write(ctx context.Context, cs *model.ChangeSet) error
}

// LogWriter writes change-sets to the structured log.
type LogWriter struct{}

func (LogWriter) Write(_ context.Context, cs *model.ChangeSet) error {
	log.Infow("cascade audit",
		"job_id", cs.JobId,
		"campaign_id", cs.CampaignId,
		"node_id", cs.NodeId,
		"action", cs.Action,
		"chunk", cs.Chunk,
		"final", cs.Final,
		"nodes", cs.NodeIds(),
		"revoked_codes", cs.RevokedCodes)
	return nil
}

// StreamAdder is the slice of redis.Cmdable the stream writer needs.
type StreamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisStreamWriter appends change-sets to a Redis stream, one entry per chunk.
type RedisStreamWriter struct {
	client StreamAdder
	stream string
	maxLen int64
}

func NewRedisStreamWriter(client StreamAdder, stream string, maxLen int64) *RedisStreamWriter {
	return &RedisStreamWriter{client: client, stream: stream, maxLen: maxLen}
}

func (w *RedisStreamWriter) Write(ctx context.Context, cs *model.ChangeSet) error {
	payload, err := json.Marshal(cs)
	if err != nil {
		return fmt.Errorf("failed to encode change set: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: w.stream,
		Values: map[string]any{
			"job_id":      cs.JobId,
			"campaign_id": cs.CampaignId,
			"action":      string(cs.Action),
			"chunk":       cs.Chunk,
			"final":       cs.Final,
			"payload":     string(payload),
		},
	}
	if w.maxLen > 0 {
		args.MaxLen = w.maxLen
		args.Approx = true
	}
	if err := w.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to append audit entry to %s: %w", w.stream, err)
	}
	return nil
}

// Forwarder decouples cascade chunks from the audit writer. Handle never
// blocks the cascade; a full queue drops the change-set.
type Forwarder struct {
	writer  Writer
	timeout time.Duration
	queue   chan *model.ChangeSet
	done    chan struct{}
	once    sync.Once
	mu      sync.RWMutex
	closed  bool

	written atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

func NewForwarder(writer Writer, buffer int, timeout time.Duration) *Forwarder {
	f := &Forwarder{
		writer:  writer,
		timeout: timeout,
		queue:   make(chan *model.ChangeSet, buffer),
		done:    make(chan struct{}),
	}
	go f.loop()
	return f
}

// Handle enqueues cs for delivery.
func (f *Forwarder) Handle(cs *model.ChangeSet) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		f.dropped.Add(1)
		return
	}
	select {
	case f.queue <- cs:
	default:
		f.dropped.Add(1)
		log.Warnw("audit queue full, change set dropped",
			"job_id", cs.JobId,
			"chunk", cs.Chunk)
	}
}

func (f *Forwarder) loop() {
	defer close(f.done)
	for cs := range f.queue {
		ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
		err := f.writer.Write(ctx, cs)
		cancel()
		if err != nil {
			f.failed.Add(1)
			log.Errorw("failed to write audit change set",
				"job_id", cs.JobId,
				"chunk", cs.Chunk,
				"error", err)
			continue
		}
		f.written.Add(1)
	}
}

// Close stops accepting change-sets and waits for the queue to drain.
func (f *Forwarder) Close() {
	f.once.Do(func() {
		f.mu.Lock()
		f.closed = true
		close(f.queue)
		f.mu.Unlock()
	})
	<-f.done
}

// Stats returns the delivery counters.
func (f *Forwarder) Stats() (written, failed, dropped int64) {
	return f.written.Load(), f.failed.Load(), f.dropped.Load()
}
