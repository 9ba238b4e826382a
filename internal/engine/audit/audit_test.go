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
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-arcade/hierarchy/internal/engine/model"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeStream struct {
	mu   sync.Mutex
	args []*redis.XAddArgs
	err  error
}

func (f *fakeStream) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.args = append(f.args, a)
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	return redis.NewStringResult("1-0", nil)
}

type recordingWriter struct {
	mu      sync.Mutex
	written []*model.ChangeSet
	block   chan struct{}
	err     error
}

func (w *recordingWriter) Write(ctx context.Context, cs *model.ChangeSet) error {
	if w.block != nil {
		<-w.block
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.written = append(w.written, cs)
	return nil
}

func changeSet(chunk int) *model.ChangeSet {
	return &model.ChangeSet{
		JobId:        "job-1",
		CampaignId:   "C1",
		NodeId:       "N1",
		Action:       model.ActionBlock,
		Changes:      []model.NodeChange{{NodeId: "N1", Before: false, After: true}},
		RevokedCodes: []string{"CAND-ABCDEFGH"},
		Chunk:        chunk,
		Timestamp:    time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestConf(t *testing.T) {
	c := Conf{}
	c.SetDefaults()
	assert.Equal(t, SinkLog, c.Sink)
	assert.Equal(t, "hierarchy:audit", c.Stream)
	assert.Equal(t, 1024, c.Buffer)
	require.NoError(t, c.Validate())

	bad := Conf{Sink: "kafka"}
	assert.ErrorContains(t, bad.Validate(), "kafka")
}

func TestRedisStreamWriter(t *testing.T) {
	stream := &fakeStream{}
	w := NewRedisStreamWriter(stream, "audit", 1000)
	require.NoError(t, w.Write(context.Background(), changeSet(2)))

	require.Len(t, stream.args, 1)
	args := stream.args[0]
	assert.Equal(t, "audit", args.Stream)
	assert.Equal(t, int64(1000), args.MaxLen)
	assert.True(t, args.Approx)

	values, ok := args.Values.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "job-1", values["job_id"])
	assert.Equal(t, "BLOCK", values["action"])
	assert.Equal(t, 2, values["chunk"])

	var decoded model.ChangeSet
	require.NoError(t, json.Unmarshal([]byte(values["payload"].(string)), &decoded))
	assert.Equal(t, []string{"N1"}, decoded.NodeIds())
	assert.Equal(t, []string{"CAND-ABCDEFGH"}, decoded.RevokedCodes)
}

func TestRedisStreamWriter_Error(t *testing.T) {
	stream := &fakeStream{err: errors.New("READONLY")}
	w := NewRedisStreamWriter(stream, "audit", 0)
	err := w.Write(context.Background(), changeSet(1))
	assert.ErrorContains(t, err, "READONLY")
	assert.Zero(t, stream.args[0].MaxLen)
}

func TestForwarder_DeliversInOrder(t *testing.T) {
	w := &recordingWriter{}
	f := NewForwarder(w, 16, time.Second)
	for i := 1; i <= 5; i++ {
		f.Handle(changeSet(i))
	}
	f.Close()

	require.Len(t, w.written, 5)
	for i, cs := range w.written {
		assert.Equal(t, i+1, cs.Chunk)
	}
	written, failed, dropped := f.Stats()
	assert.Equal(t, int64(5), written)
	assert.Zero(t, failed)
	assert.Zero(t, dropped)

	// closed forwarders drop
	f.Handle(changeSet(6))
	_, _, dropped = f.Stats()
	assert.Equal(t, int64(1), dropped)
	f.Close()
}

func TestForwarder_FullQueueDrops(t *testing.T) {
	w := &recordingWriter{block: make(chan struct{})}
	f := NewForwarder(w, 1, time.Second)

	// the worker holds at most one change-set while blocked, the queue one more
	for i := 1; i <= 4; i++ {
		f.Handle(changeSet(i))
	}
	close(w.block)
	f.Close()

	written, _, dropped := f.Stats()
	assert.Equal(t, int64(4), written+dropped)
	assert.GreaterOrEqual(t, dropped, int64(2))
}

func TestForwarder_WriteFailure(t *testing.T) {
	w := &recordingWriter{err: errors.New("down")}
	f := NewForwarder(w, 4, time.Second)
	f.Handle(changeSet(1))
	f.Close()

	written, failed, _ := f.Stats()
	assert.Zero(t, written)
	assert.Equal(t, int64(1), failed)
}

func TestLogWriter(t *testing.T) {
	assert.NoError(t, LogWriter{}.Write(context.Background(), changeSet(1)))
}
