package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotEmpty(t *testing.T) {
	snap := NewCollector().Snapshot()
	assert.Nil(t, snap.Completion)
	assert.Nil(t, snap.Upload)
	assert.Nil(t, snap.JobCreate)
	assert.Nil(t, snap.JobPoll)
}

func TestRecordTiming(t *testing.T) {
	c := NewCollector()
	c.RecordTiming(OpJobPoll, 10*time.Millisecond, nil)
	c.RecordTiming(OpJobPoll, 30*time.Millisecond, errors.New("boom"))

	snap := c.Snapshot()
	require.NotNil(t, snap.JobPoll)
	assert.Equal(t, int64(2), snap.JobPoll.Count)
	assert.Equal(t, int64(1), snap.JobPoll.Errors)
	assert.Equal(t, int64(10), snap.JobPoll.MinTimeMs)
	assert.Equal(t, int64(30), snap.JobPoll.MaxTimeMs)
	assert.Equal(t, 20.0, snap.JobPoll.AvgTimeMs)
	assert.Nil(t, snap.JobPoll.InputTokens)
}

func TestRecordLLMUsage(t *testing.T) {
	c := NewCollector()
	c.RecordLLMUsage(OpCompletion, 100*time.Millisecond, 12, 40, nil)
	c.RecordLLMUsage(OpCompletion, 50*time.Millisecond, 8, 10, nil)

	snap := c.Snapshot()
	require.NotNil(t, snap.Completion)
	require.NotNil(t, snap.Completion.InputTokens)
	assert.Equal(t, int64(20), *snap.Completion.InputTokens)
	assert.Equal(t, int64(50), *snap.Completion.OutputTokens)
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	c.RecordTiming(OpUpload, time.Second, nil)
	c.RecordLLMUsage(OpCompletion, time.Second, 1, 1, nil)
	assert.Nil(t, c.Snapshot().Upload)
}

func TestConcurrentRecording(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RecordTiming(OpUpload, time.Millisecond, nil)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), c.Snapshot().Upload.Count)
}
