package queue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobEntryScoreOrdersByPriorityThenRunAt(t *testing.T) {
	now := time.Now()
	low := JobEntry{Priority: Low, RunAt: now}
	normal := JobEntry{Priority: Normal, RunAt: now}
	critical := JobEntry{Priority: Critical, RunAt: now}

	assert.Greater(t, critical.Score(), normal.Score())
	assert.Greater(t, normal.Score(), low.Score())
}

func TestJobEntryScoreEarlierRunAtWinsWithinPriority(t *testing.T) {
	now := time.Now()
	earlier := JobEntry{Priority: Normal, RunAt: now}
	later := JobEntry{Priority: Normal, RunAt: now.Add(time.Hour)}

	assert.Greater(t, earlier.Score(), later.Score())
}

func TestJobEntryCloneIsIndependent(t *testing.T) {
	completedAt := time.Now()
	original := JobEntry{
		Id:          NewJobId(),
		Payload:     []byte("hello"),
		CompletedAt: &completedAt,
	}

	clone := original.Clone()
	clone.Payload[0] = 'X'
	*clone.CompletedAt = completedAt.Add(time.Hour)

	assert.Equal(t, byte('h'), original.Payload[0])
	assert.Equal(t, completedAt, *original.CompletedAt)
}

func TestJobEntryJSONRoundTripPreservesRetryStrategy(t *testing.T) {
	entry := NewJobEntry("send_email", []byte(`{"to":"a@b.com"}`), High, 5, 30*time.Second)
	entry.Retry = ExponentialRetry{Initial: time.Second, Multiplier: 2, Max: time.Minute, MaxAttempts: 5, Jitter: true}

	blob, err := json.Marshal(entry)
	require.NoError(t, err)

	var decoded JobEntry
	require.NoError(t, json.Unmarshal(blob, &decoded))

	assert.Equal(t, entry.Id, decoded.Id)
	assert.Equal(t, entry.JobType, decoded.JobType)
	assert.Equal(t, entry.Priority, decoded.Priority)
	require.IsType(t, ExponentialRetry{}, decoded.Retry)
	got := decoded.Retry.(ExponentialRetry)
	assert.Equal(t, time.Second, got.Initial)
	assert.Equal(t, 2.0, got.Multiplier)
	assert.True(t, got.Jitter)
}

func TestJobEntryJSONRoundTripWithNilRetry(t *testing.T) {
	entry := NewJobEntry("noop", nil, Low, 0, 0)
	entry.Retry = nil

	blob, err := json.Marshal(entry)
	require.NoError(t, err)

	var decoded JobEntry
	require.NoError(t, json.Unmarshal(blob, &decoded))
	assert.Nil(t, decoded.Retry)
}
