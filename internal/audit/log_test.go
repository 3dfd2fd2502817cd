package audit

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovidalb/webdesk/pkg/models"
)

func TestAppend_KeepsOrderAndIdentity(t *testing.T) {
	l := NewLog()

	a := l.Append(models.ActionClick, "s1", map[string]interface{}{"x_rel": 1})
	b := l.Append(models.ActionTypeText, "s1", map[string]interface{}{"chars": 5})

	recs := l.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, a, recs[0].ActionID)
	assert.Equal(t, b, recs[1].ActionID)
	assert.NotEqual(t, a, b)
	assert.Equal(t, models.ActionClick, recs[0].Type)
	assert.False(t, recs[0].Timestamp.IsZero())
}

func TestBeginComplete_FillsPendingDetails(t *testing.T) {
	l := NewLog()

	id := l.Begin(models.ActionCapture, "s1")
	recs := l.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, true, recs[0].Details["pending"])

	l.Complete(id, map[string]interface{}{"bbox": models.Rect{Width: 10, Height: 10}})

	recs = l.Records()
	require.Len(t, recs, 1, "complete must not add a record")
	assert.NotContains(t, recs[0].Details, "pending")
	assert.Contains(t, recs[0].Details, "bbox")
}

func TestBeginDiscard_RemovesOnlyThePendingRecord(t *testing.T) {
	l := NewLog()

	keep := l.Append(models.ActionClick, "s1", nil)
	pending := l.Begin(models.ActionCapture, "s1")

	l.Discard(pending)

	recs := l.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, keep, recs[0].ActionID)
}

func TestDiscard_UnknownIDIsNoOp(t *testing.T) {
	l := NewLog()
	l.Append(models.ActionClick, "s1", nil)
	l.Discard("not-there")
	assert.Equal(t, 1, l.Len())
}

func TestConcurrentAppends(t *testing.T) {
	l := NewLog()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Append(models.ActionClick, "s1", nil)
		}()
	}
	wg.Wait()

	recs := l.Records()
	require.Len(t, recs, 50)

	seen := make(map[string]bool)
	for _, rec := range recs {
		assert.False(t, seen[rec.ActionID], "duplicate action id")
		seen[rec.ActionID] = true
	}
}

func TestRecords_ReturnsSnapshot(t *testing.T) {
	l := NewLog()
	l.Append(models.ActionClick, "s1", nil)

	recs := l.Records()
	l.Append(models.ActionClick, "s1", nil)
	assert.Len(t, recs, 1, "snapshot must not grow with the log")
}
