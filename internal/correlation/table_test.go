package correlation

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alertaperu/community-alarm/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestTable_ConsumeIsReadOnce(t *testing.T) {
	table := NewTable(time.Minute)

	table.RecordIntent("Village", "111")

	id, ok := table.ConsumeIfPresent("village")
	require.True(t, ok)
	assert.Equal(t, models.ExternalID("111"), id)

	_, ok = table.ConsumeIfPresent("village")
	assert.False(t, ok)
	assert.Equal(t, 0, table.Len())
}

func TestTable_LastIntentWins(t *testing.T) {
	table := NewTable(time.Minute)

	table.RecordIntent("village", "111")
	table.RecordIntent("village", "222")

	id, ok := table.ConsumeIfPresent("village")
	require.True(t, ok)
	assert.Equal(t, models.ExternalID("222"), id)

	_, ok = table.ConsumeIfPresent("village")
	assert.False(t, ok)
}

func TestTable_CommunitiesAreIndependent(t *testing.T) {
	table := NewTable(time.Minute)

	table.RecordIntent("village", "111")
	table.RecordIntent("mosca", "333")

	id, ok := table.ConsumeIfPresent("mosca")
	require.True(t, ok)
	assert.Equal(t, models.ExternalID("333"), id)

	entry, ok := table.Peek("village")
	require.True(t, ok)
	assert.Equal(t, models.ExternalID("111"), entry.ExternalID)
}

func TestTable_Expiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)}
	table := NewTable(10*time.Minute, WithClock(clock.Now))

	table.RecordIntent("village", "111")
	clock.Advance(10 * time.Minute)

	_, ok := table.Peek("village")
	assert.True(t, ok, "entry is still live exactly at the ttl")

	clock.Advance(time.Second)
	_, ok = table.ConsumeIfPresent("village")
	assert.False(t, ok)
	assert.Equal(t, 0, table.Len(), "expired entry is dropped on consume")
}

func TestTable_Sweep(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)}
	table := NewTable(5*time.Minute, WithClock(clock.Now))

	table.RecordIntent("old", "1")
	clock.Advance(6 * time.Minute)
	table.RecordIntent("fresh", "2")

	assert.Equal(t, 1, table.Sweep())
	assert.Equal(t, 1, table.Len())

	_, ok := table.Peek("fresh")
	assert.True(t, ok)
}

func TestTable_NoExpiryWhenTTLDisabled(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)}
	table := NewTable(0, WithClock(clock.Now))

	table.RecordIntent("village", "111")
	clock.Advance(24 * time.Hour)

	assert.Equal(t, 0, table.Sweep())
	_, ok := table.ConsumeIfPresent("village")
	assert.True(t, ok)
}

func TestTable_ConcurrentConsumeHandsOutEntryOnce(t *testing.T) {
	table := NewTable(time.Minute)
	table.RecordIntent("village", "111")

	var wg sync.WaitGroup
	var mu sync.Mutex
	hits := 0

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := table.ConsumeIfPresent("village"); ok {
				mu.Lock()
				hits++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, hits)
}

func TestTable_ConcurrentRecordAcrossCommunities(t *testing.T) {
	table := NewTable(time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			table.RecordIntent(fmt.Sprintf("community-%d", n), models.ExternalID(fmt.Sprint(n)))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, table.Len())
	id, ok := table.ConsumeIfPresent("community-7")
	require.True(t, ok)
	assert.Equal(t, models.ExternalID("7"), id)
}
