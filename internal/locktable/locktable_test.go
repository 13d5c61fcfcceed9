package locktable_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"arcanedb/internal/locktable"
	"arcanedb/internal/tsutil"
)

func TestLockThenUnlockAllowsNextHolder(t *testing.T) {
	lt := locktable.New(100 * time.Millisecond)
	require.NoError(t, lt.Lock("k", tsutil.Ts(1)))
	lt.Unlock("k", tsutil.Ts(1))
	require.NoError(t, lt.Lock("k", tsutil.Ts(2)))
}

func TestLockTimesOutWhenContended(t *testing.T) {
	lt := locktable.New(30 * time.Millisecond)
	require.NoError(t, lt.Lock("k", tsutil.Ts(1)))

	start := time.Now()
	err := lt.Lock("k", tsutil.Ts(2))
	require.Error(t, err)
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestConcurrentLockersOnlyOneSucceedsAtATime(t *testing.T) {
	lt := locktable.New(500 * time.Millisecond)
	var mu sync.Mutex
	holders := 0
	maxConcurrent := 0

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			require.NoError(t, lt.Lock("k", tsutil.Ts(i)))
			mu.Lock()
			holders++
			if holders > maxConcurrent {
				maxConcurrent = holders
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			holders--
			mu.Unlock()
			lt.Unlock("k", tsutil.Ts(i))
		}(i)
	}
	wg.Wait()
	require.Equal(t, 1, maxConcurrent)
}
