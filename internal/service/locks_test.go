package service

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	k := newKeyedMutex()
	counters := map[string]int{"a": 0, "b": 0}
	var mapMu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		key := "a"
		if i%2 == 1 {
			key = "b"
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock(key)
			defer unlock()

			mapMu.Lock()
			v := counters[key]
			mapMu.Unlock()

			mapMu.Lock()
			counters[key] = v + 1
			mapMu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counters["a"])
	assert.Equal(t, 50, counters["b"])
	assert.Zero(t, k.size())
}
