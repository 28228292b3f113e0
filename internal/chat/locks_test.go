package chat

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLockTableSerializesPerKey(t *testing.T) {
	table := newLockTable()
	counts := map[string]*int{"a": new(int), "b": new(int)}
	var wg sync.WaitGroup

	for i := 0; i < 200; i++ {
		key := "a"
		if i%2 == 1 {
			key = "b"
		}
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			unlock := table.Lock(key)
			defer unlock()
			*counts[key]++
		}(key)
	}
	wg.Wait()

	assert.Equal(t, 100, *counts["a"])
	assert.Equal(t, 100, *counts["b"])
	assert.Zero(t, table.size())
}
