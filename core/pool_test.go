package core

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenericPool(t *testing.T) {
	t.Run("Get and Put", func(t *testing.T) {
		pool := NewGenericPool(func() *bytes.Buffer {
			return bytes.NewBuffer(make([]byte, 0, 128))
		})

		buf := pool.Get()
		require.NotNil(t, buf, "Get() should not return a nil buffer")
		assert.GreaterOrEqual(t, buf.Cap(), 128, "New buffer should carry the factory capacity")

		buf.WriteString("hello world")
		buf.Reset()
		pool.Put(buf)

		again := pool.Get()
		require.NotNil(t, again)
		assert.Zero(t, again.Len(), "Reused buffer should come back reset")
	})

	t.Run("Concurrent Access", func(t *testing.T) {
		pool := NewGenericPool(func() *bytes.Buffer { return new(bytes.Buffer) })
		var wg sync.WaitGroup
		numGoroutines := 200
		numOpsPerGoroutine := 100

		for i := 0; i < numGoroutines; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < numOpsPerGoroutine; j++ {
					buf := pool.Get()
					buf.WriteString("test")
					buf.Reset()
					pool.Put(buf)
				}
			}()
		}
		wg.Wait()
	})
}

// Benchmark for getting and putting a buffer from the pool
func BenchmarkGenericPool_GetPut(b *testing.B) {
	pool := NewGenericPool(func() *bytes.Buffer { return new(bytes.Buffer) })
	data := []byte("some data to write")

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			buf := pool.Get()
			buf.Write(data)
			buf.Reset()
			pool.Put(buf)
		}
	})
}
