package loom

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignal(t *testing.T) {
	t.Run("read and write", func(t *testing.T) {
		count := NewSignal(0)
		assert.Equal(t, 0, count.Read())

		count.Write(10)
		assert.Equal(t, 10, count.Read())
	})

	t.Run("concurrent read/write", func(t *testing.T) {
		var wg sync.WaitGroup
		count := NewSignal(0)

		wg.Go(func() {
			count.Write(count.Read() + 1)
		})

		wg.Wait()
		assert.Equal(t, 1, count.Read())
	})

	t.Run("zero values", func(t *testing.T) {
		err := NewSignal[error](nil)
		assert.Nil(t, err.Read())

		err.Write(errors.New("oops"))
		assert.EqualError(t, err.Read(), "oops")

		err.Write(nil)
		assert.Nil(t, err.Read())
	})

	t.Run("uncomparable values always notify", func(t *testing.T) {
		runs := 0

		records := NewSignal([]int{1})

		NewEffect(func() {
			records.Read()
			runs++
		})

		records.Write([]int{1})
		records.Write([]int{2})

		assert.Equal(t, 3, runs)
	})

	t.Run("equal write does not notify", func(t *testing.T) {
		runs := 0

		count := NewSignal(1)

		NewEffect(func() {
			count.Read()
			runs++
		})

		count.Write(1)
		assert.Equal(t, 1, runs)

		count.Write(2)
		assert.Equal(t, 2, runs)
	})
}
