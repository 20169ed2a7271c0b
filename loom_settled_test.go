package loom

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOnSettled(t *testing.T) {
	t.Run("runs when flush finishes", func(t *testing.T) {
		log := []string{}

		count := NewSignal(0)

		NewEffect(func() {
			log = append(log, fmt.Sprintf("changed %d", count.Read()))

			OnCleanup(func() {
				log = append(log, "cleanup")
			})
		})

		OnSettled(func() {
			log = append(log, "settled")
		})

		count.Write(10)

		assert.Equal(t, []string{
			"changed 0",
			"cleanup",
			"changed 10",
			"settled",
		}, log)
	})

	t.Run("waits for chained effects", func(t *testing.T) {
		log := []string{}

		first := NewSignal(0)
		second := NewSignal(0)

		NewEffect(func() {
			second.Write(first.Read() * 2)
		})

		NewEffect(func() {
			log = append(log, fmt.Sprintf("second %d", second.Read()))
		})

		OnSettled(func() {
			log = append(log, "settled")
		})

		first.Write(10)

		assert.Equal(t, []string{
			"second 0",
			"second 20",
			"settled",
		}, log)
	})

	t.Run("runs once", func(t *testing.T) {
		runs := 0

		count := NewSignal(0)

		OnSettled(func() { runs++ })

		count.Write(1)
		count.Write(2)

		assert.Equal(t, 1, runs)
	})
}
