package lsp

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCoordinatorRunsJobsInSubmissionOrder(t *testing.T) {
	tc := NewTypechecker(testConfig(), NewBufferOutput())
	coord := NewTypecheckerCoordinator(tc)
	defer coord.Shutdown()

	var mu sync.Mutex
	var order []int

	for i := 0; i < 10; i++ {
		i := i
		coord.AsyncRun(func(*Typechecker) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}

	// A SyncRun submitted after async jobs observes all of them.
	var seen int
	coord.SyncRun(func(*Typechecker) {
		mu.Lock()
		seen = len(order)
		mu.Unlock()
	})
	assert.Equal(t, 10, seen)

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestCoordinatorSyncRunBlocksUntilComplete(t *testing.T) {
	tc := NewTypechecker(testConfig(), NewBufferOutput())
	coord := NewTypecheckerCoordinator(tc)
	defer coord.Shutdown()

	ran := false
	coord.SyncRun(func(*Typechecker) {
		ran = true
	})
	assert.True(t, ran, "SyncRun must not return before the job runs")
}

func TestCoordinatorShutdownDrainsQueue(t *testing.T) {
	tc := NewTypechecker(testConfig(), NewBufferOutput())
	coord := NewTypecheckerCoordinator(tc)

	var mu sync.Mutex
	count := 0
	for i := 0; i < 5; i++ {
		coord.AsyncRun(func(*Typechecker) {
			mu.Lock()
			count++
			mu.Unlock()
		})
	}
	coord.Shutdown()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 5, count, "pending jobs finish before Shutdown returns")
}
