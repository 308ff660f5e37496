// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	var k keyedMutex
	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
	)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("s1")
			defer unlock()

			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 0, k.Len(), "entries are reclaimed when unused")
}

func TestKeyedMutex_DifferentKeysDoNotBlock(t *testing.T) {
	var k keyedMutex
	unlock := k.Lock("s1")
	defer unlock()

	done := make(chan struct{})
	go func() {
		u := k.Lock("s2")
		u()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on s2 blocked behind s1")
	}
}

func TestKeyedMutex_UnlockIsIdempotent(t *testing.T) {
	var k keyedMutex
	unlock := k.Lock("s1")
	unlock()
	unlock()
	assert.Equal(t, 0, k.Len())
}
