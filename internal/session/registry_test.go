package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_GetCreatesOnce(t *testing.T) {
	reg := NewRegistry()

	rec := reg.Get("s1")
	require.NotNil(t, rec)
	assert.Equal(t, StateDisconnected, rec.State())

	assert.Same(t, rec, reg.Get("s1"), "same id must yield the same record")
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_GetIsRaceFree(t *testing.T) {
	reg := NewRegistry()

	var wg sync.WaitGroup
	records := make([]*Record, 16)
	for i := range records {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			records[i] = reg.Get("shared")
		}(i)
	}
	wg.Wait()

	for _, rec := range records[1:] {
		assert.Same(t, records[0], rec)
	}
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_Lookup(t *testing.T) {
	reg := NewRegistry()

	_, ok := reg.Lookup("missing")
	assert.False(t, ok)

	created := reg.Get("s1")
	found, ok := reg.Lookup("s1")
	require.True(t, ok)
	assert.Same(t, created, found)
}

func TestRegistry_Remove(t *testing.T) {
	reg := NewRegistry()
	reg.Get("s1")

	reg.Remove("s1")
	_, ok := reg.Lookup("s1")
	assert.False(t, ok)
	assert.Equal(t, 0, reg.Len())

	// Removing twice is harmless.
	reg.Remove("s1")
}

func TestRegistry_ListSortedByID(t *testing.T) {
	reg := NewRegistry()
	reg.Get("charlie")
	reg.Get("alpha").MarkConnected("5551234")
	reg.Get("bravo")

	list := reg.List()
	require.Len(t, list, 3)
	assert.Equal(t, "alpha", list[0].ID)
	assert.Equal(t, "bravo", list[1].ID)
	assert.Equal(t, "charlie", list[2].ID)
	assert.Equal(t, StateConnected, list[0].State)
	assert.Equal(t, "5551234", list[0].Identity)
}
