package memory

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidenhq/aiden/core"
)

func TestInMemoryStore_LazyCreate(t *testing.T) {
	store := NewInMemoryStore()

	sess, err := store.Get("s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", sess.ID)
	assert.Equal(t, 0, sess.Len())
}

func TestInMemoryStore_AppendAndHistory(t *testing.T) {
	store := NewInMemoryStore()

	require.NoError(t, store.AppendTurn("s1", core.NewUserTurn("hello")))
	require.NoError(t, store.AppendTurn("s1", core.NewAssistantTurn("hi there", false)))
	require.NoError(t, store.AppendTurn("s1", core.NewUserTurn("what time is it?")))

	history, err := store.History("s1", 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, core.RoleUser, history[0].Role)
	assert.Equal(t, "hello", history[0].Content)
	assert.Equal(t, core.RoleAssistant, history[1].Role)
	assert.Equal(t, "what time is it?", history[2].Content)

	// Limit keeps the most recent turns.
	tail, err := store.History("s1", 2)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, "hi there", tail[0].Content)
	assert.Equal(t, "what time is it?", tail[1].Content)
}

func TestInMemoryStore_SessionIsolation(t *testing.T) {
	store := NewInMemoryStore()

	require.NoError(t, store.AppendTurn("a", core.NewUserTurn("for a")))
	require.NoError(t, store.AppendTurn("b", core.NewUserTurn("for b")))

	ha, err := store.History("a", 0)
	require.NoError(t, err)
	hb, err := store.History("b", 0)
	require.NoError(t, err)

	require.Len(t, ha, 1)
	require.Len(t, hb, 1)
	assert.Equal(t, "for a", ha[0].Content)
	assert.Equal(t, "for b", hb[0].Content)
}

func TestInMemoryStore_GetReturnsClone(t *testing.T) {
	store := NewInMemoryStore()
	require.NoError(t, store.AppendTurn("s1", core.NewUserTurn("original")))

	sess, err := store.Get("s1")
	require.NoError(t, err)
	sess.Turns[0].Content = "mutated"

	history, err := store.History("s1", 0)
	require.NoError(t, err)
	assert.Equal(t, "original", history[0].Content)
}

func TestInMemoryStore_ConcurrentAppend(t *testing.T) {
	store := NewInMemoryStore()

	const writers = 8
	const perWriter = 25

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_ = store.AppendTurn("shared", core.NewUserTurn(fmt.Sprintf("w%d-%d", w, i)))
			}
		}(w)
	}
	wg.Wait()

	history, err := store.History("shared", 0)
	require.NoError(t, err)
	assert.Len(t, history, writers*perWriter)
}
