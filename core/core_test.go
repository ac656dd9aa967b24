package core

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTurnConstructors(t *testing.T) {
	user := NewUserTurn("hello")
	assert.Equal(t, RoleUser, user.Role)
	assert.Equal(t, "hello", user.Content)
	assert.NotEmpty(t, user.ID)
	assert.False(t, user.CreatedAt.IsZero())

	asst := NewAssistantTurn("partial answer", true)
	assert.Equal(t, RoleAssistant, asst.Role)
	assert.True(t, asst.Incomplete)

	toolTurn := NewToolTurn("get_time", "It's noon")
	assert.Equal(t, RoleTool, toolTurn.Role)
	assert.Equal(t, "get_time", toolTurn.ToolName)
	assert.Equal(t, "It's noon", toolTurn.Content)

	assert.NotEqual(t, user.ID, asst.ID)
}

func TestSession_AppendOrder(t *testing.T) {
	sess := NewSession("s1")

	for i := 0; i < 5; i++ {
		sess.Append(NewUserTurn(fmt.Sprintf("turn %d", i)))
	}

	require.Equal(t, 5, sess.Len())
	snapshot := sess.Snapshot()
	for i, turn := range snapshot {
		assert.Equal(t, fmt.Sprintf("turn %d", i), turn.Content)
	}
}

func TestSession_Tail(t *testing.T) {
	sess := NewSession("s1")
	for i := 0; i < 5; i++ {
		sess.Append(NewUserTurn(fmt.Sprintf("turn %d", i)))
	}

	tail := sess.Tail(2)
	require.Len(t, tail, 2)
	assert.Equal(t, "turn 3", tail[0].Content)
	assert.Equal(t, "turn 4", tail[1].Content)

	assert.Len(t, sess.Tail(0), 5)
	assert.Len(t, sess.Tail(100), 5)
}

func TestSession_SnapshotIsDefensive(t *testing.T) {
	sess := NewSession("s1")
	sess.Append(NewUserTurn("original"))

	snapshot := sess.Snapshot()
	snapshot[0].Content = "mutated"

	assert.Equal(t, "original", sess.Snapshot()[0].Content)
}

func TestSession_CloneIsIndependent(t *testing.T) {
	sess := NewSession("s1")
	sess.Append(NewUserTurn("one"))

	clone := sess.Clone()
	clone.Append(NewUserTurn("two"))

	assert.Equal(t, 1, sess.Len())
	assert.Equal(t, 2, clone.Len())
}

func TestSession_ConcurrentAppend(t *testing.T) {
	sess := NewSession("s1")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				sess.Append(NewUserTurn("x"))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 200, sess.Len())
}

func TestStreamEvent_IsTerminal(t *testing.T) {
	assert.True(t, FinalEvent("done").IsTerminal())
	assert.True(t, ErrorEvent("boom").IsTerminal())
	assert.False(t, ChunkEvent("x").IsTerminal())
	assert.False(t, InfoEvent("slow").IsTerminal())
	assert.False(t, ToolStartEvent("t", "{}").IsTerminal())
	assert.False(t, ToolEndEvent("t", "ok").IsTerminal())
}

func TestSentinelErrors(t *testing.T) {
	wrapped := fmt.Errorf("%w: session s1", ErrSessionBusy)
	assert.ErrorIs(t, wrapped, ErrSessionBusy)
	assert.False(t, errors.Is(wrapped, ErrMalformedRequest))
}
