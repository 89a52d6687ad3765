package websocket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterUnregister(t *testing.T) {
	r := NewRegistry()
	a, _ := newTestPair(t, Options{})
	b, _ := newTestPair(t, Options{})

	r.Register(a)
	r.Register(a)
	r.Register(b)
	r.Register(nil)

	conns, users := r.Stats()
	assert.Equal(t, 2, conns)
	assert.Equal(t, 1, users, "both test connections belong to user-1")

	r.Unregister(a)
	r.Unregister(a)
	conns, users = r.Stats()
	assert.Equal(t, 1, conns)
	assert.Equal(t, 1, users)

	r.Unregister(b)
	conns, users = r.Stats()
	assert.Equal(t, 0, conns)
	assert.Equal(t, 0, users)
}

func TestRegistry_CloseAll(t *testing.T) {
	r := NewRegistry()
	a, clientA := newTestPair(t, Options{})
	b, clientB := newTestPair(t, Options{})
	r.Register(a)
	r.Register(b)

	require.NoError(t, r.CloseAll())

	assert.False(t, a.IsOpen())
	assert.False(t, b.IsOpen())
	for _, client := range []interface {
		SetReadDeadline(time.Time) error
		ReadMessage() (int, []byte, error)
	}{clientA, clientB} {
		require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, _, err := client.ReadMessage()
		assert.Error(t, err)
	}
}
