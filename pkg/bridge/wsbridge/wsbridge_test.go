package wsbridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewBridgeHasNoClients(t *testing.T) {
	b := New()
	assert.Equal(t, 0, b.NumClients())
}

func TestPublishToNoClientsIsANoop(t *testing.T) {
	b := New()
	assert.NotPanics(t, func() { b.Publish([]byte("hello")) })
}

func TestPublishDropsFramesForBackloggedClients(t *testing.T) {
	b := New()
	ch := make(chan []byte, 1)
	b.mu.Lock()
	b.clients[nil] = ch
	b.mu.Unlock()

	b.Publish([]byte("first"))
	b.Publish([]byte("second")) // queue is full, must be dropped not block

	assert.Equal(t, []byte("first"), <-ch)
	select {
	case <-ch:
		t.Fatal("expected the second frame to have been dropped")
	default:
	}
}
