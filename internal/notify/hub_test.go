package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubDeliversToRecipientsOnly(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	defer hub.Stop()

	alice := &client{send: make(chan []byte, 4), userID: "alice"}
	bob := &client{send: make(chan []byte, 4), userID: "bob"}
	hub.register <- alice
	hub.register <- bob

	require.NoError(t, hub.Notify(context.Background(), []string{"alice"}, "Gym booked", map[string]string{"reservationId": "r1"}))

	select {
	case got := <-alice.send:
		var n Notification
		require.NoError(t, json.Unmarshal(got, &n))
		assert.Equal(t, "Gym booked", n.Message)
		assert.Equal(t, "r1", n.Metadata["reservationId"])
		assert.NotEmpty(t, n.ID)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}

	select {
	case <-bob.send:
		t.Fatal("bob is not a recipient")
	case <-time.After(50 * time.Millisecond):
	}

	assert.Equal(t, 1, hub.Online("alice"))
	hub.unregister <- alice
	assert.Eventually(t, func() bool { return hub.Online("alice") == 0 }, time.Second, 5*time.Millisecond)
}

func TestHubStopped(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	hub.Stop()
	hub.Stop()
	// nothing drains deliver any more; once it is full only stop can be chosen
	for len(hub.deliver) < cap(hub.deliver) {
		hub.deliver <- delivery{}
	}
	err := hub.Notify(context.Background(), []string{"x"}, "m", nil)
	assert.ErrorIs(t, err, ErrHubStopped)
}

type failing struct{ err error }

func (f failing) Notify(context.Context, []string, string, map[string]string) error { return f.err }

func TestMultiJoinsErrors(t *testing.T) {
	e1, e2 := errors.New("one"), errors.New("two")
	err := Multi{failing{e1}, Discard{}, failing{e2}}.Notify(context.Background(), nil, "m", nil)
	assert.ErrorIs(t, err, e1)
	assert.ErrorIs(t, err, e2)
	assert.NoError(t, Multi{Discard{}}.Notify(context.Background(), nil, "m", nil))
}
