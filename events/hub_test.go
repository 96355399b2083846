package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub, cancel
}

func subscribe(t *testing.T, hub *Hub, room string) *Client {
	t.Helper()
	client := NewClient(hub, nil, room)
	require.True(t, hub.Subscribe(client))
	require.Eventually(t, func() bool { return hub.RoomSize(room) > 0 }, time.Second, 5*time.Millisecond)
	return client
}

func receive(t *testing.T, client *Client) Message {
	t.Helper()
	select {
	case raw, ok := <-client.Send:
		require.True(t, ok, "send channel closed")
		var msg Message
		require.NoError(t, json.Unmarshal(raw, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return Message{}
	}
}

func TestPublishDeliversToRoom(t *testing.T) {
	hub, _ := startHub(t)
	client := subscribe(t, hub, TeamsRoom)

	hub.Publish(TeamsRoom, TeamCreated, map[string]int64{"team_id": 7})

	msg := receive(t, client)
	assert.Equal(t, TeamCreated, msg.Type)
	assert.Equal(t, TeamsRoom, msg.RoomID)
	payload, ok := msg.Payload.(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 7, payload["team_id"])
}

func TestPublishIsScopedToRoom(t *testing.T) {
	hub, _ := startHub(t)
	teamClient := subscribe(t, hub, TeamRoom("1"))

	hub.Publish(TeamRoom("2"), MembershipChanged, nil)
	hub.Publish(TeamRoom("1"), MembershipChanged, nil)

	msg := receive(t, teamClient)
	assert.Equal(t, "team_1", msg.RoomID)
	assert.Empty(t, teamClient.Send)
}

func TestUnsubscribeClosesClient(t *testing.T) {
	hub, _ := startHub(t)
	client := subscribe(t, hub, TeamsRoom)

	hub.unsubscribe(client)

	require.Eventually(t, func() bool { return hub.RoomSize(TeamsRoom) == 0 }, time.Second, 5*time.Millisecond)
	_, ok := <-client.Send
	assert.False(t, ok)
}

func TestShutdownDisconnectsClients(t *testing.T) {
	hub, cancel := startHub(t)
	client := subscribe(t, hub, TeamsRoom)

	cancel()

	select {
	case _, ok := <-client.Send:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("client was not disconnected")
	}
	assert.False(t, hub.Subscribe(NewClient(hub, nil, TeamsRoom)))
}

func TestPublishToEmptyRoomIsNoop(t *testing.T) {
	hub, _ := startHub(t)
	assert.NotPanics(t, func() { hub.Publish("nobody", TeamDeleted, nil) })
}
