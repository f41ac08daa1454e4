package server

import (
	"net/http"
	"testing"
	"time"

	"github.com/codemind/reviewhub/internal/database"
	"github.com/stretchr/testify/assert"
)

func Test_unsubscribeRoom(t *testing.T) {
	t.Run("forwards the request to the room", func(t *testing.T) {
		cs := newTestCollabServer(t, &database.MockReviewRepository{}, newMockStats())
		room := newTestRoom(t, cs)
		room.leaveChan = make(chan *ClientMessage, 1)

		c := newTestClient(t, cs, 1)
		room.addClient(c, "sub-1")

		msg := &ClientMessage{Id: 1, Unsubscribe: &Unsubscribe{RoomId: room.externalId}, UserId: 1, client: c}
		c.unsubscribeRoom(msg)

		select {
		case forwarded := <-room.leaveChan:
			assert.Equal(t, msg, forwarded)
		case <-time.After(100 * time.Millisecond):
			t.Error("timeout: unsubscribe was not forwarded to the room")
		}
	})

	t.Run("acks a repeated unsubscribe as a no-op", func(t *testing.T) {
		cs := newTestCollabServer(t, &database.MockReviewRepository{}, newMockStats())
		room := newTestRoom(t, cs)

		c := newTestClient(t, cs, 1)
		room.addClient(c, "sub-1")

		leave := &ClientMessage{Id: 1, Unsubscribe: &Unsubscribe{RoomId: room.externalId}, UserId: 1, client: c}
		room.handleLeave(leave)
		<-c.send // ack for the first unsubscribe

		c.unsubscribeRoom(&ClientMessage{Id: 2, Unsubscribe: &Unsubscribe{RoomId: room.externalId}, UserId: 1, client: c})

		select {
		case msg := <-c.send:
			assert.NotNil(t, msg.Response)
			assert.Equal(t, 2, msg.Id)
			assert.Equal(t, http.StatusOK, msg.Response.ResponseCode, "expected repeated unsubscribe to succeed")
			assert.Empty(t, msg.Response.Error)
		case <-time.After(100 * time.Millisecond):
			t.Error("timeout: client did not receive no-op ack")
		}
	})

	t.Run("acks unsubscribe after a stale eviction", func(t *testing.T) {
		cs := newTestCollabServer(t, &database.MockReviewRepository{}, newMockStats())
		room := newTestRoom(t, cs)

		c := newTestClient(t, cs, 1)
		c.send = make(chan *ServerMessage, 1)
		c.send <- &ServerMessage{} // fill the buffer so the broadcast evicts
		room.addClient(c, "sub-1")

		room.broadcast(&ServerMessage{})
		assert.NotContains(t, room.clients, c, "expected client to be evicted")

		<-c.send // drain the filler so the ack can land
		c.unsubscribeRoom(&ClientMessage{Id: 3, Unsubscribe: &Unsubscribe{RoomId: room.externalId}, UserId: 1, client: c})

		select {
		case msg := <-c.send:
			assert.NotNil(t, msg.Response)
			assert.Equal(t, http.StatusOK, msg.Response.ResponseCode, "expected unsubscribe after eviction to succeed")
		case <-time.After(100 * time.Millisecond):
			t.Error("timeout: client did not receive no-op ack")
		}
	})
}
