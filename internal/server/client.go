package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/codemind/reviewhub/internal/stats"
	"github.com/codemind/reviewhub/internal/types"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 1024
)

// Client is a single websocket connection. Event delivery is best-effort:
// the send channel is bounded and a subscription whose channel is full when
// an event arrives is dropped rather than allowed to stall the room.
type Client struct {
	conn         *websocket.Conn
	collabServer *CollabServer
	log          *log.Logger
	user         types.User
	send         chan *ServerMessage
	rooms        map[string]*Room
	roomsLock    sync.RWMutex
	stop         chan struct{}
}

func NewClient(user types.User, conn *websocket.Conn, cs *CollabServer, l *log.Logger) *Client {
	return &Client{
		conn:         conn,
		collabServer: cs,
		log:          l,
		user:         user,
		send:         make(chan *ServerMessage, 256),
		rooms:        make(map[string]*Room),
		stop:         make(chan struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(time.Duration(pingInterval))
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Println("error parsing message:", err)
			c.queueMessage(ErrInvalidMessage(-1))
			continue
		}

		msg.client = c
		msg.UserId = c.user.Id

		// the control schema is closed: a frame must carry exactly one
		// recognized operation
		switch {
		case msg.Subscribe != nil:
			c.subscribeRoom(&msg)
		case msg.Unsubscribe != nil:
			c.unsubscribeRoom(&msg)
		default:
			c.queueMessage(ErrInvalidMessage(msg.Id))
		}
	}
}

func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Println("failed to send message to client, channel is full")
		return false
	}

	return true
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	close(c.stop)
}

func (c *Client) cleanup() {
	c.collabServer.deRegisterChan <- c
	c.leaveAllRooms()
	c.stopClient()
}

func (c *Client) leaveAllRooms() {
	c.roomsLock.RLock()
	defer c.roomsLock.RUnlock()

	for _, room := range c.rooms {
		room.leaveChan <- &ClientMessage{
			Unsubscribe: &Unsubscribe{RoomId: room.externalId},
			UserId:      c.user.Id,
			client:      c,
		}
	}
}

func (c *Client) subscribeRoom(msg *ClientMessage) {
	select {
	case c.collabServer.subscribeChan <- msg:
	default:
		c.log.Printf("subscribeChan full")
		c.queueMessage(ErrServiceUnavailable(msg.Id))
	}
}

// unsubscribeRoom is idempotent: unsubscribing from a room the client no
// longer holds (already left, or evicted as stale) acks as a no-op.
func (c *Client) unsubscribeRoom(msg *ClientMessage) {
	r := c.getRoom(msg.Unsubscribe.RoomId)
	if r == nil {
		c.queueMessage(NoErrOK(msg.Id, nil))
		return
	}

	select {
	case r.leaveChan <- msg:
	default:
		c.log.Printf("leaveChan full for room %q", r.externalId)
		c.queueMessage(ErrServiceUnavailable(msg.Id))
	}
}

func (c *Client) delRoom(id string) {
	c.roomsLock.Lock()
	defer c.roomsLock.Unlock()

	if _, ok := c.rooms[id]; ok {
		delete(c.rooms, id)
		c.collabServer.stats.Decr(stats.ActiveSubscriptions)
	}
}

func (c *Client) addRoom(r *Room) {
	c.roomsLock.Lock()
	defer c.roomsLock.Unlock()

	c.rooms[r.externalId] = r
	c.collabServer.stats.Incr(stats.ActiveSubscriptions)
}

func (c *Client) getRoom(id string) *Room {
	c.roomsLock.RLock()
	defer c.roomsLock.RUnlock()

	if room, ok := c.rooms[id]; ok {
		return room
	}

	return nil
}
