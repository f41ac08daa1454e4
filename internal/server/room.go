package server

import (
	"database/sql"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/codemind/reviewhub/internal/database"
	"github.com/codemind/reviewhub/internal/stats"
	"github.com/codemind/reviewhub/internal/types"
	"github.com/google/uuid"
)

const idleRoomTimeout = 5 * time.Minute

type exitReq struct {
	done chan bool
}

type writeResult struct {
	thread  database.Thread
	comment database.Comment
	seq     int
	err     error
}

// writeReq carries a thread or comment write into the room's goroutine.
// The reply channel must be buffered so the room never blocks on a caller
// that gave up.
type writeReq struct {
	thread  *database.CreateThreadParams
	comment *database.CreateCommentParams
	reply   chan writeResult
}

// Room is the single goroutine owning a loaded room's sequence counter.
// All writes for the room funnel through writeChan, which serializes the
// persist-then-increment-then-broadcast cycle without locks.
type Room struct {
	id         int
	externalId string
	seqId      int
	cs         *CollabServer
	joinChan   chan *ClientMessage
	leaveChan  chan *ClientMessage
	writeChan  chan *writeReq
	// clients maps each subscribed connection to its subscription id
	clients    map[*Client]string
	clientLock sync.RWMutex
	log        *log.Logger
	// killTimer unloads the room once it has been idle with no subscribers
	killTimer *time.Timer
	exit      chan exitReq
	done      chan struct{}
}

func (r *Room) start() {
	r.log.Printf("starting room %q", r.externalId)
	r.killTimer = time.NewTimer(idleRoomTimeout)

	for {
		select {
		case join := <-r.joinChan:
			r.handleJoin(join)
		case leaveMsg := <-r.leaveChan:
			r.handleLeave(leaveMsg)
		case req := <-r.writeChan:
			r.handleWrite(req)
		case <-r.killTimer.C:
			if r.handleRoomTimeout() {
				return
			}
		case e := <-r.exit:
			r.handleRoomExit(e)
			return
		}
	}
}

// handleRoomTimeout asks the server to unload this room. It also listens
// for exit so a shutdown arriving at the same moment cannot deadlock.
func (r *Room) handleRoomTimeout() bool {
	r.log.Printf("room %q timed out", r.externalId)

	select {
	case r.cs.unloadRoomChan <- r.externalId:
		return false
	case e := <-r.exit:
		r.handleRoomExit(e)
		return true
	}
}

// handleRoomExit drains any writes already submitted before the goroutine
// stops, so a caller racing the unload still gets its write persisted.
func (r *Room) handleRoomExit(e exitReq) {
	r.log.Printf("room %q is exiting", r.externalId)

	for {
		select {
		case req := <-r.writeChan:
			r.handleWrite(req)
			continue
		default:
		}
		break
	}

	r.clientLock.Lock()
	for c := range r.clients {
		c.delRoom(r.externalId)
	}
	r.clients = make(map[*Client]string)
	r.clientLock.Unlock()

	close(r.done)
	r.cs.stats.Decr(stats.LoadedRooms)

	if e.done != nil {
		e.done <- true
	}
}

// handleJoin admits a connection to the room's broadcast set. Any
// membership grants read access; a missing membership is a permission
// error, not a not-found, so non-members cannot probe room ids.
func (r *Room) handleJoin(join *ClientMessage) {
	r.killTimer.Stop()

	c := join.client
	m, err := r.cs.db.GetMembership(r.id, c.user.Id)
	if err != nil {
		if len(r.clients) == 0 {
			r.killTimer.Reset(idleRoomTimeout)
		}

		if errors.Is(err, sql.ErrNoRows) {
			c.queueMessage(ErrPermissionDenied(join.Id))
		} else {
			r.log.Println("GetMembership:", err)
			c.queueMessage(ErrInternalError(join.Id))
		}
		return
	}

	if !types.Role(m.Role).Can(types.ActionRead) {
		if len(r.clients) == 0 {
			r.killTimer.Reset(idleRoomTimeout)
		}
		c.queueMessage(ErrPermissionDenied(join.Id))
		return
	}

	subId := uuid.NewString()
	r.addClient(c, subId)

	// the ack carries the room's current sequence so the client can list
	// existing threads and comments and know exactly where the live
	// event feed picks up
	c.queueMessage(NoErrOK(join.Id, map[string]any{
		"room_id":         r.externalId,
		"subscription_id": subId,
		"seq_id":          r.seqId,
		"role":            m.Role,
	}))

	r.broadcast(&ServerMessage{
		Timestamp: Now(),
		Event: &Envelope{
			RoomId:    r.externalId,
			Sequence:  r.seqId,
			Kind:      KindStatus,
			Status:    &Status{Message: "subscribed", UserId: c.user.Id},
			Timestamp: Now(),
		},
		SkipClient: c,
	})
}

func (r *Room) handleLeave(leaveMsg *ClientMessage) {
	c := leaveMsg.client
	r.removeClient(c)

	if leaveMsg.Id != 0 {
		c.queueMessage(NoErrOK(leaveMsg.Id, nil))
	}

	r.broadcast(&ServerMessage{
		Timestamp: Now(),
		Event: &Envelope{
			RoomId:    r.externalId,
			Sequence:  r.seqId,
			Kind:      KindStatus,
			Status:    &Status{Message: "unsubscribed", UserId: leaveMsg.UserId},
			Timestamp: Now(),
		},
		SkipClient: c,
	})
}

// handleWrite persists a thread or comment with the room's next sequence
// number, advances the in-memory counter only after the write commits,
// replies to the caller, and then broadcasts. A failed write leaves the
// counter untouched so the sequence stays gapless.
func (r *Room) handleWrite(req *writeReq) {
	switch {
	case req.thread != nil:
		params := *req.thread
		params.RoomId = r.id
		params.SeqId = r.seqId + 1

		thread, err := r.cs.db.CreateThread(params)
		if err != nil {
			req.reply <- writeResult{err: err}
			return
		}

		r.seqId++
		req.reply <- writeResult{thread: thread, seq: r.seqId}

		r.broadcast(&ServerMessage{
			Timestamp: Now(),
			Event: &Envelope{
				RoomId:    r.externalId,
				Sequence:  r.seqId,
				Kind:      KindThread,
				Thread:    apiThread(thread),
				Timestamp: Now(),
			},
		})
		r.cs.stats.Incr(stats.EventsPublished)
		r.cs.notifier.ThreadCreated(thread)
	case req.comment != nil:
		params := *req.comment
		params.RoomId = r.id
		params.SeqId = r.seqId + 1

		comment, err := r.cs.db.CreateComment(params)
		if err != nil {
			req.reply <- writeResult{err: err}
			return
		}

		r.seqId++
		req.reply <- writeResult{comment: comment, seq: r.seqId}

		r.broadcast(&ServerMessage{
			Timestamp: Now(),
			Event: &Envelope{
				RoomId:    r.externalId,
				Sequence:  r.seqId,
				Kind:      KindComment,
				Comment:   apiComment(comment),
				Timestamp: Now(),
			},
		})
		r.cs.stats.Incr(stats.EventsPublished)
		r.cs.notifier.CommentCreated(comment)
	}
}

func (r *Room) addClient(c *Client, subId string) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	r.clients[c] = subId
	c.addRoom(r)
}

func (r *Room) removeClient(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	if _, ok := r.clients[c]; !ok {
		return
	}

	delete(r.clients, c)
	c.delRoom(r.externalId)

	if len(r.clients) == 0 {
		r.log.Printf("no subscribers in %q, starting kill timer", r.externalId)
		r.killTimer.Reset(idleRoomTimeout)
	}
}

// broadcast fans an event out to every subscribed connection. A connection
// whose send buffer is full is evicted from this room only; its other
// subscriptions and the connection itself stay up.
func (r *Room) broadcast(msg *ServerMessage) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	var stale []*Client
	for client := range r.clients {
		if client == msg.SkipClient {
			continue
		}

		if !client.queueMessage(msg) {
			stale = append(stale, client)
		}
	}

	for _, client := range stale {
		r.log.Printf("dropping stale subscription for user %d in room %q", client.user.Id, r.externalId)
		delete(r.clients, client)
		client.delRoom(r.externalId)
		r.cs.stats.Incr(stats.StaleSubscriptions)
	}

	if len(r.clients) == 0 {
		r.killTimer.Reset(idleRoomTimeout)
	}
}
