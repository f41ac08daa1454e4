package server

import (
	"context"
	"log"
	"sync"

	"github.com/codemind/reviewhub/internal/database"
	"github.com/codemind/reviewhub/internal/stats"
)

// Notifier receives just-persisted entities for notification fan-out.
type Notifier interface {
	ThreadCreated(database.Thread) bool
	CommentCreated(database.Comment) bool
}

// CollabServer owns the registry of loaded rooms and all websocket
// connections. Rooms are loaded on demand when the first subscriber or
// writer shows up and unloaded after sitting idle.
type CollabServer struct {
	log            *log.Logger
	db             database.ReviewRepository
	stats          stats.StatsProvider
	notifier       Notifier
	clients        map[*Client]struct{}
	clientsLock    sync.Mutex
	subscribeChan  chan *ClientMessage
	RegisterChan   chan *Client
	deRegisterChan chan *Client
	unloadRoomChan chan string
	rooms          map[string]*Room
	roomsLock      sync.Mutex
	stop           chan struct{}
	done           chan struct{}
}

func NewCollabServer(logger *log.Logger, db database.ReviewRepository, sp stats.StatsProvider, n Notifier) (*CollabServer, error) {
	return &CollabServer{
		log:            logger,
		db:             db,
		stats:          sp,
		notifier:       n,
		subscribeChan:  make(chan *ClientMessage),
		clients:        make(map[*Client]struct{}),
		RegisterChan:   make(chan *Client),
		deRegisterChan: make(chan *Client),
		unloadRoomChan: make(chan string),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
		rooms:          make(map[string]*Room),
	}, nil
}

func (cs *CollabServer) Run() {
	for {
		select {
		case msg := <-cs.subscribeChan:
			room, err := cs.ensureRoom(msg.Subscribe.RoomId)
			if err != nil {
				msg.client.queueMessage(ErrRoomNotFound(msg.Id))
				continue
			}

			select {
			case room.joinChan <- msg:
			default:
				cs.log.Printf("join channel full on room %q", room.externalId)
				msg.client.queueMessage(ErrServiceUnavailable(msg.Id))
			}
		case client := <-cs.RegisterChan:
			cs.log.Printf("adding connection for user %d", client.user.Id)
			cs.addClient(client)
		case client := <-cs.deRegisterChan:
			cs.log.Printf("removing connection for user %d", client.user.Id)
			cs.removeClient(client)
		case id := <-cs.unloadRoomChan:
			cs.UnloadRoom(id)
		case <-cs.stop:
			cs.log.Println("shutting down rooms")
			cs.roomsLock.Lock()
			for _, r := range cs.rooms {
				r.exit <- exitReq{}
				<-r.done
			}
			cs.rooms = make(map[string]*Room)
			cs.roomsLock.Unlock()

			close(cs.done)
			return
		}
	}
}

// ensureRoom returns the loaded room for an external id, loading it from
// the database and starting its goroutine if necessary.
func (cs *CollabServer) ensureRoom(externalId string) (*Room, error) {
	cs.roomsLock.Lock()
	defer cs.roomsLock.Unlock()

	if room, ok := cs.rooms[externalId]; ok {
		return room, nil
	}

	dbRoom, err := cs.db.GetRoomByExternalId(externalId)
	if err != nil {
		return nil, err
	}

	room := &Room{
		id:         dbRoom.Id,
		externalId: dbRoom.ExternalId,
		cs:         cs,
		joinChan:   make(chan *ClientMessage, 256),
		leaveChan:  make(chan *ClientMessage, 256),
		writeChan:  make(chan *writeReq, 256),
		seqId:      dbRoom.SeqId,
		clients:    make(map[*Client]string),
		log:        cs.log,
		exit:       make(chan exitReq),
		done:       make(chan struct{}),
	}

	cs.rooms[room.externalId] = room
	go room.start()
	cs.stats.Incr(stats.LoadedRooms)

	return room, nil
}

// SubmitThread routes a thread write through the room's goroutine, which
// assigns the next sequence number and persists atomically. The returned
// int is the sequence assigned to the write.
func (cs *CollabServer) SubmitThread(ctx context.Context, roomExternalId string, params database.CreateThreadParams) (database.Thread, int, error) {
	res, err := cs.submit(ctx, roomExternalId, &writeReq{thread: &params, reply: make(chan writeResult, 1)})
	if err != nil {
		return database.Thread{}, 0, err
	}
	return res.thread, res.seq, res.err
}

// SubmitComment routes a comment write through the room's goroutine.
func (cs *CollabServer) SubmitComment(ctx context.Context, roomExternalId string, params database.CreateCommentParams) (database.Comment, int, error) {
	res, err := cs.submit(ctx, roomExternalId, &writeReq{comment: &params, reply: make(chan writeResult, 1)})
	if err != nil {
		return database.Comment{}, 0, err
	}
	return res.comment, res.seq, res.err
}

func (cs *CollabServer) submit(ctx context.Context, roomExternalId string, req *writeReq) (writeResult, error) {
	// the room can be unloaded between lookup and send; reload and retry
	// once before giving up
	for attempt := 0; attempt < 2; attempt++ {
		room, err := cs.ensureRoom(roomExternalId)
		if err != nil {
			return writeResult{}, err
		}

		select {
		case room.writeChan <- req:
		case <-room.done:
			continue
		case <-ctx.Done():
			return writeResult{}, ctx.Err()
		}

		select {
		case res := <-req.reply:
			return res, nil
		case <-room.done:
			// the room drains writeChan before closing done, so by now the
			// reply is either buffered or the write never ran
			select {
			case res := <-req.reply:
				return res, nil
			default:
				continue
			}
		case <-ctx.Done():
			return writeResult{}, ctx.Err()
		}
	}

	return writeResult{}, context.DeadlineExceeded
}

func (cs *CollabServer) addClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	cs.clients[c] = struct{}{}
	cs.stats.Incr(stats.ActiveConnections)
}

func (cs *CollabServer) removeClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	if _, ok := cs.clients[c]; ok {
		delete(cs.clients, c)
		cs.stats.Decr(stats.ActiveConnections)
	}
}

// UnloadRoom stops a room's goroutine and removes it from the registry.
// Pending writes already submitted to the room are drained before it exits.
func (cs *CollabServer) UnloadRoom(externalId string) {
	cs.roomsLock.Lock()
	r, ok := cs.rooms[externalId]
	if ok {
		delete(cs.rooms, externalId)
	}
	cs.roomsLock.Unlock()

	if ok {
		done := make(chan bool)
		r.exit <- exitReq{done: done}
		<-done
	}
}

func (cs *CollabServer) Shutdown() {
	cs.log.Println("received shutdown signal")
	cs.clientsLock.Lock()
	for c := range cs.clients {
		close(c.stop)
	}
	cs.clientsLock.Unlock()

	close(cs.stop)

	<-cs.done
}
