package server

import (
	"context"
	"database/sql"
	"net/http"
	"testing"
	"time"

	"github.com/codemind/reviewhub/internal/database"
	"github.com/codemind/reviewhub/internal/stats"
	"github.com/codemind/reviewhub/internal/testutil"
	"github.com/codemind/reviewhub/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) ThreadCreated(t database.Thread) bool {
	args := m.Called(t)
	return args.Bool(0)
}

func (m *mockNotifier) CommentCreated(c database.Comment) bool {
	args := m.Called(c)
	return args.Bool(0)
}

// newMockStats accepts any counter update so tests only assert the
// metrics they care about.
func newMockStats() *stats.MockStatsUpdater {
	su := &stats.MockStatsUpdater{}
	su.On("Incr", mock.Anything).Maybe()
	su.On("Decr", mock.Anything).Maybe()
	return su
}

func newTestCollabServer(t *testing.T, db database.ReviewRepository, su *stats.MockStatsUpdater) *CollabServer {
	cs, err := NewCollabServer(testutil.TestLogger(t), db, su, &mockNotifier{})
	if err != nil {
		t.Fatalf("failed to create test CollabServer: %v", err)
	}
	return cs
}

func TestNewCollabServer(t *testing.T) {
	db := &database.MockReviewRepository{}
	defer db.AssertExpectations(t)

	cs := newTestCollabServer(t, db, newMockStats())
	assert.NotNil(t, cs)
	assert.Equal(t, db, cs.db, "expected repository to be set")
	assert.NotNil(t, cs.subscribeChan, "expected subscribeChan to be initialized")
	assert.NotNil(t, cs.unloadRoomChan, "expected unloadRoomChan to be initialized")
	assert.NotNil(t, cs.rooms, "expected rooms map to be initialized")
	assert.NotNil(t, cs.clients, "expected clients map to be initialized")
	assert.NotNil(t, cs.stop, "expected stop channel to be initialized")
}

func Test_addClient_removeClient(t *testing.T) {
	cs := newTestCollabServer(t, &database.MockReviewRepository{}, newMockStats())

	c := &Client{user: types.User{Id: 1}}
	cs.addClient(c)
	assert.Len(t, cs.clients, 1, "expected 1 client after adding")
	assert.Contains(t, cs.clients, c)

	cs.removeClient(c)
	assert.Len(t, cs.clients, 0, "expected 0 clients after removing")

	// removing twice must not double-decrement
	cs.removeClient(c)
	assert.Len(t, cs.clients, 0)
}

func Test_ensureRoom(t *testing.T) {
	t.Run("loads a room on first use and reuses it after", func(t *testing.T) {
		db := &database.MockReviewRepository{}
		defer db.AssertExpectations(t)

		db.On("GetRoomByExternalId", "abc123").Return(database.Room{
			Id:         1,
			ExternalId: "abc123",
			SeqId:      17,
		}, nil).Once()

		cs := newTestCollabServer(t, db, newMockStats())

		room, err := cs.ensureRoom("abc123")
		assert.NoError(t, err)
		assert.Equal(t, 1, room.id)
		assert.Equal(t, 17, room.seqId, "expected sequence to be loaded from the database")

		again, err := cs.ensureRoom("abc123")
		assert.NoError(t, err)
		assert.Same(t, room, again, "expected second call to return the loaded room")

		cs.UnloadRoom("abc123")
	})

	t.Run("propagates a missing room", func(t *testing.T) {
		db := &database.MockReviewRepository{}
		defer db.AssertExpectations(t)

		db.On("GetRoomByExternalId", "nope").Return(database.Room{}, sql.ErrNoRows).Once()

		cs := newTestCollabServer(t, db, newMockStats())

		_, err := cs.ensureRoom("nope")
		assert.ErrorIs(t, err, sql.ErrNoRows)
		assert.Empty(t, cs.rooms, "expected no room to be registered on lookup failure")
	})
}

func TestSubmitThread(t *testing.T) {
	t.Run("persists through the room goroutine", func(t *testing.T) {
		db := &database.MockReviewRepository{}
		defer db.AssertExpectations(t)

		db.On("GetRoomByExternalId", "abc123").Return(database.Room{
			Id:         1,
			ExternalId: "abc123",
			SeqId:      5,
		}, nil).Once()

		created := database.Thread{Id: 9, RoomId: 1, RoomExternalId: "abc123", Title: "t"}
		db.On("CreateThread", mock.MatchedBy(func(p database.CreateThreadParams) bool {
			return p.RoomId == 1 && p.SeqId == 6
		})).Return(created, nil).Once()

		notifier := &mockNotifier{}
		notifier.On("ThreadCreated", created).Return(true).Once()

		cs := newTestCollabServer(t, db, newMockStats())
		cs.notifier = notifier

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		thread, seq, err := cs.SubmitThread(ctx, "abc123", database.CreateThreadParams{Title: "t", CreatedBy: 1})
		assert.NoError(t, err)
		assert.Equal(t, created, thread)
		assert.Equal(t, 6, seq)

		cs.UnloadRoom("abc123")
		notifier.AssertExpectations(t)
	})

	t.Run("returns not found for an unknown room", func(t *testing.T) {
		db := &database.MockReviewRepository{}
		defer db.AssertExpectations(t)

		db.On("GetRoomByExternalId", "nope").Return(database.Room{}, sql.ErrNoRows).Once()

		cs := newTestCollabServer(t, db, newMockStats())

		_, _, err := cs.SubmitThread(context.Background(), "nope", database.CreateThreadParams{})
		assert.ErrorIs(t, err, sql.ErrNoRows)
	})
}

func TestSubmitComment(t *testing.T) {
	db := &database.MockReviewRepository{}
	defer db.AssertExpectations(t)

	db.On("GetRoomByExternalId", "abc123").Return(database.Room{
		Id:         1,
		ExternalId: "abc123",
		SeqId:      0,
	}, nil).Once()

	created := database.Comment{Id: 3, ThreadId: 9, Body: "b", AuthorId: 1}
	db.On("CreateComment", mock.MatchedBy(func(p database.CreateCommentParams) bool {
		return p.RoomId == 1 && p.SeqId == 1 && p.ThreadId == 9
	})).Return(created, nil).Once()

	notifier := &mockNotifier{}
	notifier.On("CommentCreated", created).Return(true).Once()

	cs := newTestCollabServer(t, db, newMockStats())
	cs.notifier = notifier

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	comment, seq, err := cs.SubmitComment(ctx, "abc123", database.CreateCommentParams{ThreadId: 9, Body: "b", AuthorId: 1})
	assert.NoError(t, err)
	assert.Equal(t, created, comment)
	assert.Equal(t, 1, seq)

	cs.UnloadRoom("abc123")
	notifier.AssertExpectations(t)
}

func TestSubmitSerializesSequence(t *testing.T) {
	db := &database.MockReviewRepository{}
	defer db.AssertExpectations(t)

	db.On("GetRoomByExternalId", "abc123").Return(database.Room{
		Id:         1,
		ExternalId: "abc123",
		SeqId:      0,
	}, nil).Once()

	// every write must observe a distinct, gapless sequence
	seen := make(map[int]bool)
	db.On("CreateThread", mock.MatchedBy(func(p database.CreateThreadParams) bool {
		if seen[p.SeqId] {
			return false
		}
		seen[p.SeqId] = true
		return true
	})).Return(database.Thread{Id: 1, RoomId: 1}, nil).Times(10)

	notifier := &mockNotifier{}
	notifier.On("ThreadCreated", mock.Anything).Return(true).Times(10)

	cs := newTestCollabServer(t, db, newMockStats())
	cs.notifier = notifier

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	results := make(chan int, 10)
	for i := 0; i < 10; i++ {
		go func() {
			_, seq, err := cs.SubmitThread(ctx, "abc123", database.CreateThreadParams{Title: "t", CreatedBy: 1})
			assert.NoError(t, err)
			results <- seq
		}()
	}

	got := make(map[int]bool)
	for i := 0; i < 10; i++ {
		select {
		case seq := <-results:
			got[seq] = true
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for concurrent writes")
		}
	}

	for seq := 1; seq <= 10; seq++ {
		assert.Truef(t, got[seq], "expected sequence %d to be assigned exactly once", seq)
	}

	cs.UnloadRoom("abc123")
}

func TestSubmitRetriesAfterRoomExit(t *testing.T) {
	db := &database.MockReviewRepository{}
	defer db.AssertExpectations(t)

	created := database.Thread{Id: 4, RoomId: 1, RoomExternalId: "testroom", Title: "t"}
	db.On("CreateThread", mock.Anything).Return(created, nil).Once()

	notifier := &mockNotifier{}
	notifier.On("ThreadCreated", created).Return(true).Once()

	cs := newTestCollabServer(t, db, newMockStats())
	cs.notifier = notifier

	// a stalled room accepts the write into its buffer but never runs it
	stalled := newTestRoom(t, cs)
	cs.roomsLock.Lock()
	cs.rooms[stalled.externalId] = stalled
	cs.roomsLock.Unlock()

	type result struct {
		thread database.Thread
		seq    int
		err    error
	}
	results := make(chan result, 1)
	go func() {
		thread, seq, err := cs.SubmitThread(context.Background(), stalled.externalId, database.CreateThreadParams{Title: "t", CreatedBy: 1})
		results <- result{thread, seq, err}
	}()

	assert.Eventually(t, func() bool { return len(stalled.writeChan) == 1 }, time.Second, 10*time.Millisecond,
		"expected the write to be queued on the stalled room")

	// replace the registry entry first, then signal the old room's exit,
	// matching the order an unload-then-reload cycle produces
	replacement := newTestRoom(t, cs)
	go replacement.start()
	cs.roomsLock.Lock()
	cs.rooms[stalled.externalId] = replacement
	cs.roomsLock.Unlock()

	close(stalled.done)

	select {
	case res := <-results:
		assert.NoError(t, res.err)
		assert.Equal(t, created, res.thread)
		assert.Equal(t, 1, res.seq, "expected the retried write to get the replacement room's next sequence")
	case <-time.After(time.Second):
		t.Fatal("timeout: write stranded on the exited room was never retried")
	}

	replacement.exit <- exitReq{}
	notifier.AssertExpectations(t)
}

// A subscriber that overflows its send buffer is dropped mid-stream. The
// reconnect protocol recovers every write exactly once: resubscribe, take
// the ack's sequence, catch up from the store for everything at or below
// it, and follow the live feed for everything above it.
func TestResubscribeAfterDrop(t *testing.T) {
	db := &database.MockReviewRepository{}
	defer db.AssertExpectations(t)

	db.On("GetRoomByExternalId", "abc123").Return(database.Room{
		Id:         1,
		ExternalId: "abc123",
		SeqId:      0,
	}, nil).Once()
	db.On("GetMembership", 1, 1).Return(database.Membership{
		RoomId: 1, UserId: 1, Role: "viewer",
	}, nil).Twice()
	db.On("CreateThread", mock.Anything).Return(database.Thread{Id: 1, RoomId: 1}, nil).Times(4)

	notifier := &mockNotifier{}
	notifier.On("ThreadCreated", mock.Anything).Return(true).Times(4)

	cs := newTestCollabServer(t, db, newMockStats())
	cs.notifier = notifier

	room, err := cs.ensureRoom("abc123")
	assert.NoError(t, err)

	// a two-slot buffer makes the third live event overflow deterministically
	c := newTestClient(t, cs, 1)
	c.send = make(chan *ServerMessage, 2)

	subscribe := func(id int) int {
		room.joinChan <- &ClientMessage{Id: id, UserId: c.user.Id, client: c}
		select {
		case msg := <-c.send:
			assert.NotNil(t, msg.Response)
			assert.Equal(t, http.StatusOK, msg.Response.ResponseCode)
			return msg.Response.Data["seq_id"].(int)
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for subscribe ack")
			return 0
		}
	}

	assert.Equal(t, 0, subscribe(1), "expected a fresh room to ack at sequence 0")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var stored []int
	submit := func() {
		_, seq, err := cs.SubmitThread(ctx, "abc123", database.CreateThreadParams{Title: "t", CreatedBy: 2})
		assert.NoError(t, err)
		stored = append(stored, seq)
	}

	submit()
	submit()
	assert.Eventually(t, func() bool { return len(c.send) == 2 }, time.Second, 10*time.Millisecond,
		"expected both live events to be buffered")

	// the third event finds the buffer full and evicts the subscription
	submit()
	assert.Eventually(t, func() bool {
		room.clientLock.RLock()
		defer room.clientLock.RUnlock()
		_, ok := room.clients[c]
		return !ok
	}, time.Second, 10*time.Millisecond, "expected overflowing subscription to be dropped")

	applied := make(map[int]int)
	for len(c.send) > 0 {
		msg := <-c.send
		if msg.Event != nil {
			applied[msg.Event.Sequence]++
		}
	}

	ackSeq := subscribe(2)
	assert.Equal(t, 3, ackSeq, "expected the rejoin ack to carry the current sequence")

	for _, seq := range stored {
		if seq <= ackSeq && applied[seq] == 0 {
			applied[seq]++
		}
	}

	submit()
	select {
	case msg := <-c.send:
		assert.NotNil(t, msg.Event)
		assert.Greater(t, msg.Event.Sequence, ackSeq)
		applied[msg.Event.Sequence]++
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for a live event after resubscribing")
	}

	for seq := 1; seq <= 4; seq++ {
		assert.Equalf(t, 1, applied[seq], "expected write %d to be applied exactly once", seq)
	}

	cs.UnloadRoom("abc123")
	notifier.AssertExpectations(t)
}

func TestUnloadRoom(t *testing.T) {
	db := &database.MockReviewRepository{}
	defer db.AssertExpectations(t)

	db.On("GetRoomByExternalId", "abc123").Return(database.Room{
		Id:         1,
		ExternalId: "abc123",
	}, nil).Once()

	cs := newTestCollabServer(t, db, newMockStats())

	room, err := cs.ensureRoom("abc123")
	assert.NoError(t, err)

	cs.UnloadRoom("abc123")
	assert.Empty(t, cs.rooms, "expected room to be removed from registry")

	select {
	case <-room.done:
	case <-time.After(time.Second):
		t.Error("timeout: room goroutine did not exit")
	}

	// unloading an unknown room is a no-op
	cs.UnloadRoom("abc123")
}

func TestCollabServerShutdown(t *testing.T) {
	db := &database.MockReviewRepository{}
	defer db.AssertExpectations(t)

	db.On("GetRoomByExternalId", "abc123").Return(database.Room{
		Id:         1,
		ExternalId: "abc123",
	}, nil).Once()

	cs := newTestCollabServer(t, db, newMockStats())
	go cs.Run()

	room, err := cs.ensureRoom("abc123")
	assert.NoError(t, err)

	cs.Shutdown()

	select {
	case <-room.done:
	case <-time.After(time.Second):
		t.Error("timeout: room goroutine did not exit on shutdown")
	}

	select {
	case <-cs.done:
	default:
		t.Error("expected server done channel to be closed after shutdown")
	}
}
