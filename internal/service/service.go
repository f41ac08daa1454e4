package service

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/codemind/reviewhub/internal/database"
	"github.com/codemind/reviewhub/internal/notify"
	"github.com/codemind/reviewhub/internal/types"
	"github.com/teris-io/shortid"
)

const (
	maxRoomNameLen = 100
	maxTitleLen    = 200
	maxBodyLen     = 10000

	maxStoreAttempts = 3
)

// EventBus routes writes through the owning room's goroutine, which
// assigns sequence numbers and broadcasts to subscribers.
type EventBus interface {
	SubmitThread(ctx context.Context, roomExternalId string, params database.CreateThreadParams) (database.Thread, int, error)
	SubmitComment(ctx context.Context, roomExternalId string, params database.CreateCommentParams) (database.Comment, int, error)
}

// NotificationReader owns the read-state transition for notifications.
type NotificationReader interface {
	MarkRead(notificationId, userId int) error
}

// CollabService validates and authorizes every operation before anything
// touches the store. Writes to rooms go through the event bus; the database
// commit is the correctness boundary, with broadcast and notification
// fan-out happening after it.
type CollabService struct {
	log      *log.Logger
	db       database.ReviewRepository
	bus      EventBus
	notifier NotificationReader
	backoff  time.Duration
}

func NewCollabService(logger *log.Logger, db database.ReviewRepository, bus EventBus, n NotificationReader) *CollabService {
	return &CollabService{
		log:      logger,
		db:       db,
		bus:      bus,
		notifier: n,
		backoff:  50 * time.Millisecond,
	}
}

// retryStore re-runs fn while it keeps failing with a transient store
// error. Taxonomy errors other than transient are returned immediately.
func (s *CollabService) retryStore(fn func() error) error {
	var err error
	for attempt := 0; attempt < maxStoreAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(s.backoff << uint(attempt-1))
		}

		if err = fn(); err == nil {
			return nil
		}

		var transient *TransientStoreError
		if !errors.As(err, &transient) {
			return err
		}
	}

	return err
}

// authorize resolves a room by external id and checks that the caller's
// membership allows the action. The returned room carries the caller's role.
func (s *CollabService) authorize(roomExternalId string, userId int, action types.Action) (database.Room, error) {
	room, err := s.db.GetRoomByExternalId(roomExternalId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.Room{}, &NotFoundError{Resource: "room"}
		}
		return database.Room{}, &TransientStoreError{Err: err}
	}

	m, err := s.db.GetMembership(room.Id, userId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.Room{}, &PermissionError{Op: "not a member of room"}
		}
		return database.Room{}, &TransientStoreError{Err: err}
	}

	if !types.Role(m.Role).Can(action) {
		return database.Room{}, &PermissionError{Op: "role does not allow this operation"}
	}

	room.Role = m.Role
	return room, nil
}

func (s *CollabService) CreateRoom(ctx context.Context, userId int, name, repository string) (database.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return database.Room{}, &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if len(name) > maxRoomNameLen {
		return database.Room{}, &ValidationError{Field: "name", Reason: "too long"}
	}

	externalId, err := shortid.Generate()
	if err != nil {
		return database.Room{}, err
	}

	var room database.Room
	err = s.retryStore(func() error {
		r, err := s.db.CreateRoom(database.CreateRoomParams{
			Name:       name,
			Repository: strings.TrimSpace(repository),
			ExternalId: externalId,
			CreatedBy:  userId,
		})
		if err != nil {
			return &TransientStoreError{Err: err}
		}
		room = r
		return nil
	})

	return room, err
}

func (s *CollabService) GetRoom(roomExternalId string, userId int) (database.Room, error) {
	return s.authorize(roomExternalId, userId, types.ActionRead)
}

func (s *CollabService) ListRooms(userId int) ([]database.Room, error) {
	rooms, err := s.db.ListRoomsForUser(userId)
	if err != nil {
		return nil, &TransientStoreError{Err: err}
	}
	return rooms, nil
}

// AddParticipant grants or changes a user's role in a room. Only holders
// of the manage permission may do this, and the creator's owner role is
// immutable so a room can never be orphaned.
func (s *CollabService) AddParticipant(roomExternalId string, callerId, targetUserId int, role string) (database.Membership, error) {
	if !types.Role(role).Valid() {
		return database.Membership{}, &ValidationError{Field: "role", Reason: "unknown role"}
	}

	room, err := s.authorize(roomExternalId, callerId, types.ActionManage)
	if err != nil {
		return database.Membership{}, err
	}

	if targetUserId == room.CreatedBy {
		return database.Membership{}, &InvariantError{Reason: "room creator's role cannot be changed"}
	}

	if _, err := s.db.GetAccountById(targetUserId); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.Membership{}, &NotFoundError{Resource: "user"}
		}
		return database.Membership{}, &TransientStoreError{Err: err}
	}

	var membership database.Membership
	err = s.retryStore(func() error {
		m, err := s.db.UpsertMembership(room.Id, targetUserId, role)
		if err != nil {
			return &TransientStoreError{Err: err}
		}
		membership = m
		return nil
	})

	return membership, err
}

func (s *CollabService) CreateThread(ctx context.Context, userId int, roomExternalId, title string) (database.Thread, int, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return database.Thread{}, 0, &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if len(title) > maxTitleLen {
		return database.Thread{}, 0, &ValidationError{Field: "title", Reason: "too long"}
	}

	room, err := s.authorize(roomExternalId, userId, types.ActionWrite)
	if err != nil {
		return database.Thread{}, 0, err
	}

	var thread database.Thread
	var seq int
	err = s.retryStore(func() error {
		t, sq, err := s.bus.SubmitThread(ctx, room.ExternalId, database.CreateThreadParams{
			Title:     title,
			CreatedBy: userId,
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			return classifyWriteErr(err)
		}
		thread, seq = t, sq
		return nil
	})

	return thread, seq, err
}

func (s *CollabService) ListThreads(roomExternalId string, userId int) ([]database.Thread, error) {
	room, err := s.authorize(roomExternalId, userId, types.ActionRead)
	if err != nil {
		return nil, err
	}

	threads, err := s.db.ListThreads(room.Id)
	if err != nil {
		return nil, &TransientStoreError{Err: err}
	}
	return threads, nil
}

func (s *CollabService) CreateComment(ctx context.Context, userId int, roomExternalId string, threadId int, body string, parentId *int) (database.Comment, int, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return database.Comment{}, 0, &ValidationError{Field: "body", Reason: "must not be empty"}
	}
	if len(body) > maxBodyLen {
		return database.Comment{}, 0, &ValidationError{Field: "body", Reason: "too long"}
	}

	room, err := s.authorize(roomExternalId, userId, types.ActionWrite)
	if err != nil {
		return database.Comment{}, 0, err
	}

	thread, err := s.db.GetThread(threadId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.Comment{}, 0, &NotFoundError{Resource: "thread"}
		}
		return database.Comment{}, 0, &TransientStoreError{Err: err}
	}
	if thread.RoomId != room.Id {
		return database.Comment{}, 0, &NotFoundError{Resource: "thread"}
	}

	var comment database.Comment
	var seq int
	err = s.retryStore(func() error {
		c, sq, err := s.bus.SubmitComment(ctx, room.ExternalId, database.CreateCommentParams{
			ThreadId:  threadId,
			Body:      body,
			AuthorId:  userId,
			ParentId:  parentId,
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			return classifyWriteErr(err)
		}
		comment, seq = c, sq
		return nil
	})

	return comment, seq, err
}

func (s *CollabService) ListComments(roomExternalId string, userId, threadId int) ([]database.Comment, error) {
	room, err := s.authorize(roomExternalId, userId, types.ActionRead)
	if err != nil {
		return nil, err
	}

	thread, err := s.db.GetThread(threadId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{Resource: "thread"}
		}
		return nil, &TransientStoreError{Err: err}
	}
	if thread.RoomId != room.Id {
		return nil, &NotFoundError{Resource: "thread"}
	}

	comments, err := s.db.ListComments(threadId)
	if err != nil {
		return nil, &TransientStoreError{Err: err}
	}
	return comments, nil
}

func (s *CollabService) Notifications(userId, limit int) ([]database.Notification, error) {
	notifications, err := s.db.ListNotifications(userId, limit)
	if err != nil {
		return nil, &TransientStoreError{Err: err}
	}
	return notifications, nil
}

func (s *CollabService) MarkNotificationRead(notificationId, userId int) error {
	err := s.notifier.MarkRead(notificationId, userId)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, notify.ErrNotOwner):
		return &PermissionError{Op: "notification belongs to another user"}
	case errors.Is(err, sql.ErrNoRows):
		return &NotFoundError{Resource: "notification"}
	default:
		return &TransientStoreError{Err: err}
	}
}

// classifyWriteErr maps store sentinels from sequenced writes onto the
// service taxonomy. An absent parent is a not-found like any other missing
// resource; a parent living in a different thread is a structural conflict.
func classifyWriteErr(err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return &NotFoundError{Resource: "room"}
	case errors.Is(err, database.ErrParentNotFound):
		return &NotFoundError{Resource: "parent comment"}
	case errors.Is(err, database.ErrParentThreadMismatch):
		return &InvariantError{Reason: "parent comment belongs to a different thread"}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return &TransientStoreError{Err: err}
	}
}
