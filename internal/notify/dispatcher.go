package notify

import (
	"errors"
	"log"
	"time"

	"github.com/codemind/reviewhub/internal/database"
	"github.com/codemind/reviewhub/internal/stats"
)

const (
	queueSize        = 256
	maxWriteAttempts = 3
	maxBodyLen       = 120
)

// ErrNotOwner is returned by MarkRead when the notification belongs to a
// different user.
var ErrNotOwner = errors.New("notification does not belong to user")

type job struct {
	thread  *database.Thread
	comment *database.Comment
}

// Dispatcher derives notification records from just-persisted threads and
// comments. Fan-out runs on its own goroutine so the write path never waits
// on recipient writes; failed recipient writes are retried independently and
// logged when they stay failed.
type Dispatcher struct {
	log     *log.Logger
	db      database.ReviewRepository
	stats   stats.StatsProvider
	queue   chan job
	backoff time.Duration
	stop    chan struct{}
	done    chan struct{}
}

func NewDispatcher(logger *log.Logger, db database.ReviewRepository, sp stats.StatsProvider) *Dispatcher {
	return &Dispatcher{
		log:     logger,
		db:      db,
		stats:   sp,
		queue:   make(chan job, queueSize),
		backoff: 100 * time.Millisecond,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (d *Dispatcher) Run() {
	go func() {
		defer close(d.done)
		for {
			select {
			case j := <-d.queue:
				d.process(j)
			case <-d.stop:
				// drain whatever is already queued, then exit
				for {
					select {
					case j := <-d.queue:
						d.process(j)
					default:
						return
					}
				}
			}
		}
	}()
}

func (d *Dispatcher) Shutdown() {
	close(d.stop)
	<-d.done
}

// ThreadCreated queues notification fan-out for a new thread. Returns false
// when the queue is full, in which case the event is dropped and logged.
func (d *Dispatcher) ThreadCreated(t database.Thread) bool {
	return d.enqueue(job{thread: &t})
}

// CommentCreated queues notification fan-out for a new comment.
func (d *Dispatcher) CommentCreated(c database.Comment) bool {
	return d.enqueue(job{comment: &c})
}

func (d *Dispatcher) enqueue(j job) bool {
	select {
	case d.queue <- j:
		d.stats.Incr(stats.NotificationsQueued)
		return true
	default:
		d.log.Println("notification queue full, dropping fan-out job")
		d.stats.Incr(stats.NotificationsFailed)
		return false
	}
}

func (d *Dispatcher) process(j job) {
	switch {
	case j.thread != nil:
		d.fanOutThread(*j.thread)
	case j.comment != nil:
		d.fanOutComment(*j.comment)
	}
}

// fanOutThread notifies every room member except the thread's creator.
func (d *Dispatcher) fanOutThread(t database.Thread) {
	memberIds, err := d.db.ListMemberIds(t.RoomId)
	if err != nil {
		d.log.Printf("list members for room %d: %v", t.RoomId, err)
		d.stats.Incr(stats.NotificationsFailed)
		return
	}

	threadId := t.Id
	for _, userId := range memberIds {
		if userId == t.CreatedBy {
			continue
		}

		d.createWithRetry(database.CreateNotificationParams{
			UserId:   userId,
			Title:    "New review thread",
			Body:     truncate(t.Title),
			ThreadId: &threadId,
		})
	}
}

// fanOutComment notifies the thread's participants (everyone who has
// commented plus the thread creator) except the author. The parent comment's
// author is always included on replies, even without prior participation.
func (d *Dispatcher) fanOutComment(c database.Comment) {
	participantIds, err := d.db.ListThreadParticipantIds(c.ThreadId)
	if err != nil {
		d.log.Printf("list participants for thread %d: %v", c.ThreadId, err)
		d.stats.Incr(stats.NotificationsFailed)
		return
	}

	recipients := make(map[int]struct{}, len(participantIds))
	for _, id := range participantIds {
		recipients[id] = struct{}{}
	}

	if c.ParentId != nil {
		parent, err := d.db.GetComment(*c.ParentId)
		if err != nil {
			d.log.Printf("get parent comment %d: %v", *c.ParentId, err)
		} else {
			recipients[parent.AuthorId] = struct{}{}
		}
	}

	delete(recipients, c.AuthorId)

	threadId := c.ThreadId
	commentId := c.Id
	for userId := range recipients {
		d.createWithRetry(database.CreateNotificationParams{
			UserId:    userId,
			Title:     "New review comment",
			Body:      truncate(c.Body),
			ThreadId:  &threadId,
			CommentId: &commentId,
		})
	}
}

// createWithRetry writes a single recipient's notification, retrying with
// backoff. One recipient failing never aborts the remaining recipients.
func (d *Dispatcher) createWithRetry(params database.CreateNotificationParams) {
	var err error
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(d.backoff << uint(attempt-1))
		}

		if _, err = d.db.CreateNotification(params); err == nil {
			return
		}
	}

	d.log.Printf("notification for user %d dropped after %d attempts: %v", params.UserId, maxWriteAttempts, err)
	d.stats.Incr(stats.NotificationsFailed)
}

// MarkRead transitions a notification to read. The transition is one-way and
// idempotent: marking an already-read notification succeeds without a write.
func (d *Dispatcher) MarkRead(notificationId, userId int) error {
	n, err := d.db.GetNotification(notificationId)
	if err != nil {
		return err
	}

	if n.UserId != userId {
		return ErrNotOwner
	}

	if n.Read {
		return nil
	}

	return d.db.MarkNotificationRead(notificationId)
}

func truncate(s string) string {
	if len(s) > maxBodyLen {
		return s[:maxBodyLen]
	}
	return s
}
