package server

import (
	"net/http"
	"time"

	"github.com/codemind/reviewhub/internal/database"
	"github.com/codemind/reviewhub/internal/types"
)

// Event kinds carried by an Envelope. The schema is closed: anything else
// is a protocol violation.
const (
	KindThread  = "thread"
	KindComment = "comment"
	KindStatus  = "status"
)

// Envelope is the event frame delivered to subscribed connections. Sequence
// is the room's monotonically increasing counter; only persisted thread and
// comment writes advance it, so clients can use it for gap detection.
// Status frames carry the room's current sequence without consuming one.
type Envelope struct {
	RoomId    string         `json:"room_id"`
	Sequence  int            `json:"sequence"`
	Kind      string         `json:"kind"`
	Thread    *types.Thread  `json:"thread,omitempty"`
	Comment   *types.Comment `json:"comment,omitempty"`
	Status    *Status        `json:"status,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

type Status struct {
	Message string `json:"message"`
	UserId  int    `json:"user_id,omitempty"`
}

// ClientMessage is a control frame sent by a connection. Clients only
// subscribe and unsubscribe; all writes go through the HTTP API.
type ClientMessage struct {
	Id          int          `json:"id,omitempty"`
	Subscribe   *Subscribe   `json:"subscribe,omitempty"`
	Unsubscribe *Unsubscribe `json:"unsubscribe,omitempty"`
	UserId      int          `json:"-"`
	client      *Client      `json:"-"`
}

type Subscribe struct {
	RoomId string `json:"room_id"`
}

type Unsubscribe struct {
	RoomId string `json:"room_id"`
}

type ServerMessage struct {
	Id         int       `json:"id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Response   *Response `json:"response,omitempty"`
	Event      *Envelope `json:"event,omitempty"`
	SkipClient *Client   `json:"-"`
}

type Response struct {
	ResponseCode int            `json:"response_code"`
	Error        string         `json:"error,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

func NoErrOK(id int, data map[string]any) *ServerMessage {
	return &ServerMessage{
		Id:        id,
		Timestamp: Now(),
		Response: &Response{
			ResponseCode: http.StatusOK,
			Data:         data,
		},
	}
}

func ErrRoomNotFound(id int) *ServerMessage {
	return &ServerMessage{
		Id:        id,
		Timestamp: Now(),
		Response: &Response{
			ResponseCode: http.StatusNotFound,
			Error:        "room not found",
		},
	}
}

func ErrPermissionDenied(id int) *ServerMessage {
	return &ServerMessage{
		Id:        id,
		Timestamp: Now(),
		Response: &Response{
			ResponseCode: http.StatusForbidden,
			Error:        "permission denied",
		},
	}
}

func ErrInternalError(id int) *ServerMessage {
	return &ServerMessage{
		Id:        id,
		Timestamp: Now(),
		Response: &Response{
			ResponseCode: http.StatusInternalServerError,
			Error:        "internal server error",
		},
	}
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return &ServerMessage{
		Id:        id,
		Timestamp: Now(),
		Response: &Response{
			ResponseCode: http.StatusServiceUnavailable,
			Error:        "service unavailable",
		},
	}
}

func ErrInvalidMessage(id int) *ServerMessage {
	msg := &ServerMessage{
		Timestamp: Now(),
		Response: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        "invalid message format",
		},
	}

	if id > 0 {
		msg.Id = id
	}
	return msg
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}

func apiThread(t database.Thread) *types.Thread {
	return &types.Thread{
		Id:        t.Id,
		RoomId:    t.RoomExternalId,
		Title:     t.Title,
		CreatedBy: t.CreatedBy,
		CreatedAt: t.CreatedAt,
	}
}

func apiComment(c database.Comment) *types.Comment {
	return &types.Comment{
		Id:        c.Id,
		ThreadId:  c.ThreadId,
		ParentId:  c.ParentId,
		Body:      c.Body,
		AuthorId:  c.AuthorId,
		CreatedAt: c.CreatedAt,
	}
}
