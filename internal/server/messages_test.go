package server

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResponseHelpers(t *testing.T) {
	tcases := []struct {
		name         string
		msg          *ServerMessage
		expectedCode int
		expectedErr  string
	}{
		{"ok", NoErrOK(1, map[string]any{"k": "v"}), http.StatusOK, ""},
		{"room not found", ErrRoomNotFound(2), http.StatusNotFound, "room not found"},
		{"permission denied", ErrPermissionDenied(3), http.StatusForbidden, "permission denied"},
		{"internal error", ErrInternalError(4), http.StatusInternalServerError, "internal server error"},
		{"service unavailable", ErrServiceUnavailable(5), http.StatusServiceUnavailable, "service unavailable"},
		{"invalid message", ErrInvalidMessage(6), http.StatusBadRequest, "invalid message format"},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.NotNil(t, tc.msg.Response)
			assert.Equal(t, tc.expectedCode, tc.msg.Response.ResponseCode)
			assert.Equal(t, tc.expectedErr, tc.msg.Response.Error)
			assert.False(t, tc.msg.Timestamp.IsZero(), "expected timestamp to be set")
		})
	}

	t.Run("invalid message with unknown id omits the id", func(t *testing.T) {
		msg := ErrInvalidMessage(-1)
		assert.Equal(t, 0, msg.Id)
	})
}

func TestEnvelopeSerialization(t *testing.T) {
	env := &Envelope{
		RoomId:    "abc123",
		Sequence:  7,
		Kind:      KindStatus,
		Status:    &Status{Message: "subscribed", UserId: 3},
		Timestamp: Now(),
	}

	raw, err := json.Marshal(&ServerMessage{Timestamp: Now(), Event: env})
	assert.NoError(t, err)

	// unused event payloads must not appear on the wire
	assert.NotContains(t, string(raw), `"thread"`)
	assert.NotContains(t, string(raw), `"comment"`)
	assert.Contains(t, string(raw), `"sequence":7`)
}
