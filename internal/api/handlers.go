package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"

	"github.com/codemind/reviewhub/internal/analysis"
	"github.com/codemind/reviewhub/internal/database"
	"github.com/codemind/reviewhub/internal/server"
	"github.com/codemind/reviewhub/internal/types"
	"github.com/gorilla/websocket"
)

type CreateRoomRequest struct {
	Name       string `json:"name" validate:"required,max=100"`
	Repository string `json:"repository" validate:"omitempty,max=200"`
}

type CreateThreadRequest struct {
	Title string `json:"title" validate:"required,max=200"`
}

type CreateCommentRequest struct {
	Body     string `json:"body" validate:"required"`
	ParentId *int   `json:"parent_id"`
}

type AddParticipantRequest struct {
	UserId int    `json:"user_id" validate:"required"`
	Role   string `json:"role" validate:"required,oneof=owner reviewer viewer"`
}

type AnalyzeRequest struct {
	Code       string `json:"code" validate:"required"`
	Language   string `json:"language" validate:"required"`
	Repository string `json:"repository"`
}

// ThreadResponse and CommentResponse carry the sequence assigned to the
// write so a subscribed client can match the HTTP reply to the broadcast.
type ThreadResponse struct {
	types.Thread
	Sequence int `json:"sequence"`
}

type CommentResponse struct {
	types.Comment
	Sequence int `json:"sequence"`
}

func (s *ReviewHubApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func apiRoom(r database.Room) types.Room {
	return types.Room{
		Id:         r.Id,
		ExternalId: r.ExternalId,
		Name:       r.Name,
		Repository: r.Repository,
		Role:       types.Role(r.Role),
		SeqId:      r.SeqId,
		CreatedBy:  r.CreatedBy,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func apiThread(t database.Thread) types.Thread {
	return types.Thread{
		Id:        t.Id,
		RoomId:    t.RoomExternalId,
		Title:     t.Title,
		CreatedBy: t.CreatedBy,
		CreatedAt: t.CreatedAt,
	}
}

func apiComment(c database.Comment) types.Comment {
	return types.Comment{
		Id:        c.Id,
		ThreadId:  c.ThreadId,
		ParentId:  c.ParentId,
		Body:      c.Body,
		AuthorId:  c.AuthorId,
		CreatedAt: c.CreatedAt,
	}
}

func (s *ReviewHubApp) createRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.validate.Struct(req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, err := s.svc.CreateRoom(r.Context(), userId, req.Name, req.Repository)
	if err != nil {
		errResp := fromServiceError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, apiRoom(room))
}

func (s *ReviewHubApp) listRooms(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	rooms, err := s.svc.ListRooms(userId)
	if err != nil {
		errResp := fromServiceError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	resp := make([]types.Room, 0, len(rooms))
	for _, room := range rooms {
		resp = append(resp, apiRoom(room))
	}

	s.writeJson(w, http.StatusOK, resp)
}

func (s *ReviewHubApp) getRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, err := s.svc.GetRoom(r.PathValue("id"), userId)
	if err != nil {
		errResp := fromServiceError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, apiRoom(room))
}

func (s *ReviewHubApp) addParticipant(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req AddParticipantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.validate.Struct(req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	m, err := s.svc.AddParticipant(r.PathValue("id"), userId, req.UserId, req.Role)
	if err != nil {
		errResp := fromServiceError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, types.Membership{
		RoomId:    m.RoomId,
		UserId:    m.UserId,
		Role:      types.Role(m.Role),
		CreatedAt: m.CreatedAt,
	})
}

func (s *ReviewHubApp) createThread(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateThreadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.validate.Struct(req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	thread, seq, err := s.svc.CreateThread(r.Context(), userId, r.PathValue("id"), req.Title)
	if err != nil {
		errResp := fromServiceError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, ThreadResponse{Thread: apiThread(thread), Sequence: seq})
}

func (s *ReviewHubApp) listThreads(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	threads, err := s.svc.ListThreads(r.PathValue("id"), userId)
	if err != nil {
		errResp := fromServiceError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	resp := make([]types.Thread, 0, len(threads))
	for _, t := range threads {
		resp = append(resp, apiThread(t))
	}

	s.writeJson(w, http.StatusOK, resp)
}

func (s *ReviewHubApp) createComment(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	threadId, err := strconv.Atoi(r.PathValue("threadId"))
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.validate.Struct(req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	comment, seq, err := s.svc.CreateComment(r.Context(), userId, r.PathValue("id"), threadId, req.Body, req.ParentId)
	if err != nil {
		errResp := fromServiceError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, CommentResponse{Comment: apiComment(comment), Sequence: seq})
}

func (s *ReviewHubApp) listComments(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	threadId, err := strconv.Atoi(r.PathValue("threadId"))
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	comments, err := s.svc.ListComments(r.PathValue("id"), userId, threadId)
	if err != nil {
		errResp := fromServiceError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	resp := make([]types.Comment, 0, len(comments))
	for _, c := range comments {
		resp = append(resp, apiComment(c))
	}

	s.writeJson(w, http.StatusOK, resp)
}

func (s *ReviewHubApp) listNotifications(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var limit int
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		var err error
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	notifications, err := s.svc.Notifications(userId, limit)
	if err != nil {
		errResp := fromServiceError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	resp := make([]types.Notification, 0, len(notifications))
	for _, n := range notifications {
		resp = append(resp, types.Notification{
			Id:        n.Id,
			UserId:    n.UserId,
			Title:     n.Title,
			Body:      n.Body,
			Read:      n.Read,
			ThreadId:  n.ThreadId,
			CommentId: n.CommentId,
			CreatedAt: n.CreatedAt,
		})
	}

	s.writeJson(w, http.StatusOK, resp)
}

func (s *ReviewHubApp) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	notificationId, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.svc.MarkNotificationRead(notificationId, userId); err != nil {
		errResp := fromServiceError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *ReviewHubApp) analyze(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.validate.Struct(req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	report, err := s.analyzer.Analyze(r.Context(), userId, req.Code, req.Language, req.Repository)
	if err != nil {
		s.log.Println("analyze:", err)
		var errResp *ApiError
		if errors.Is(err, analysis.ErrUnavailable) {
			errResp = &ApiError{StatusCode: http.StatusServiceUnavailable, Message: "analysis service unavailable"}
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, report)
}

func (s *ReviewHubApp) listReports(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var limit int
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		var err error
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	reports, err := s.db.ListRecentReports(userId, limit)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	resp := make([]types.AnalysisReport, 0, len(reports))
	for _, rep := range reports {
		resp = append(resp, types.AnalysisReport{
			Id:         rep.Id,
			Language:   rep.Language,
			Repository: rep.Repository,
			Score:      rep.Score,
			CreatedAt:  rep.CreatedAt,
		})
	}

	s.writeJson(w, http.StatusOK, resp)
}

func (s *ReviewHubApp) analytics(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	analytics, err := s.db.GetAnalytics(userId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, types.Analytics{
		TotalAnalyses:   analytics.TotalAnalyses,
		AvgScore:        analytics.AvgScore,
		HighRiskCount:   analytics.HighRiskCount,
		RecentLanguages: analytics.RecentLanguages,
	})
}

func (s *ReviewHubApp) listIntegrations(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	connections, err := s.db.ListOAuthConnections(userId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	resp := make([]types.OAuthConnection, 0, len(connections))
	for _, c := range connections {
		resp = append(resp, types.OAuthConnection{
			Provider:    c.Provider,
			Username:    c.Username,
			ConnectedAt: c.ConnectedAt,
		})
	}

	s.writeJson(w, http.StatusOK, resp)
}

func (s *ReviewHubApp) healthz(w http.ResponseWriter, _ *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.Println("healthz:", err)
		s.writeJson(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}

	s.writeJson(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *ReviewHubApp) serveWs(w http.ResponseWriter, r *http.Request) {
	id, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.db.GetAccountById(id)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(types.User{
		Id:           user.Id,
		Username:     user.Username,
		EmailAddress: user.EmailAddress,
	}, conn, s.cs, s.log)

	s.cs.RegisterChan <- client
	go client.Write()
	go client.Read()
}
