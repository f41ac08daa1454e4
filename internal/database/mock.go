package database

import (
	"github.com/stretchr/testify/mock"
)

type MockReviewRepository struct {
	mock.Mock
}

func (m *MockReviewRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockReviewRepository) CreateAccount(params CreateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockReviewRepository) GetAccountById(accountId int) (User, error) {
	args := m.Called(accountId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockReviewRepository) GetAccountByEmail(email string) (User, error) {
	args := m.Called(email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockReviewRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	args := m.Called(params)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockReviewRepository) GetRoomById(roomId int) (Room, error) {
	args := m.Called(roomId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockReviewRepository) GetRoomByExternalId(externalId string) (Room, error) {
	args := m.Called(externalId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockReviewRepository) ListRoomsForUser(userId int) ([]Room, error) {
	args := m.Called(userId)
	return args.Get(0).([]Room), args.Error(1)
}
func (m *MockReviewRepository) UpsertMembership(roomId, userId int, role string) (Membership, error) {
	args := m.Called(roomId, userId, role)
	return args.Get(0).(Membership), args.Error(1)
}
func (m *MockReviewRepository) GetMembership(roomId, userId int) (Membership, error) {
	args := m.Called(roomId, userId)
	return args.Get(0).(Membership), args.Error(1)
}
func (m *MockReviewRepository) ListMemberIds(roomId int) ([]int, error) {
	args := m.Called(roomId)
	return args.Get(0).([]int), args.Error(1)
}
func (m *MockReviewRepository) CreateThread(params CreateThreadParams) (Thread, error) {
	args := m.Called(params)
	return args.Get(0).(Thread), args.Error(1)
}
func (m *MockReviewRepository) GetThread(threadId int) (Thread, error) {
	args := m.Called(threadId)
	return args.Get(0).(Thread), args.Error(1)
}
func (m *MockReviewRepository) ListThreads(roomId int) ([]Thread, error) {
	args := m.Called(roomId)
	return args.Get(0).([]Thread), args.Error(1)
}
func (m *MockReviewRepository) CreateComment(params CreateCommentParams) (Comment, error) {
	args := m.Called(params)
	return args.Get(0).(Comment), args.Error(1)
}
func (m *MockReviewRepository) GetComment(commentId int) (Comment, error) {
	args := m.Called(commentId)
	return args.Get(0).(Comment), args.Error(1)
}
func (m *MockReviewRepository) ListComments(threadId int) ([]Comment, error) {
	args := m.Called(threadId)
	return args.Get(0).([]Comment), args.Error(1)
}
func (m *MockReviewRepository) ListThreadParticipantIds(threadId int) ([]int, error) {
	args := m.Called(threadId)
	return args.Get(0).([]int), args.Error(1)
}
func (m *MockReviewRepository) CreateNotification(params CreateNotificationParams) (Notification, error) {
	args := m.Called(params)
	return args.Get(0).(Notification), args.Error(1)
}
func (m *MockReviewRepository) GetNotification(notificationId int) (Notification, error) {
	args := m.Called(notificationId)
	return args.Get(0).(Notification), args.Error(1)
}
func (m *MockReviewRepository) ListNotifications(userId, limit int) ([]Notification, error) {
	args := m.Called(userId, limit)
	return args.Get(0).([]Notification), args.Error(1)
}
func (m *MockReviewRepository) MarkNotificationRead(notificationId int) error {
	args := m.Called(notificationId)
	return args.Error(0)
}
func (m *MockReviewRepository) SaveAnalysisReport(params SaveAnalysisParams) (AnalysisReport, error) {
	args := m.Called(params)
	return args.Get(0).(AnalysisReport), args.Error(1)
}
func (m *MockReviewRepository) ListRecentReports(userId, limit int) ([]AnalysisReport, error) {
	args := m.Called(userId, limit)
	return args.Get(0).([]AnalysisReport), args.Error(1)
}
func (m *MockReviewRepository) GetAnalytics(userId int) (Analytics, error) {
	args := m.Called(userId)
	return args.Get(0).(Analytics), args.Error(1)
}
func (m *MockReviewRepository) ListOAuthConnections(userId int) ([]OAuthConnection, error) {
	args := m.Called(userId)
	return args.Get(0).([]OAuthConnection), args.Error(1)
}
