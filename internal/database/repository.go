package database

type ReviewRepository interface {
	Ping() error

	CreateAccount(params CreateAccountParams) (User, error)
	GetAccountById(accountId int) (User, error)
	GetAccountByEmail(email string) (User, error)

	CreateRoom(params CreateRoomParams) (Room, error)
	GetRoomById(roomId int) (Room, error)
	GetRoomByExternalId(externalId string) (Room, error)
	ListRoomsForUser(userId int) ([]Room, error)

	UpsertMembership(roomId, userId int, role string) (Membership, error)
	GetMembership(roomId, userId int) (Membership, error)
	ListMemberIds(roomId int) ([]int, error)

	CreateThread(params CreateThreadParams) (Thread, error)
	GetThread(threadId int) (Thread, error)
	ListThreads(roomId int) ([]Thread, error)

	CreateComment(params CreateCommentParams) (Comment, error)
	GetComment(commentId int) (Comment, error)
	ListComments(threadId int) ([]Comment, error)
	ListThreadParticipantIds(threadId int) ([]int, error)

	CreateNotification(params CreateNotificationParams) (Notification, error)
	GetNotification(notificationId int) (Notification, error)
	ListNotifications(userId, limit int) ([]Notification, error)
	MarkNotificationRead(notificationId int) error

	SaveAnalysisReport(params SaveAnalysisParams) (AnalysisReport, error)
	ListRecentReports(userId, limit int) ([]AnalysisReport, error)
	GetAnalytics(userId int) (Analytics, error)

	ListOAuthConnections(userId int) ([]OAuthConnection, error)
}
