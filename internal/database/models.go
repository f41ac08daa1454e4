package database

import "time"

type User struct {
	Id           int
	Username     string
	EmailAddress string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Room struct {
	Id         int
	ExternalId string
	Name       string
	Repository string
	SeqId      int
	CreatedBy  int
	CreatedAt  time.Time
	UpdatedAt  time.Time
	// Role is populated by queries that join the caller's membership.
	Role string
}

type Membership struct {
	Id        int
	RoomId    int
	UserId    int
	Role      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Thread struct {
	Id             int
	RoomId         int
	RoomExternalId string
	Title          string
	CreatedBy      int
	CreatedAt      time.Time
}

type Comment struct {
	Id        int
	ThreadId  int
	ParentId  *int
	Body      string
	AuthorId  int
	CreatedAt time.Time
}

type Notification struct {
	Id        int
	UserId    int
	Title     string
	Body      string
	Read      bool
	ThreadId  *int
	CommentId *int
	CreatedAt time.Time
}

type AnalysisReport struct {
	Id         string
	UserId     int
	Language   string
	Repository string
	Score      float64
	CreatedAt  time.Time
}

type Analytics struct {
	TotalAnalyses   int
	AvgScore        float64
	HighRiskCount   int
	RecentLanguages []string
}

type OAuthConnection struct {
	Id          int
	UserId      int
	Provider    string
	Username    string
	ConnectedAt time.Time
}

type CreateAccountParams struct {
	Username     string
	EmailAddress string
	PasswordHash string
}

type CreateRoomParams struct {
	Name       string
	Repository string
	ExternalId string
	CreatedBy  int
}

type CreateThreadParams struct {
	RoomId    int
	SeqId     int
	Title     string
	CreatedBy int
	CreatedAt time.Time
}

type CreateCommentParams struct {
	ThreadId  int
	RoomId    int
	SeqId     int
	Body      string
	AuthorId  int
	ParentId  *int
	CreatedAt time.Time
}

type CreateNotificationParams struct {
	UserId    int
	Title     string
	Body      string
	ThreadId  *int
	CommentId *int
}

type SaveAnalysisParams struct {
	Id         string
	UserId     int
	Language   string
	Repository string
	Score      float64
}
