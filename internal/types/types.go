package types

import (
	"time"
)

type User struct {
	Id           int       `json:"id"`
	Username     string    `json:"username"`
	EmailAddress string    `json:"email_address,omitempty"`
	Password     string    `json:"-"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

type Room struct {
	Id         int       `json:"id"`
	ExternalId string    `json:"external_id"`
	Name       string    `json:"name"`
	Repository string    `json:"repository,omitempty"`
	Role       Role      `json:"role,omitempty"`
	SeqId      int       `json:"seq_id"`
	CreatedBy  int       `json:"created_by"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
}

type Membership struct {
	RoomId    int       `json:"room_id"`
	UserId    int       `json:"user_id"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

type Thread struct {
	Id        int       `json:"id"`
	RoomId    string    `json:"room_id"`
	Title     string    `json:"title"`
	CreatedBy int       `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

type Comment struct {
	Id        int       `json:"id"`
	ThreadId  int       `json:"thread_id"`
	ParentId  *int      `json:"parent_id,omitempty"`
	Body      string    `json:"body"`
	AuthorId  int       `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
}

type Notification struct {
	Id        int       `json:"id"`
	UserId    int       `json:"user_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Read      bool      `json:"read"`
	ThreadId  *int      `json:"thread_id,omitempty"`
	CommentId *int      `json:"comment_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type AnalysisReport struct {
	Id            string    `json:"id"`
	Language      string    `json:"language"`
	Repository    string    `json:"repository,omitempty"`
	Score         float64   `json:"score"`
	Suggestions   []string  `json:"suggestions,omitempty"`
	Bugs          []string  `json:"bugs,omitempty"`
	Optimizations []string  `json:"optimizations,omitempty"`
	Documentation string    `json:"documentation,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type Analytics struct {
	TotalAnalyses   int      `json:"total_analyses"`
	AvgScore        float64  `json:"avg_score"`
	HighRiskCount   int      `json:"high_risk_count"`
	RecentLanguages []string `json:"recent_languages"`
}

type OAuthConnection struct {
	Provider    string    `json:"provider"`
	Username    string    `json:"username"`
	ConnectedAt time.Time `json:"connected_at"`
}
