package database

import (
	"database/sql"
	"time"
)

func (db *PgReviewRepository) CreateAccount(params CreateAccountParams) (User, error) {
	res := db.conn.QueryRow(
		"INSERT INTO accounts (username, email, password_hash, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $4) RETURNING id, username, email, created_at, updated_at",
		params.Username,
		params.EmailAddress,
		params.PasswordHash,
		time.Now().UTC(),
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func (db *PgReviewRepository) GetAccountById(accountId int) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, created_at, updated_at FROM accounts "+
			"WHERE id = $1 LIMIT 1",
		accountId,
	)

	var u User
	err := row.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func (db *PgReviewRepository) GetAccountByEmail(email string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, password_hash, created_at, updated_at FROM accounts "+
			"WHERE email = $1 LIMIT 1",
		email,
	)

	var u User
	err := row.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.PasswordHash,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

// CreateRoom inserts the room and the creator's owner membership in a single
// transaction so a room can never exist without an owner.
func (db *PgReviewRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Room{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	res := tx.QueryRow(
		"INSERT INTO rooms (external_id, name, repository, seq_id, created_by, created_at, updated_at) "+
			"VALUES ($1, $2, $3, 0, $4, $5, $5) "+
			"RETURNING id, external_id, name, repository, seq_id, created_by, created_at, updated_at",
		params.ExternalId,
		params.Name,
		params.Repository,
		params.CreatedBy,
		now,
	)

	var room Room
	err = res.Scan(
		&room.Id,
		&room.ExternalId,
		&room.Name,
		&room.Repository,
		&room.SeqId,
		&room.CreatedBy,
		&room.CreatedAt,
		&room.UpdatedAt,
	)
	if err != nil {
		return Room{}, err
	}

	_, err = tx.Exec(
		"INSERT INTO memberships (room_id, user_id, role, created_at, updated_at) VALUES ($1, $2, 'owner', $3, $3)",
		room.Id,
		params.CreatedBy,
		now,
	)
	if err != nil {
		return Room{}, err
	}

	if err = tx.Commit(); err != nil {
		return Room{}, err
	}

	room.Role = "owner"
	return room, nil
}

func (db *PgReviewRepository) GetRoomById(roomId int) (Room, error) {
	row := db.conn.QueryRow(
		"SELECT id, external_id, name, repository, seq_id, created_by, created_at, updated_at FROM rooms "+
			"WHERE id = $1 LIMIT 1",
		roomId,
	)

	return scanRoom(row)
}

func (db *PgReviewRepository) GetRoomByExternalId(externalId string) (Room, error) {
	row := db.conn.QueryRow(
		"SELECT id, external_id, name, repository, seq_id, created_by, created_at, updated_at FROM rooms "+
			"WHERE external_id = $1 LIMIT 1",
		externalId,
	)

	return scanRoom(row)
}

func scanRoom(row *sql.Row) (Room, error) {
	var room Room
	err := row.Scan(
		&room.Id,
		&room.ExternalId,
		&room.Name,
		&room.Repository,
		&room.SeqId,
		&room.CreatedBy,
		&room.CreatedAt,
		&room.UpdatedAt,
	)

	return room, err
}

func (db *PgReviewRepository) ListRoomsForUser(userId int) ([]Room, error) {
	rows, err := db.conn.Query(
		"SELECT r.id, r.external_id, r.name, r.repository, r.seq_id, r.created_by, r.created_at, r.updated_at, m.role "+
			"FROM memberships m JOIN rooms r ON r.id = m.room_id "+
			"WHERE m.user_id = $1 ORDER BY r.created_at ASC, r.id ASC",
		userId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		var room Room
		if err = rows.Scan(
			&room.Id,
			&room.ExternalId,
			&room.Name,
			&room.Repository,
			&room.SeqId,
			&room.CreatedBy,
			&room.CreatedAt,
			&room.UpdatedAt,
			&room.Role,
		); err != nil {
			return nil, err
		}

		rooms = append(rooms, room)
	}

	return rooms, rows.Err()
}

func (db *PgReviewRepository) UpsertMembership(roomId, userId int, role string) (Membership, error) {
	res := db.conn.QueryRow(
		"INSERT INTO memberships (room_id, user_id, role, created_at, updated_at) VALUES ($1, $2, $3, $4, $4) "+
			"ON CONFLICT (room_id, user_id) DO UPDATE SET role = EXCLUDED.role, updated_at = EXCLUDED.updated_at "+
			"RETURNING id, room_id, user_id, role, created_at, updated_at",
		roomId,
		userId,
		role,
		time.Now().UTC(),
	)

	var m Membership
	err := res.Scan(
		&m.Id,
		&m.RoomId,
		&m.UserId,
		&m.Role,
		&m.CreatedAt,
		&m.UpdatedAt,
	)

	return m, err
}

func (db *PgReviewRepository) GetMembership(roomId, userId int) (Membership, error) {
	row := db.conn.QueryRow(
		"SELECT id, room_id, user_id, role, created_at, updated_at FROM memberships "+
			"WHERE room_id = $1 AND user_id = $2 LIMIT 1",
		roomId,
		userId,
	)

	var m Membership
	err := row.Scan(
		&m.Id,
		&m.RoomId,
		&m.UserId,
		&m.Role,
		&m.CreatedAt,
		&m.UpdatedAt,
	)

	return m, err
}

func (db *PgReviewRepository) ListMemberIds(roomId int) ([]int, error) {
	rows, err := db.conn.Query(
		"SELECT user_id FROM memberships WHERE room_id = $1",
		roomId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err = rows.Scan(&id); err != nil {
			return nil, err
		}

		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// CreateThread persists the thread and advances the room's sequence counter
// in one transaction: either both happen or neither does.
func (db *PgReviewRepository) CreateThread(params CreateThreadParams) (Thread, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Thread{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var externalId string
	err = tx.QueryRow(
		"UPDATE rooms SET seq_id = $1, updated_at = $2 WHERE id = $3 RETURNING external_id",
		params.SeqId,
		time.Now().UTC(),
		params.RoomId,
	).Scan(&externalId)
	if err != nil {
		return Thread{}, err
	}

	res := tx.QueryRow(
		"INSERT INTO threads (room_id, title, created_by, created_at) VALUES ($1, $2, $3, $4) "+
			"RETURNING id, room_id, title, created_by, created_at",
		params.RoomId,
		params.Title,
		params.CreatedBy,
		params.CreatedAt,
	)

	var thread Thread
	err = res.Scan(
		&thread.Id,
		&thread.RoomId,
		&thread.Title,
		&thread.CreatedBy,
		&thread.CreatedAt,
	)
	if err != nil {
		return Thread{}, err
	}

	if err = tx.Commit(); err != nil {
		return Thread{}, err
	}

	thread.RoomExternalId = externalId
	return thread, nil
}

func (db *PgReviewRepository) GetThread(threadId int) (Thread, error) {
	row := db.conn.QueryRow(
		"SELECT t.id, t.room_id, r.external_id, t.title, t.created_by, t.created_at "+
			"FROM threads t JOIN rooms r ON r.id = t.room_id WHERE t.id = $1 LIMIT 1",
		threadId,
	)

	var thread Thread
	err := row.Scan(
		&thread.Id,
		&thread.RoomId,
		&thread.RoomExternalId,
		&thread.Title,
		&thread.CreatedBy,
		&thread.CreatedAt,
	)

	return thread, err
}

func (db *PgReviewRepository) ListThreads(roomId int) ([]Thread, error) {
	rows, err := db.conn.Query(
		"SELECT t.id, t.room_id, r.external_id, t.title, t.created_by, t.created_at "+
			"FROM threads t JOIN rooms r ON r.id = t.room_id "+
			"WHERE t.room_id = $1 ORDER BY t.created_at ASC, t.id ASC",
		roomId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var threads []Thread
	for rows.Next() {
		var thread Thread
		if err = rows.Scan(
			&thread.Id,
			&thread.RoomId,
			&thread.RoomExternalId,
			&thread.Title,
			&thread.CreatedBy,
			&thread.CreatedAt,
		); err != nil {
			return nil, err
		}

		threads = append(threads, thread)
	}

	return threads, rows.Err()
}

// CreateComment persists the comment and advances the room's sequence
// counter in one transaction. When a parent id is given, the parent must
// exist and belong to the same thread; violations roll the whole write back.
func (db *PgReviewRepository) CreateComment(params CreateCommentParams) (Comment, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Comment{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if params.ParentId != nil {
		var parentThreadId int
		err = tx.QueryRow(
			"SELECT thread_id FROM comments WHERE id = $1 LIMIT 1",
			*params.ParentId,
		).Scan(&parentThreadId)
		if err == sql.ErrNoRows {
			err = ErrParentNotFound
			return Comment{}, err
		}
		if err != nil {
			return Comment{}, err
		}
		if parentThreadId != params.ThreadId {
			err = ErrParentThreadMismatch
			return Comment{}, err
		}
	}

	_, err = tx.Exec(
		"UPDATE rooms SET seq_id = $1, updated_at = $2 WHERE id = $3",
		params.SeqId,
		time.Now().UTC(),
		params.RoomId,
	)
	if err != nil {
		return Comment{}, err
	}

	res := tx.QueryRow(
		"INSERT INTO comments (thread_id, parent_id, body, author_id, created_at) VALUES ($1, $2, $3, $4, $5) "+
			"RETURNING id, thread_id, parent_id, body, author_id, created_at",
		params.ThreadId,
		params.ParentId,
		params.Body,
		params.AuthorId,
		params.CreatedAt,
	)

	var comment Comment
	err = res.Scan(
		&comment.Id,
		&comment.ThreadId,
		&comment.ParentId,
		&comment.Body,
		&comment.AuthorId,
		&comment.CreatedAt,
	)
	if err != nil {
		return Comment{}, err
	}

	if err = tx.Commit(); err != nil {
		return Comment{}, err
	}

	return comment, nil
}

func (db *PgReviewRepository) GetComment(commentId int) (Comment, error) {
	row := db.conn.QueryRow(
		"SELECT id, thread_id, parent_id, body, author_id, created_at FROM comments "+
			"WHERE id = $1 LIMIT 1",
		commentId,
	)

	var comment Comment
	err := row.Scan(
		&comment.Id,
		&comment.ThreadId,
		&comment.ParentId,
		&comment.Body,
		&comment.AuthorId,
		&comment.CreatedAt,
	)

	return comment, err
}

func (db *PgReviewRepository) ListComments(threadId int) ([]Comment, error) {
	rows, err := db.conn.Query(
		"SELECT id, thread_id, parent_id, body, author_id, created_at FROM comments "+
			"WHERE thread_id = $1 ORDER BY created_at ASC, id ASC",
		threadId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []Comment
	for rows.Next() {
		var comment Comment
		if err = rows.Scan(
			&comment.Id,
			&comment.ThreadId,
			&comment.ParentId,
			&comment.Body,
			&comment.AuthorId,
			&comment.CreatedAt,
		); err != nil {
			return nil, err
		}

		comments = append(comments, comment)
	}

	return comments, rows.Err()
}

// ListThreadParticipantIds returns the thread creator plus every distinct
// comment author in the thread.
func (db *PgReviewRepository) ListThreadParticipantIds(threadId int) ([]int, error) {
	rows, err := db.conn.Query(
		"SELECT created_by FROM threads WHERE id = $1 "+
			"UNION SELECT DISTINCT author_id FROM comments WHERE thread_id = $1",
		threadId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err = rows.Scan(&id); err != nil {
			return nil, err
		}

		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func (db *PgReviewRepository) CreateNotification(params CreateNotificationParams) (Notification, error) {
	res := db.conn.QueryRow(
		"INSERT INTO notifications (user_id, title, body, read, thread_id, comment_id, created_at) "+
			"VALUES ($1, $2, $3, false, $4, $5, $6) "+
			"RETURNING id, user_id, title, body, read, thread_id, comment_id, created_at",
		params.UserId,
		params.Title,
		params.Body,
		params.ThreadId,
		params.CommentId,
		time.Now().UTC(),
	)

	return scanNotification(res)
}

func (db *PgReviewRepository) GetNotification(notificationId int) (Notification, error) {
	row := db.conn.QueryRow(
		"SELECT id, user_id, title, body, read, thread_id, comment_id, created_at FROM notifications "+
			"WHERE id = $1 LIMIT 1",
		notificationId,
	)

	return scanNotification(row)
}

func scanNotification(row *sql.Row) (Notification, error) {
	var n Notification
	err := row.Scan(
		&n.Id,
		&n.UserId,
		&n.Title,
		&n.Body,
		&n.Read,
		&n.ThreadId,
		&n.CommentId,
		&n.CreatedAt,
	)

	return n, err
}

func (db *PgReviewRepository) ListNotifications(userId, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.conn.Query(
		"SELECT id, user_id, title, body, read, thread_id, comment_id, created_at FROM notifications "+
			"WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2",
		userId,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []Notification
	for rows.Next() {
		var n Notification
		if err = rows.Scan(
			&n.Id,
			&n.UserId,
			&n.Title,
			&n.Body,
			&n.Read,
			&n.ThreadId,
			&n.CommentId,
			&n.CreatedAt,
		); err != nil {
			return nil, err
		}

		notifications = append(notifications, n)
	}

	return notifications, rows.Err()
}

func (db *PgReviewRepository) MarkNotificationRead(notificationId int) error {
	_, err := db.conn.Exec(
		"UPDATE notifications SET read = true WHERE id = $1",
		notificationId,
	)

	return err
}

func (db *PgReviewRepository) SaveAnalysisReport(params SaveAnalysisParams) (AnalysisReport, error) {
	res := db.conn.QueryRow(
		"INSERT INTO analysis_reports (id, user_id, language, repository, score, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6) "+
			"RETURNING id, user_id, language, repository, score, created_at",
		params.Id,
		params.UserId,
		params.Language,
		params.Repository,
		params.Score,
		time.Now().UTC(),
	)

	var report AnalysisReport
	err := res.Scan(
		&report.Id,
		&report.UserId,
		&report.Language,
		&report.Repository,
		&report.Score,
		&report.CreatedAt,
	)

	return report, err
}

func (db *PgReviewRepository) ListRecentReports(userId, limit int) ([]AnalysisReport, error) {
	if limit <= 0 {
		limit = 12
	}

	rows, err := db.conn.Query(
		"SELECT id, user_id, language, repository, score, created_at FROM analysis_reports "+
			"WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2",
		userId,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []AnalysisReport
	for rows.Next() {
		var report AnalysisReport
		if err = rows.Scan(
			&report.Id,
			&report.UserId,
			&report.Language,
			&report.Repository,
			&report.Score,
			&report.CreatedAt,
		); err != nil {
			return nil, err
		}

		reports = append(reports, report)
	}

	return reports, rows.Err()
}

func (db *PgReviewRepository) GetAnalytics(userId int) (Analytics, error) {
	var a Analytics
	err := db.conn.QueryRow(
		"SELECT COUNT(*), COALESCE(AVG(score), 0), COUNT(*) FILTER (WHERE score < 0.5) "+
			"FROM analysis_reports WHERE user_id = $1",
		userId,
	).Scan(&a.TotalAnalyses, &a.AvgScore, &a.HighRiskCount)
	if err != nil {
		return Analytics{}, err
	}

	rows, err := db.conn.Query(
		"SELECT DISTINCT ON (language) language FROM analysis_reports "+
			"WHERE user_id = $1 ORDER BY language, created_at DESC LIMIT 5",
		userId,
	)
	if err != nil {
		return Analytics{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var lang string
		if err = rows.Scan(&lang); err != nil {
			return Analytics{}, err
		}

		a.RecentLanguages = append(a.RecentLanguages, lang)
	}

	return a, rows.Err()
}

func (db *PgReviewRepository) ListOAuthConnections(userId int) ([]OAuthConnection, error) {
	rows, err := db.conn.Query(
		"SELECT id, user_id, provider, username, connected_at FROM oauth_connections "+
			"WHERE user_id = $1 ORDER BY connected_at DESC",
		userId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conns []OAuthConnection
	for rows.Next() {
		var c OAuthConnection
		if err = rows.Scan(&c.Id, &c.UserId, &c.Provider, &c.Username, &c.ConnectedAt); err != nil {
			return nil, err
		}

		conns = append(conns, c)
	}

	return conns, rows.Err()
}
