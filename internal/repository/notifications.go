package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"colegio/backend/internal/model"
)

const notificationColumns = `id, title, message, target_mode, target_payload, target_grade, target_group, status, created_by_id, created_by_role, approved_by_id, created_at, approved_at`

func scanNotification(row pgx.Row) (model.Notification, error) {
	var n model.Notification
	var payload []byte
	err := row.Scan(
		&n.ID,
		&n.Title,
		&n.Message,
		&n.TargetMode,
		&payload,
		&n.TargetGrade,
		&n.TargetGroup,
		&n.Status,
		&n.CreatedByID,
		&n.CreatedByRole,
		&n.ApprovedByID,
		&n.CreatedAt,
		&n.ApprovedAt,
	)
	if err != nil {
		return n, err
	}
	if len(payload) > 0 {
		// Payload is a canonical JSON array; rows written with a payload the
		// reader cannot parse are treated as having none.
		_ = json.Unmarshal(payload, &n.TargetPayload)
	}
	return n, nil
}

func (s *Store) InsertNotification(ctx context.Context, n model.Notification) (string, error) {
	id := uuid.NewString()
	payload, err := json.Marshal(n.TargetPayload)
	if err != nil {
		return "", err
	}
	if n.TargetPayload == nil {
		payload = []byte("[]")
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO notifications (id, title, message, target_mode, target_payload, target_grade, target_group, status, created_by_id, created_by_role, approved_by_id, created_at, approved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, id, n.Title, n.Message, n.TargetMode, payload, n.TargetGrade, n.TargetGroup, n.Status, n.CreatedByID, n.CreatedByRole, n.ApprovedByID, n.CreatedAt, n.ApprovedAt)
	return id, err
}

func (s *Store) GetNotification(ctx context.Context, notificationID string) (model.Notification, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, notificationID)
	return scanNotification(row)
}

func (s *Store) ListNotificationsByCreator(ctx context.Context, creatorID, creatorRole string, status *string, limit int) ([]model.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE created_by_id = $1 AND created_by_role = $2`
	args := []interface{}{creatorID, creatorRole}
	if status != nil {
		args = append(args, *status)
		query += ` AND status = $3`
	}
	args = append(args, limit)
	if status != nil {
		query += ` ORDER BY created_at DESC LIMIT $4`
	} else {
		query += ` ORDER BY created_at DESC LIMIT $3`
	}
	return s.queryNotifications(ctx, query, args...)
}

func (s *Store) ListNotifications(ctx context.Context, status, mode *string, limit, offset int) ([]model.Notification, int, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM notifications WHERE 1=1`
	args := []interface{}{}
	if status != nil {
		args = append(args, *status)
		query += ` AND status = $1`
		countQuery += ` AND status = $1`
	}
	if mode != nil {
		args = append(args, *mode)
		if len(args) == 1 {
			query += ` AND target_mode = $1`
			countQuery += ` AND target_mode = $1`
		} else {
			query += ` AND target_mode = $2`
			countQuery += ` AND target_mode = $2`
		}
	}

	var total int
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	switch len(args) {
	case 2:
		query += ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	case 3:
		query += ` ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	default:
		query += ` ORDER BY created_at DESC LIMIT $3 OFFSET $4`
	}

	notifications, err := s.queryNotifications(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return notifications, total, nil
}

func (s *Store) ListPendingNotifications(ctx context.Context) ([]model.Notification, error) {
	return s.queryNotifications(ctx, `
		SELECT `+notificationColumns+` FROM notifications WHERE status = 'pending' ORDER BY created_at ASC
	`)
}

// ListApprovedNotifications feeds the per-student inclusion filter; only
// approved records are ever candidates for a student listing.
func (s *Store) ListApprovedNotifications(ctx context.Context, limit int) ([]model.Notification, error) {
	return s.queryNotifications(ctx, `
		SELECT `+notificationColumns+` FROM notifications WHERE status = 'approved' ORDER BY created_at DESC LIMIT $1
	`, limit)
}

func (s *Store) queryNotifications(ctx context.Context, query string, args ...interface{}) ([]model.Notification, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// SetStatusIfPending is the moderation compare-and-set: the status only
// changes when the row is still pending, so a concurrent double-moderate
// loses by affecting zero rows.
func (s *Store) SetStatusIfPending(ctx context.Context, notificationID, status, adminID string, at time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications
		SET status = $1, approved_by_id = $2, approved_at = $3
		WHERE id = $4 AND status = 'pending'
	`, status, adminID, at, notificationID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) UpdateNotificationContent(ctx context.Context, notificationID string, title, message *string) (int64, error) {
	query := `UPDATE notifications SET `
	args := []interface{}{}
	if title != nil {
		args = append(args, *title)
		query += `title = $1`
	}
	if message != nil {
		args = append(args, *message)
		if len(args) == 1 {
			query += `message = $1`
		} else {
			query += `, message = $2`
		}
	}
	args = append(args, notificationID)
	switch len(args) {
	case 2:
		query += ` WHERE id = $2`
	default:
		query += ` WHERE id = $3`
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) DeleteNotification(ctx context.Context, notificationID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM notifications WHERE id = $1`, notificationID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) DeleteRejectedNotifications(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM notifications WHERE status = 'rejected'`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) DeleteNotificationsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM notifications WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
