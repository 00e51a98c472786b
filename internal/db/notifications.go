package db

import (
	"context"
	"time"
)

// Notification is a delivered (or dry-run) announcement.
type Notification struct {
	ID        int64
	Backend   string
	Message   string
	CreatedAt time.Time
}

// NotificationRepository records announcements. It implements
// notify.NotificationStore.
type NotificationRepository struct {
	db *DB
}

// NewNotificationRepository creates a new notification repository.
func NewNotificationRepository(db *DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// InsertNotification stores message and returns its id.
func (r *NotificationRepository) InsertNotification(ctx context.Context, backend, message string) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO notifications (backend, message) VALUES ($1, $2) RETURNING id`,
		backend, message,
	).Scan(&id)
	return id, err
}

// Recent returns the newest notifications, newest first.
func (r *NotificationRepository) Recent(ctx context.Context, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, backend, message, created_at
		 FROM notifications
		 ORDER BY created_at DESC, id DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.Backend, &n.Message, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
