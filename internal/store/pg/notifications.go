package pg

import (
	"context"

	"moneta.app/internal/notify"
)

func (s *Store) CreateNotification(ctx context.Context, n notify.Notification) error {
	if s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx, `
		insert into notifications (id, user_id, kind, subject, body, read, created_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, n.ID, n.UserID, string(n.Kind), n.Subject, n.Body, n.Read, n.CreatedAt)
	return err
}

// ListNotifications is newest first; ids are ULIDs so id order is time order.
func (s *Store) ListNotifications(ctx context.Context, userID int64, offset, limit int) ([]notify.Notification, int, error) {
	if s.db == nil {
		return nil, 0, errNoDB
	}
	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from notifications where user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, user_id, kind, subject, body, read, created_at
		from notifications
		where user_id = $1
		order by id desc
		offset $2 limit $3
	`, userID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]notify.Notification, 0)
	for rows.Next() {
		var (
			n    notify.Notification
			kind string
		)
		if err := rows.Scan(&n.ID, &n.UserID, &kind, &n.Subject, &n.Body, &n.Read, &n.CreatedAt); err != nil {
			return nil, 0, err
		}
		n.Kind = notify.Kind(kind)
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *Store) MarkNotificationRead(ctx context.Context, userID int64, id string) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `update notifications set read = true where id = $1 and user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	return affected(res, notify.ErrNotFound)
}
