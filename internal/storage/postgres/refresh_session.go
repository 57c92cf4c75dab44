package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pribylovaa/auth-sessions/internal/models"
	"github.com/pribylovaa/auth-sessions/internal/storage"
)

const sessionColumns = `id, token_hash, user_id, expires_at, ip_address, user_agent, created_at, last_used_at`

// querier — общий интерфейс пула и транзакции.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// SaveRefreshSession сохраняет новую refresh-сессию в БД.
func (s *Storage) SaveRefreshSession(ctx context.Context, session *models.RefreshSession) error {
	const op = "storage.postgres.SaveRefreshSession"

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := insertSession(ctx, s.db, session); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// RotateRefreshSession погашает старую сессию и сохраняет новую в одной транзакции.
// DELETE ... RETURNING берёт блокировку строки: конкурентная транзакция с тем же
// хэшем дождётся коммита и увидит, что строки уже нет.
func (s *Storage) RotateRefreshSession(ctx context.Context, oldHash string, userID uuid.UUID, next *models.RefreshSession, now time.Time) (*models.RefreshSession, error) {
	const op = "storage.postgres.RotateRefreshSession"

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		DELETE FROM refresh_sessions
		WHERE token_hash = $1 AND user_id = $2
		RETURNING ` + sessionColumns

	old, err := scanSession(tx.QueryRow(ctx, query, oldHash, userID))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if old.Expired(now) {
		// Просроченная запись удаляется, новая не выпускается.
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		return old, fmt.Errorf("%s: %w", op, storage.ErrExpired)
	}

	if err := insertSession(ctx, tx, next); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return old, nil
}

// DeleteRefreshSessionByHash удаляет сессию по хэшу токена.
func (s *Storage) DeleteRefreshSessionByHash(ctx context.Context, hash string) error {
	const op = "storage.postgres.DeleteRefreshSessionByHash"

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tag, err := s.db.Exec(ctx, `DELETE FROM refresh_sessions WHERE token_hash = $1`, hash)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// DeleteUserSession удаляет сессию, только если она принадлежит пользователю.
func (s *Storage) DeleteUserSession(ctx context.Context, userID, sessionID uuid.UUID) error {
	const op = "storage.postgres.DeleteUserSession"

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tag, err := s.db.Exec(ctx, `DELETE FROM refresh_sessions WHERE id = $1 AND user_id = $2`, sessionID, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// DeleteUserSessions удаляет все сессии пользователя.
func (s *Storage) DeleteUserSessions(ctx context.Context, userID uuid.UUID) (int64, error) {
	const op = "storage.postgres.DeleteUserSessions"

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tag, err := s.db.Exec(ctx, `DELETE FROM refresh_sessions WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return tag.RowsAffected(), nil
}

// UserSessions возвращает непросроченные сессии пользователя, свежие первыми.
func (s *Storage) UserSessions(ctx context.Context, userID uuid.UUID, now time.Time) ([]models.RefreshSession, error) {
	const op = "storage.postgres.UserSessions"

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT ` + sessionColumns + `
		FROM refresh_sessions
		WHERE user_id = $1 AND expires_at > $2
		ORDER BY last_used_at DESC, created_at DESC
	`

	rows, err := s.db.Query(ctx, query, userID, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := make([]models.RefreshSession, 0)
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, *sess)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

// DeleteExpiredSessions удаляет все просроченные сессии.
func (s *Storage) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.postgres.DeleteExpiredSessions"

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tag, err := s.db.Exec(ctx, `DELETE FROM refresh_sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return tag.RowsAffected(), nil
}

func insertSession(ctx context.Context, q querier, session *models.RefreshSession) error {
	query := `
		INSERT INTO refresh_sessions(` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := q.Exec(ctx, query,
		session.ID,
		session.TokenHash,
		session.UserID,
		session.ExpiresAt,
		session.IPAddress,
		session.UserAgent,
		session.CreatedAt,
		session.LastUsedAt,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgerrcode.UniqueViolation:
				return storage.ErrAlreadyExists
			case pgerrcode.ForeignKeyViolation:
				return storage.ErrNotFound
			}
		}

		return err
	}

	return nil
}

func scanSession(row pgx.Row) (*models.RefreshSession, error) {
	var sess models.RefreshSession
	err := row.Scan(
		&sess.ID,
		&sess.TokenHash,
		&sess.UserID,
		&sess.ExpiresAt,
		&sess.IPAddress,
		&sess.UserAgent,
		&sess.CreatedAt,
		&sess.LastUsedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}

		return nil, err
	}

	return &sess, nil
}
