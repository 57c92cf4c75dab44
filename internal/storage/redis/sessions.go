package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pribylovaa/auth-sessions/internal/models"
	"github.com/pribylovaa/auth-sessions/internal/storage"
)

var errBadReply = errors.New("unexpected script reply")

// SaveRefreshSession сохраняет новую сессию.
func (s *Storage) SaveRefreshSession(ctx context.Context, session *models.RefreshSession) error {
	const op = "storage.redis.SaveRefreshSession"

	args := append([]any{s.prefix}, s.recordArgs(session)...)
	code, err := saveLua.Run(ctx, s.rdb, nil, args...).Int64()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if code == statusConflict {
		return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
	}

	return nil
}

// RotateRefreshSession атомарно погашает сессию и сохраняет next (см. storage.SessionStorage).
func (s *Storage) RotateRefreshSession(ctx context.Context, oldHash string, userID uuid.UUID, next *models.RefreshSession, now time.Time) (*models.RefreshSession, error) {
	const op = "storage.redis.RotateRefreshSession"

	args := append([]any{s.prefix, oldHash, userID.String(), now.UnixMilli()}, s.recordArgs(next)...)
	res, err := rotateLua.Run(ctx, s.rdb, nil, args...).Slice()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if len(res) == 0 {
		return nil, fmt.Errorf("%s: %w", op, errBadReply)
	}

	code, ok := res[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, errBadReply)
	}

	switch code {
	case statusNotFound:
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	case statusConflict:
		return nil, fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
	case statusExpired, statusOK:
	default:
		return nil, fmt.Errorf("%s: %w", op, errBadReply)
	}

	if len(res) < 2 {
		return nil, fmt.Errorf("%s: %w", op, errBadReply)
	}

	fields, ok := res[1].([]any)
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, errBadReply)
	}

	old, err := decodeRecord(oldHash, pairs(fields))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if code == statusExpired {
		return old, fmt.Errorf("%s: %w", op, storage.ErrExpired)
	}

	return old, nil
}

// DeleteRefreshSessionByHash удаляет сессию по хэшу токена.
func (s *Storage) DeleteRefreshSessionByHash(ctx context.Context, hash string) error {
	const op = "storage.redis.DeleteRefreshSessionByHash"

	n, err := deleteByHashLua.Run(ctx, s.rdb, nil, s.prefix, hash).Int64()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if n == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// DeleteUserSession удаляет сессию, только если она принадлежит пользователю.
func (s *Storage) DeleteUserSession(ctx context.Context, userID, sessionID uuid.UUID) error {
	const op = "storage.redis.DeleteUserSession"

	n, err := deleteByIDLua.Run(ctx, s.rdb, nil, s.prefix, userID.String(), sessionID.String()).Int64()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if n == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// DeleteUserSessions удаляет все сессии пользователя.
func (s *Storage) DeleteUserSessions(ctx context.Context, userID uuid.UUID) (int64, error) {
	const op = "storage.redis.DeleteUserSessions"

	n, err := deleteByUserLua.Run(ctx, s.rdb, nil, s.prefix, userID.String()).Int64()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}

// UserSessions возвращает непросроченные сессии пользователя, свежие первыми.
// Хэши, чьи записи уже вытеснены по TTL, вычищаются из индекса попутно.
func (s *Storage) UserSessions(ctx context.Context, userID uuid.UUID, now time.Time) ([]models.RefreshSession, error) {
	const op = "storage.redis.UserSessions"

	ukey := s.userKey(userID.String())
	hashes, err := s.rdb.ZRevRange(ctx, ukey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out := make([]models.RefreshSession, 0, len(hashes))
	if len(hashes) == 0 {
		return out, nil
	}

	pipe := s.rdb.Pipeline()
	cmds := make([]*goredis.MapStringStringCmd, len(hashes))
	for i, h := range hashes {
		cmds[i] = pipe.HGetAll(ctx, s.sessionKey(h))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var stale []any
	for i, cmd := range cmds {
		m, err := cmd.Result()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		if len(m) == 0 {
			stale = append(stale, hashes[i])
			continue
		}

		sess, err := decodeRecord(hashes[i], m)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		if sess.Expired(now) {
			continue
		}

		out = append(out, *sess)
	}

	if len(stale) > 0 {
		if err := s.rdb.ZRem(ctx, ukey, stale...).Err(); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].LastUsedAt.Equal(out[j].LastUsedAt) {
			return out[i].LastUsedAt.After(out[j].LastUsedAt)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	return out, nil
}

// DeleteExpiredSessions удаляет все просроченные сессии.
func (s *Storage) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.redis.DeleteExpiredSessions"

	n, err := deleteExpiredLua.Run(ctx, s.rdb, nil, s.prefix, now.UnixMilli()).Int64()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}

// recordArgs раскладывает запись в аргументы скрипта:
// hash, sid, uid, exp, ip, ua, ca, lu, keep_until.
func (s *Storage) recordArgs(r *models.RefreshSession) []any {
	return []any{
		r.TokenHash,
		r.ID.String(),
		r.UserID.String(),
		r.ExpiresAt.UnixMilli(),
		r.IPAddress,
		r.UserAgent,
		r.CreatedAt.UnixMilli(),
		r.LastUsedAt.UnixMilli(),
		r.ExpiresAt.Add(s.retention).UnixMilli(),
	}
}

// pairs превращает плоский ответ HGETALL из скрипта в map.
func pairs(flat []any) map[string]string {
	m := make(map[string]string, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		k, _ := flat[i].(string)
		v, _ := flat[i+1].(string)
		m[k] = v
	}

	return m
}

func decodeRecord(hash string, m map[string]string) (*models.RefreshSession, error) {
	id, err := uuid.Parse(m["id"])
	if err != nil {
		return nil, err
	}

	uid, err := uuid.Parse(m["uid"])
	if err != nil {
		return nil, err
	}

	exp, err := parseMillis(m["exp"])
	if err != nil {
		return nil, err
	}

	created, err := parseMillis(m["ca"])
	if err != nil {
		return nil, err
	}

	lastUsed, err := parseMillis(m["lu"])
	if err != nil {
		return nil, err
	}

	return &models.RefreshSession{
		ID:         id,
		TokenHash:  hash,
		UserID:     uid,
		ExpiresAt:  exp,
		IPAddress:  m["ip"],
		UserAgent:  m["ua"],
		CreatedAt:  created,
		LastUsedAt: lastUsed,
	}, nil
}

func parseMillis(v string) (time.Time, error) {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, err
	}

	return time.UnixMilli(ms).UTC(), nil
}
