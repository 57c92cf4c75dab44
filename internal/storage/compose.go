package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type composite struct {
	UserStorage
	SessionStorage
	closers []func()
}

// Compose собирает Storage из раздельных хранилищ пользователей и сессий
// (например, пользователи в PostgreSQL, сессии в Redis).
// closers вызываются в Close в обратном порядке.
func Compose(users UserStorage, sessions SessionStorage, closers ...func()) Storage {
	return &composite{
		UserStorage:    users,
		SessionStorage: sessions,
		closers:        closers,
	}
}

// DeleteUser сначала отзывает сессии в хранилище сессий, затем удаляет
// пользователя: запись сессии не переживает владельца.
func (c *composite) DeleteUser(ctx context.Context, id uuid.UUID) error {
	const op = "storage.composite.DeleteUser"

	if _, err := c.SessionStorage.DeleteUserSessions(ctx, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := c.UserStorage.DeleteUser(ctx, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (c *composite) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}
