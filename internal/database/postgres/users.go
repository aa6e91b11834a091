package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"sync"
	"time"

	"github.com/bardlex/beampool/pkg/errors"
)

const userByNameQuery = `SELECT id, username, is_active FROM users WHERE username = $1`

// ErrUnknownUser is returned for names with no active user row
var ErrUnknownUser = errors.New(errors.ErrorTypeValidation, "resolve_user", "unknown user")

// UserDirectory maps miner user names to user ids. Hits are cached for ttl;
// misses and failures are not.
type UserDirectory struct {
	lookup func(ctx context.Context, name string) (User, error)
	ttl    time.Duration
	now    func() time.Time

	mu    sync.RWMutex
	cache map[string]cachedUser
}

// NewUserDirectory creates a directory reading the users table of db
func NewUserDirectory(db *sql.DB, ttl time.Duration) *UserDirectory {
	return newUserDirectory(func(ctx context.Context, name string) (User, error) {
		var u User
		err := db.QueryRowContext(ctx, userByNameQuery, name).Scan(&u.ID, &u.Username, &u.IsActive)
		if stderrors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUnknownUser
		}
		if err != nil {
			return User{}, errors.Wrap(err, errors.ErrorTypeStorage, "resolve_user", "failed to query user").
				WithContext("user_name", name)
		}
		return u, nil
	}, ttl, time.Now)
}

func newUserDirectory(lookup func(ctx context.Context, name string) (User, error), ttl time.Duration, now func() time.Time) *UserDirectory {
	return &UserDirectory{
		lookup: lookup,
		ttl:    ttl,
		now:    now,
		cache:  make(map[string]cachedUser),
	}
}

// ResolveUser returns the id of the active user called name
func (d *UserDirectory) ResolveUser(ctx context.Context, name string) (int32, error) {
	if name == "" {
		return 0, ErrUnknownUser
	}

	now := d.now()
	d.mu.RLock()
	entry, ok := d.cache[name]
	d.mu.RUnlock()
	if ok && now.Sub(entry.cachedAt) < d.ttl {
		return entry.user.ID, nil
	}

	u, err := d.lookup(ctx, name)
	if err != nil {
		return 0, err
	}
	if !u.IsActive {
		d.forget(name)
		return 0, ErrUnknownUser
	}

	d.mu.Lock()
	d.cache[name] = cachedUser{user: u, cachedAt: now}
	d.mu.Unlock()
	return u.ID, nil
}

func (d *UserDirectory) forget(name string) {
	d.mu.Lock()
	delete(d.cache, name)
	d.mu.Unlock()
}

// Len returns the number of cached users
func (d *UserDirectory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.cache)
}
