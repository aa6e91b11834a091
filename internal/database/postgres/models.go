package postgres

import (
	"time"
)

// User is a row of the users table as far as login needs it
type User struct {
	ID       int32  `db:"id"`
	Username string `db:"username"`
	IsActive bool   `db:"is_active"`
}

type cachedUser struct {
	user     User
	cachedAt time.Time
}
