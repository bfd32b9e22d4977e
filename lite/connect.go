// Package lite runs the workload against an embedded SQLite database.
package lite

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"modernc.org/sqlite"

	"querymix-bench/sqldb"
)

// DSN maps sqlite:<path> and file:<path> endpoints onto the driver's DSN.
func DSN(endpoint string) (string, error) {
	switch {
	case strings.HasPrefix(endpoint, "sqlite://"):
		return strings.TrimPrefix(endpoint, "sqlite://"), nil
	case strings.HasPrefix(endpoint, "sqlite:"):
		return strings.TrimPrefix(endpoint, "sqlite:"), nil
	case strings.HasPrefix(endpoint, "file:"):
		return endpoint, nil
	}
	return "", errors.Errorf("not an sqlite endpoint: %s", endpoint)
}

func IsQueryError(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se)
}

// Connect opens the database with a single connection so that in-memory
// databases stay visible across statements.
func Connect(ctx context.Context, endpoint string, timeout time.Duration) (*sqldb.Conn, error) {
	dsn, err := DSN(endpoint)
	if err != nil {
		return nil, err
	}
	if dsn == "" {
		return nil, errors.New("sqlite endpoint has no path")
	}
	return sqldb.Open(ctx, sqldb.Options{
		Driver:       "sqlite",
		DSN:          dsn,
		Timeout:      timeout,
		MaxOpen:      1,
		IsQueryError: IsQueryError,
	})
}
