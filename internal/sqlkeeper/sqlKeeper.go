package sqlkeeper

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver.
	"github.com/timely-app/timelyd/internal/models"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Log interface {
	Info(string, ...zapcore.Field)
}

const schema = `
CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS notifications (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	body       TEXT NOT NULL,
	weekday    INTEGER NOT NULL,
	hour       INTEGER NOT NULL,
	minute     INTEGER NOT NULL,
	repeats    INTEGER NOT NULL DEFAULT 1,
	created_at TIMESTAMP NOT NULL
);
`

// SQLKeeper persists device-local settings and the scheduled-notification
// queue in a sqlite database.
type SQLKeeper struct {
	conn *sql.DB
	log  Log
}

func NewSQLKeeper(path func() string, log Log) *SQLKeeper {
	addr := path()
	if addr == "" {
		log.Info("database path is empty")

		return nil
	}

	conn, err := sql.Open("sqlite3", addr)
	if err != nil {
		log.Info("unable to open database: ", zap.Error(err))

		return nil
	}

	if _, err := conn.Exec(schema); err != nil {
		log.Info("error creating schema: ", zap.Error(err))

		return nil
	}

	log.Info("Connected!", zap.String("path", addr))

	return &SQLKeeper{
		conn: conn,
		log:  log,
	}
}

func (k *SQLKeeper) LoadSettings() (map[string]string, error) {
	rows, err := k.conn.Query(`SELECT key, value FROM settings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := make(map[string]string)

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		settings[key] = value
	}

	return settings, rows.Err()
}

func (k *SQLKeeper) SaveSetting(key, value string) error {
	query := `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`

	_, err := k.conn.Exec(query, key, value)
	if err != nil {
		k.log.Info("error saving setting to database: ", zap.Error(err))
		return err
	}

	return nil
}

func (k *SQLKeeper) SaveNotification(n models.ScheduledNotification) error {
	query := `
		INSERT INTO notifications (id, title, body, weekday, hour, minute, repeats, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := k.conn.Exec(query, n.ID, n.Title, n.Body, n.Weekday, n.Hour, n.Minute, n.Repeats, n.CreatedAt)
	if err != nil {
		k.log.Info("error saving notification to database: ", zap.Error(err))
		return err
	}

	return nil
}

func (k *SQLKeeper) LoadNotifications() ([]models.ScheduledNotification, error) {
	rows, err := k.conn.Query(`
		SELECT id, title, body, weekday, hour, minute, repeats, created_at
		FROM notifications ORDER BY weekday, hour, minute
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []models.ScheduledNotification

	for rows.Next() {
		var n models.ScheduledNotification
		if err := rows.Scan(&n.ID, &n.Title, &n.Body, &n.Weekday, &n.Hour, &n.Minute, &n.Repeats, &n.CreatedAt); err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}

	return notifications, rows.Err()
}

// DeleteAllNotifications wipes the whole scheduled-notification queue. This
// is the only cancellation primitive: the daemon owns the entire queue.
func (k *SQLKeeper) DeleteAllNotifications() error {
	_, err := k.conn.Exec(`DELETE FROM notifications`)
	if err != nil {
		k.log.Info("error deleting notifications from database: ", zap.Error(err))
		return err
	}

	return nil
}

func (k *SQLKeeper) Ping() bool {
	return k.conn.Ping() == nil
}

func (k *SQLKeeper) Close() error {
	return k.conn.Close()
}
