package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"playforge/utils"
)

// PGListener relays pg_notify broadcasts from other instances into the local
// Hub. Its own writes are skipped because they were already published.
type PGListener struct {
	dsn     string
	origin  string
	hub     *Hub
	backoff time.Duration
}

func NewPGListener(dsn string, gw *PostgresGateway) *PGListener {
	return &PGListener{
		dsn:     dsn,
		origin:  gw.Origin(),
		hub:     gw.Hub,
		backoff: 2 * time.Second,
	}
}

// Run listens until ctx is cancelled, reconnecting after connection loss.
// Notifications sent while disconnected are lost, so every reconnect is
// followed by a ChangeResync on each subscribed table.
func (l *PGListener) Run(ctx context.Context) {
	log := utils.Component("pg_listener")
	connected := false
	for {
		err := l.listen(ctx, func() {
			if connected {
				l.resync()
			}
			connected = true
		})
		if ctx.Err() != nil {
			return
		}
		log.WithError(err).Warnf("Notification listener stopped, reconnecting in %v", l.backoff)

		select {
		case <-ctx.Done():
			return
		case <-time.After(l.backoff):
		}
	}
}

func (l *PGListener) resync() {
	now := time.Now().UTC()
	for _, table := range l.hub.Tables() {
		l.hub.Publish(ChangeEvent{Table: table, Type: ChangeResync, At: now})
	}
}

// listen calls ready once LISTEN is in place, then relays notifications
// until the connection fails.
func (l *PGListener) listen(ctx context.Context, ready func()) error {
	conn, err := pgx.Connect(ctx, l.dsn)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{NotifyChannel}.Sanitize()); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	utils.Component("pg_listener").Infof("Listening on %s", NotifyChannel)
	ready()

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}

		var payload notifyPayload
		if err := json.Unmarshal([]byte(n.Payload), &payload); err != nil {
			utils.LogWarning(fmt.Sprintf("Ignoring malformed change notification: %v", err))
			continue
		}
		if payload.Origin == l.origin {
			continue
		}
		l.hub.Publish(ChangeEvent{
			Table:  payload.Table,
			Type:   payload.Type,
			Record: payload.Record,
			At:     time.Now().UTC(),
		})
	}
}
