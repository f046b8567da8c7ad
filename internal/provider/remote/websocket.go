package remote

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/arcway-dev/orchestra/internal/logging"
	"github.com/gorilla/websocket"
)

// websocketUpdater subscribes to a secondary, optional notification channel
// for a single agent session, alongside the SSE stream. It does not replace
// SSE: frames read from the socket are discarded, and updates still arrive
// over SSE. When the socket is absent, Provider simply logs a warning and
// continues on SSE alone.
type websocketUpdater struct {
	conn   *websocket.Conn
	logger logging.Logger
	done   chan struct{}
}

func newWebsocketUpdater(addr, agentID string, logger logging.Logger) (*websocketUpdater, error) {
	wsURL, err := toWebsocketURL(addr, agentID)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return nil, err
	}
	return &websocketUpdater{conn: conn, logger: logging.OrNop(logger), done: make(chan struct{})}, nil
}

func toWebsocketURL(addr, agentID string) (string, error) {
	base, err := normalizeAddr(addr)
	if err != nil {
		return "", err
	}
	wsBase := "ws" + strings.TrimPrefix(base, "http")
	return wsBase + "/agent/ws?client_id=" + url.QueryEscape(agentID), nil
}

// run reads notifications off the socket until ctx is done or the
// connection drops; each frame is discarded after a read-deadline bump,
// since updater is a liveness/wake channel rather than the primary RPC
// transport (that remains SSE + HTTP POST).
func (u *websocketUpdater) run(ctx context.Context) {
	defer u.conn.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case <-u.done:
			return
		default:
		}
		_ = u.conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		if _, _, err := u.conn.ReadMessage(); err != nil {
			u.logger.Warn("remote: websocket updater closed: %v", err)
			return
		}
	}
}

func (u *websocketUpdater) close() {
	select {
	case <-u.done:
	default:
		close(u.done)
	}
	_ = u.conn.Close()
}
