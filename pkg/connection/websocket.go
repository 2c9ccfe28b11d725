package connection

import (
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// newWebSocketDialer returns the default Dialer backed by gorilla/websocket.
func newWebSocketDialer(handshakeTimeout time.Duration) Dialer {
	return func(url string) (Conn, error) {
		dialer := &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
		}

		conn, resp, err := dialer.Dial(url, nil)
		if err != nil {
			if resp != nil && resp.Body != nil {
				_ = resp.Body.Close()
			}
			return nil, fmt.Errorf("failed to dial %s: %w", url, err)
		}

		return conn, nil
	}
}
