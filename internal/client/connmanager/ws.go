package connmanager

import "github.com/gorilla/websocket"

type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) WriteMessage(data []byte) error {
	return w.c.WriteMessage(websocket.TextMessage, data)
}

func (w *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := w.c.ReadMessage()
	return data, err
}

func (w *wsConn) Close() error {
	return w.c.Close()
}

// WebsocketDialer is the production Dialer.
func WebsocketDialer(url string) (Conn, error) {
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{c: c}, nil
}
