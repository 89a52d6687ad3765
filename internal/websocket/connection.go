package websocket

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"liveroom/pkg/interfaces"
)

// Connection wraps one upgraded socket. All writes go through a single
// writer goroutine; gorilla connections support one concurrent writer.
type Connection struct {
	conn    *websocket.Conn
	writeCh chan []byte
	opts    Options
	logger  *zap.Logger

	userID string

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool

	dropped atomic.Int64
}

var _ interfaces.Socket = (*Connection)(nil)

func newConnection(conn *websocket.Conn, userID string, opts Options, logger *zap.Logger) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:    conn,
		writeCh: make(chan []byte, opts.BufferSize),
		opts:    opts,
		logger:  logger.With(zap.String("user_id", userID), zap.String("remote", conn.RemoteAddr().String())),
		userID:  userID,
		ctx:     ctx,
		cancel:  cancel,
	}
	go c.writeLoop()
	return c
}

func (c *Connection) UserID() string {
	return c.userID
}

func (c *Connection) IsOpen() bool {
	return !c.closed.Load()
}

// Send queues frame without blocking. A full buffer drops the frame: one
// slow reader must not stall a room broadcast.
func (c *Connection) Send(frame []byte) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	select {
	case c.writeCh <- frame:
		return nil
	default:
		if n := c.dropped.Inc(); n == 1 || n%100 == 0 {
			c.logger.Warn("send buffer full, dropping frame", zap.Int64("dropped_total", n))
		}
		return ErrSendBufferFull
	}
}

// Dropped reports how many frames were lost to a full buffer.
func (c *Connection) Dropped() int64 {
	return c.dropped.Load()
}

// Close is idempotent.
func (c *Connection) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.cancel()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}

// writeLoop owns every write to the socket, including pings.
func (c *Connection) writeLoop() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame := <-c.writeCh:
			if err := c.write(websocket.TextMessage, frame); err != nil {
				c.logger.Debug("write failed, closing connection", zap.Error(err))
				_ = c.Close()
				return
			}

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("ping failed, closing connection", zap.Error(err))
				_ = c.Close()
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Connection) write(messageType int, data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}
