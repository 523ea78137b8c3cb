package bus

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/arkavel/voidtable/internal/protocol"
)

// Client is one participant's connection to the bus. Agents own exactly one
// Client for their whole lifetime.
type Client struct {
	id   string
	conn net.Conn

	writeMu sync.Mutex

	recv chan protocol.Message
	done chan struct{}
	once sync.Once
}

// Dial connects to the bus socket at path and registers the client under id
// by sending an AgentRegister frame as the first message.
func Dial(ctx context.Context, path, id string, role protocol.Role) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("bus: dial %q: %w", path, err)
	}

	c := &Client{
		id:   id,
		conn: conn,
		recv: make(chan protocol.Message, 64),
		done: make(chan struct{}),
	}

	reg := protocol.New(protocol.AgentRegister, id, protocol.RegisterPayload{Role: role})
	if err := c.Send(reg); err != nil {
		conn.Close()
		return nil, fmt.Errorf("bus: register %q: %w", id, err)
	}

	go c.readLoop()
	return c, nil
}

// ID returns the client's registered agent id.
func (c *Client) ID() string { return c.id }

// Send writes one message frame to the bus. Safe for concurrent use.
func (c *Client) Send(msg protocol.Message) error {
	frame, err := msg.Encode()
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.conn.Write(frame); err != nil {
		return fmt.Errorf("bus: send %s from %q: %w", msg.Type, c.id, err)
	}
	return nil
}

// Receive returns the channel of inbound messages. The channel closes when
// the connection breaks or Close is called.
func (c *Client) Receive() <-chan protocol.Message { return c.recv }

// Done is closed when the read loop has finished.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) readLoop() {
	defer func() {
		close(c.recv)
		close(c.done)
	}()

	sc := bufio.NewScanner(c.conn)
	sc.Buffer(make([]byte, 64*1024), MaxFrame)
	for sc.Scan() {
		msg, err := protocol.Parse(sc.Bytes())
		if err != nil {
			slog.Warn("client dropped malformed frame", "client", c.id, "err", err)
			continue
		}
		c.recv <- msg
	}
	if err := sc.Err(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
		slog.Debug("client connection closed", "client", c.id, "err", err)
	}
}

// Close tears down the connection. Safe to call more than once.
func (c *Client) Close() {
	c.once.Do(func() {
		c.conn.Close()
	})
}
