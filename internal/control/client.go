package control

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/pwbridge/internal/bridge"
)

const DefaultDialTimeout = 3 * time.Second

// ErrRemote wraps an error reported by the control server.
var ErrRemote = errors.New("control: remote error")

// Client keeps one persistent connection to a control endpoint. A failed
// call drops the connection; the next call redials.
type Client struct {
	addr    string
	timeout time.Duration

	mu   sync.Mutex
	conn net.Conn
	r    *bufio.Reader
}

func NewClient(addr string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	return &Client{addr: strings.TrimSpace(addr), timeout: timeout}
}

func (c *Client) Address() string {
	return c.addr
}

func (c *Client) Status() (bridge.Status, error) {
	var out bridge.Status
	if err := c.Call(Request{Action: ActionStatus}, &out); err != nil {
		return bridge.Status{}, err
	}
	return out, nil
}

func (c *Client) Diagnostics(limit int) ([]bridge.Diagnostic, error) {
	var out []bridge.Diagnostic
	if err := c.Call(Request{Action: ActionDiagnostics, Limit: limit}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Ready signals the remote bridge's readiness gate.
func (c *Client) Ready() (bool, error) {
	var out ReadyResult
	if err := c.Call(Request{Action: ActionReady}, &out); err != nil {
		return false, err
	}
	return out.Fired, nil
}

// Call sends req and decodes the response data into out when out is non-nil.
func (c *Client) Call(req Request, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConn(); err != nil {
		return err
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	payload = append(payload, '\n')
	_ = c.conn.SetDeadline(time.Now().Add(c.timeout))
	if _, err := c.conn.Write(payload); err != nil {
		c.resetConn()
		return err
	}
	line, err := c.r.ReadBytes('\n')
	if err != nil {
		c.resetConn()
		return err
	}

	var resp struct {
		OK    bool            `json:"ok"`
		Error string          `json:"error"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(line, &resp); err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("%w: %s", ErrRemote, resp.Error)
	}
	if out == nil || len(resp.Data) == 0 {
		return nil
	}
	return json.Unmarshal(resp.Data, out)
}

func (c *Client) ensureConn() error {
	if c.conn != nil {
		return nil
	}
	conn, err := net.DialTimeout("tcp", c.addr, c.timeout)
	if err != nil {
		return err
	}
	c.conn = conn
	c.r = bufio.NewReader(conn)
	return nil
}

func (c *Client) resetConn() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = nil
	c.r = nil
}

// Close terminates the persistent connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.r = nil
	return err
}

// Do makes one call on a fresh connection and closes it.
func Do(addr string, req Request, out any) error {
	c := NewClient(addr, DefaultDialTimeout)
	defer c.Close()
	return c.Call(req, out)
}
