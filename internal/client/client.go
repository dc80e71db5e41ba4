// Package client speaks the bridge's one-request-per-connection protocol.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/signalsfoundry/pawnbridge/internal/command"
)

// Protocol literals, duplicated here so the client does not depend on the
// server package.
const (
	requestGetPawns        = "GET_PAWNS"
	requestGetStateUpdates = "GET_STATE_UPDATES"

	tokenAck        = "ACK"
	tokenSubscribed = "SUBSCRIBED"
	tokenEndUpdate  = "END_UPDATE"
)

const defaultTimeout = 5 * time.Second

// ErrRejected wraps any response other than the expected token.
var ErrRejected = errors.New("request rejected")

// Client sends requests to one bridge address.
type Client struct {
	Addr    string
	Timeout time.Duration

	dialer net.Dialer
}

// New returns a client for addr.
func New(addr string) *Client {
	return &Client{Addr: addr, Timeout: defaultTimeout}
}

// Do opens a connection, writes payload, and returns everything the server
// sends back before closing the connection.
func (c *Client) Do(ctx context.Context, payload []byte) ([]byte, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := c.dialer.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.Addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if _, err := conn.Write(payload); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}
	resp, err := io.ReadAll(conn)
	if err != nil {
		return resp, fmt.Errorf("read response: %w", err)
	}
	return resp, nil
}

// Pawn is one GET_PAWNS entry.
type Pawn struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Position struct {
		X int `json:"x"`
		Z int `json:"z"`
	} `json:"position"`
	Health float64 `json:"health"`
}

// Pawns lists the controllable pawns.
func (c *Client) Pawns(ctx context.Context) ([]Pawn, error) {
	resp, err := c.Do(ctx, []byte(requestGetPawns))
	if err != nil {
		return nil, err
	}
	var pawns []Pawn
	if err := json.Unmarshal(resp, &pawns); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrRejected, resp)
	}
	return pawns, nil
}

// Subscribe asks for periodic snapshots of pawnID.
func (c *Client) Subscribe(ctx context.Context, pawnID int) error {
	payload, err := command.EncodeSubscribe(pawnID)
	if err != nil {
		return err
	}
	return c.expect(ctx, payload, tokenSubscribed)
}

// Send queues cmd for the pawn's next tick.
func (c *Client) Send(ctx context.Context, cmd command.Command) error {
	payload, err := command.Encode(cmd)
	if err != nil {
		return err
	}
	return c.expect(ctx, payload, tokenAck)
}

// StateUpdates drains the server's snapshot queue and returns one raw JSON
// object per snapshot, oldest first.
func (c *Client) StateUpdates(ctx context.Context) ([]json.RawMessage, error) {
	resp, err := c.Do(ctx, []byte(requestGetStateUpdates))
	if err != nil {
		return nil, err
	}
	body, ok := bytes.CutSuffix(resp, []byte(tokenEndUpdate))
	if !ok {
		return nil, fmt.Errorf("%w: missing %s in %q", ErrRejected, tokenEndUpdate, resp)
	}
	var out []json.RawMessage
	for _, line := range bytes.Split(body, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		out = append(out, json.RawMessage(line))
	}
	return out, nil
}

func (c *Client) expect(ctx context.Context, payload []byte, token string) error {
	resp, err := c.Do(ctx, payload)
	if err != nil {
		return err
	}
	if got := strings.TrimSpace(string(resp)); got != token {
		return fmt.Errorf("%w: %q", ErrRejected, got)
	}
	return nil
}
