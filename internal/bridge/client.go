package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/angeloszaimis/sdn-load-balancer/internal/policy"
)

var ErrUnexpectedStatus = errors.New("unexpected controller response status")

const requestTimeout = 5 * time.Second

// EventHandler receives controller events in delivery order.
type EventHandler interface {
	// Connected is called once the controller is reachable, before any event.
	Connected(ctx context.Context) error
	PacketIn(ctx context.Context, pkt PacketIn) error
}

type Client struct {
	baseURL  *url.URL
	clientID string
	retry    time.Duration
	http     *http.Client
	logger   *slog.Logger
}

// New creates a client for the controller at baseURL. retry is the pause
// between failed attempts to reach it.
func New(baseURL, clientID string, retry time.Duration, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse controller url: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("controller url %q must use http or https", baseURL)
	}

	if clientID == "" {
		return nil, errors.New("client id cannot be empty")
	}

	return &Client{
		baseURL:  u,
		clientID: clientID,
		retry:    retry,
		// No client timeout: event requests are long polls bounded by ctx.
		http:   &http.Client{},
		logger: logger,
	}, nil
}

func (c *Client) endpoint(elem ...string) string {
	return c.baseURL.JoinPath(elem...).String()
}

// UpdatePolicy replaces the policy installed for this client.
func (c *Client) UpdatePolicy(ctx context.Context, pol policy.Policy) error {
	return c.post(ctx, c.endpoint(c.clientID, "update_json"), pol)
}

func (c *Client) PacketOut(ctx context.Context, pkt PacketOut) error {
	return c.post(ctx, c.endpoint("pkt_out"), pkt)
}

func (c *Client) post(ctx context.Context, target string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("POST %s: %w: %d", target, ErrUnexpectedStatus, res.StatusCode)
	}

	return nil
}

// NextEvent blocks until the controller delivers an event or ctx ends.
func (c *Client) NextEvent(ctx context.Context) (Event, error) {
	var ev Event

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(c.clientID, "event"), nil)
	if err != nil {
		return ev, err
	}

	res, err := c.http.Do(req)
	if err != nil {
		return ev, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return ev, fmt.Errorf("GET event: %w: %d", ErrUnexpectedStatus, res.StatusCode)
	}

	if err := json.NewDecoder(res.Body).Decode(&ev); err != nil {
		return ev, fmt.Errorf("decode event: %w", err)
	}

	return ev, nil
}

// Run announces the handler to the controller and then dispatches events one
// at a time until ctx is cancelled. Transport failures are logged and retried.
func (c *Client) Run(ctx context.Context, h EventHandler) error {
	c.logger.Info("Connecting to controller",
		slog.String("url", c.baseURL.String()),
		slog.String("client_id", c.clientID))

	for {
		err := h.Connected(ctx)
		if err == nil {
			break
		}

		c.logger.Warn("Controller not ready", slog.Any("err", err))
		if !c.wait(ctx) {
			return nil
		}
	}

	c.logger.Info("Connected to controller")

	for {
		ev, err := c.NextEvent(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			c.logger.Warn("Failed to poll controller events", slog.Any("err", err))
			if !c.wait(ctx) {
				return nil
			}
			continue
		}

		c.dispatch(ctx, h, ev)
	}
}

func (c *Client) dispatch(ctx context.Context, h EventHandler, ev Event) {
	switch ev.Type {
	case EventPacketIn:
		pkt := PacketIn{SwitchID: ev.SwitchID, PortID: ev.PortID, Payload: ev.Payload}
		if err := h.PacketIn(ctx, pkt); err != nil {
			c.logger.Error("Failed to handle packet-in",
				slog.Uint64("switch_id", ev.SwitchID),
				slog.Int("port_id", ev.PortID),
				slog.Any("err", err))
		}

	case EventSwitchUp, EventSwitchDown:
		c.logger.Info("Switch state changed",
			slog.String("event", string(ev.Type)),
			slog.Uint64("switch_id", ev.SwitchID))

	case EventPortUp, EventPortDown:
		c.logger.Info("Port state changed",
			slog.String("event", string(ev.Type)),
			slog.Uint64("switch_id", ev.SwitchID),
			slog.Int("port_id", ev.PortID))

	default:
		c.logger.Debug("Ignoring controller event", slog.String("event", string(ev.Type)))
	}
}

func (c *Client) wait(ctx context.Context) bool {
	t := time.NewTimer(c.retry)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
