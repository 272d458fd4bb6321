package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// BridgeConfig carries the connection settings of the WhatsApp bridge
// sidecar, the process that owns the actual wire protocol and exposes it
// over HTTP + SSE.
type BridgeConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// BridgeDialer opens connections through the bridge. One bridge serves many
// accounts; each Dial claims the account's session on the bridge and
// subscribes to its event stream.
type BridgeDialer struct {
	cfg    BridgeConfig
	client *http.Client
}

// NewBridgeDialer creates a dialer against a WhatsApp bridge
func NewBridgeDialer(cfg BridgeConfig) *BridgeDialer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &BridgeDialer{
		cfg: cfg,
		// No client-level timeout: the same client carries the long-lived
		// event stream. Per-request deadlines come from the context.
		client: &http.Client{},
	}
}

func (d *BridgeDialer) url(format string, args ...any) string {
	return strings.TrimSuffix(d.cfg.BaseURL, "/") + fmt.Sprintf(format, args...)
}

func (d *BridgeDialer) newRequest(ctx context.Context, method, url string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if d.cfg.APIKey != "" {
		req.Header.Set("x-api-key", d.cfg.APIKey)
	}
	return req, nil
}

// Dial claims the account's session on the bridge and attaches to its event
// stream. The stream outlives the dial context; Close tears it down.
func (d *BridgeDialer) Dial(ctx context.Context, accountID uint) (Transport, error) {
	connectCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	req, err := d.newRequest(connectCtx, http.MethodPost, d.url("/sessions/%d/connect", accountID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create connect request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect session on bridge: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bridge refused connect for account %d: %s", accountID, resp.Status)
	}

	streamCtx, stop := context.WithCancel(context.Background())
	streamReq, err := d.newRequest(streamCtx, http.MethodGet, d.url("/sessions/%d/events", accountID), nil)
	if err != nil {
		stop()
		return nil, fmt.Errorf("failed to create event stream request: %w", err)
	}
	streamReq.Header.Set("Accept", "text/event-stream")

	stream, err := d.client.Do(streamReq)
	if err != nil {
		stop()
		return nil, fmt.Errorf("failed to open event stream: %w", err)
	}
	if stream.StatusCode != http.StatusOK {
		stream.Body.Close()
		stop()
		return nil, fmt.Errorf("bridge refused event stream for account %d: %s", accountID, stream.Status)
	}

	t := &bridgeTransport{
		dialer:    d,
		accountID: accountID,
		events:    make(chan TransportEvent, 16),
		stop:      stop,
	}
	go t.readEvents(stream.Body)
	return t, nil
}

// CredentialsExist asks the bridge whether stored credentials allow a silent
// resume. Any error counts as no credentials; the worst case is one extra QR.
func (d *BridgeDialer) CredentialsExist(accountID uint) bool {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Timeout)
	defer cancel()

	req, err := d.newRequest(ctx, http.MethodGet, d.url("/sessions/%d/credentials", accountID), nil)
	if err != nil {
		return false
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// bridgeTransport is one account's live connection through the bridge
type bridgeTransport struct {
	dialer    *BridgeDialer
	accountID uint
	events    chan TransportEvent
	stop      context.CancelFunc
}

// bridgeEvent is the wire shape of one SSE data payload
type bridgeEvent struct {
	Kind        string `json:"kind"`
	QRCode      string `json:"qr_code,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	LoggedOut   bool   `json:"logged_out,omitempty"`
}

// readEvents decodes the SSE stream into transport events until the bridge
// closes it, then closes the channel so the registry sees the drop.
func (t *bridgeTransport) readEvents(body io.ReadCloser) {
	defer body.Close()
	defer close(t.events)

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}

		var ev bridgeEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			continue
		}
		t.events <- TransportEvent{
			Kind:        TransportEventKind(ev.Kind),
			QRCode:      ev.QRCode,
			PhoneNumber: ev.PhoneNumber,
			LoggedOut:   ev.LoggedOut,
		}
	}
}

func (t *bridgeTransport) Events() <-chan TransportEvent {
	return t.events
}

// bridgeSendRequest is the message payload posted to the bridge
type bridgeSendRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

func (t *bridgeTransport) SendText(ctx context.Context, phone, message string) error {
	body, err := json.Marshal(bridgeSendRequest{Phone: phone, Message: message})
	if err != nil {
		return fmt.Errorf("failed to marshal send request: %w", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, t.dialer.cfg.Timeout)
	defer cancel()

	req, err := t.dialer.newRequest(sendCtx, http.MethodPost, t.dialer.url("/sessions/%d/messages", t.accountID), body)
	if err != nil {
		return fmt.Errorf("failed to create send request: %w", err)
	}
	resp, err := t.dialer.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message through bridge: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bridge rejected message for %s: %s", phone, resp.Status)
	}
	return nil
}

func (t *bridgeTransport) CheckNumber(ctx context.Context, phone string) (bool, error) {
	checkCtx, cancel := context.WithTimeout(ctx, t.dialer.cfg.Timeout)
	defer cancel()

	req, err := t.dialer.newRequest(checkCtx, http.MethodGet, t.dialer.url("/sessions/%d/numbers/%s", t.accountID, phone), nil)
	if err != nil {
		return false, fmt.Errorf("failed to create number check request: %w", err)
	}
	resp, err := t.dialer.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to check number through bridge: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("bridge rejected number check for %s: %s", phone, resp.Status)
	}

	var result struct {
		Registered bool `json:"registered"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("failed to decode number check response: %w", err)
	}
	return result.Registered, nil
}

// Logout tells the bridge to unlink the device and drop stored credentials,
// then tears down the event stream.
func (t *bridgeTransport) Logout(ctx context.Context) error {
	logoutCtx, cancel := context.WithTimeout(ctx, t.dialer.cfg.Timeout)
	defer cancel()

	req, err := t.dialer.newRequest(logoutCtx, http.MethodPost, t.dialer.url("/sessions/%d/logout", t.accountID), nil)
	if err != nil {
		return fmt.Errorf("failed to create logout request: %w", err)
	}
	resp, err := t.dialer.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to log out through bridge: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bridge rejected logout for account %d: %s", t.accountID, resp.Status)
	}

	t.stop()
	return nil
}

// Close tears down the event stream without touching stored credentials
func (t *bridgeTransport) Close() error {
	t.stop()
	return nil
}
