package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/fibernode/backoffice/models"
	"github.com/fibernode/backoffice/repository"
	"github.com/fibernode/backoffice/utils"
)

// Session registry error constants
var (
	ErrConnectInProgress = errors.New("connect already in progress for this account")
	ErrNotConnected      = errors.New("account has no live connection")
)

// SessionRegistry owns at most one live WhatsApp connection per merchant
// account. All lifecycle transitions flow through the per-connection event
// pump; callers never touch a Transport directly.
type SessionRegistry struct {
	dialer         TransportDialer
	sessionRepo    repository.WASessionRepository
	publisher      RealtimePublisher
	reconnectDelay time.Duration

	mu         sync.Mutex
	conns      map[uint]*liveConn
	connecting map[uint]bool
}

// liveConn tracks one active connection and whether its owner asked for it
// to be closed (which suppresses the automatic reconnect).
type liveConn struct {
	transport   Transport
	phoneNumber string
	userClosed  bool
}

// NewSessionRegistry creates a session registry
func NewSessionRegistry(dialer TransportDialer, sessionRepo repository.WASessionRepository, publisher RealtimePublisher, reconnectDelay time.Duration) *SessionRegistry {
	if publisher == nil {
		publisher = NoopPublisher{}
	}
	return &SessionRegistry{
		dialer:         dialer,
		sessionRepo:    sessionRepo,
		publisher:      publisher,
		reconnectDelay: reconnectDelay,
		conns:          make(map[uint]*liveConn),
		connecting:     make(map[uint]bool),
	}
}

// Connect opens a connection for an account. A second Connect while one is
// in flight fails with ErrConnectInProgress; connecting an already-live
// account is a no-op.
func (r *SessionRegistry) Connect(ctx context.Context, accountID uint) error {
	r.mu.Lock()
	if _, ok := r.conns[accountID]; ok {
		r.mu.Unlock()
		return nil
	}
	if r.connecting[accountID] {
		r.mu.Unlock()
		return ErrConnectInProgress
	}
	r.connecting[accountID] = true
	r.mu.Unlock()

	// The guard is released on every exit path, success included: once the
	// connection is in the conns map it no longer needs protection.
	defer func() {
		r.mu.Lock()
		delete(r.connecting, accountID)
		r.mu.Unlock()
	}()

	if err := r.sessionRepo.UpsertStatus(ctx, accountID, models.WASessionStatusConnecting, nil, nil); err != nil {
		log.Printf("[WARegistry] Failed to persist connecting state for account %d: %v", accountID, err)
	}

	transport, err := r.dialer.Dial(ctx, accountID)
	if err != nil {
		if persistErr := r.sessionRepo.UpsertStatus(ctx, accountID, models.WASessionStatusDisconnected, nil, nil); persistErr != nil {
			log.Printf("[WARegistry] Failed to persist disconnected state for account %d: %v", accountID, persistErr)
		}
		return fmt.Errorf("failed to dial account %d: %w", accountID, err)
	}

	conn := &liveConn{transport: transport}
	r.mu.Lock()
	r.conns[accountID] = conn
	r.mu.Unlock()

	go r.pump(accountID, conn)
	return nil
}

// pump consumes the transport's event channel until it closes
func (r *SessionRegistry) pump(accountID uint, conn *liveConn) {
	ctx := context.Background()
	sawDisconnect := false

	for ev := range conn.transport.Events() {
		switch ev.Kind {
		case EventQR:
			r.publisher.Publish(ctx, SessionEvent{
				AccountID: accountID,
				Kind:      string(EventQR),
				QRCode:    ev.QRCode,
			})

		case EventConnected:
			conn.phoneNumber = ev.PhoneNumber
			now := utils.UTCNow()
			phone := ev.PhoneNumber
			if err := r.sessionRepo.UpsertStatus(ctx, accountID, models.WASessionStatusConnected, &phone, &now); err != nil {
				log.Printf("[WARegistry] Failed to persist connected state for account %d: %v", accountID, err)
			}
			r.publisher.Publish(ctx, SessionEvent{
				AccountID:   accountID,
				Kind:        string(EventConnected),
				PhoneNumber: ev.PhoneNumber,
			})
			log.Printf("[WARegistry] Account %d connected as %s", accountID, ev.PhoneNumber)

		case EventDisconnected:
			sawDisconnect = true
			r.handleDisconnect(ctx, accountID, conn, ev.LoggedOut)
		}
	}

	// Channel closed without an explicit disconnected event: treat it as a
	// transient drop.
	if !sawDisconnect {
		r.handleDisconnect(ctx, accountID, conn, false)
	}
}

func (r *SessionRegistry) handleDisconnect(ctx context.Context, accountID uint, conn *liveConn, loggedOut bool) {
	r.mu.Lock()
	if r.conns[accountID] == conn {
		delete(r.conns, accountID)
	}
	userClosed := conn.userClosed
	r.mu.Unlock()

	willReconnect := !loggedOut && !userClosed

	// A transient drop stays in connecting while the reconnect is pending;
	// only a logout or an explicit close lands on disconnected.
	status := models.WASessionStatusDisconnected
	if willReconnect {
		status = models.WASessionStatusConnecting
	}
	if err := r.sessionRepo.UpsertStatus(ctx, accountID, status, nil, nil); err != nil {
		log.Printf("[WARegistry] Failed to persist %s state for account %d: %v", status, accountID, err)
	}
	r.publisher.Publish(ctx, SessionEvent{
		AccountID:     accountID,
		Kind:          string(EventDisconnected),
		WillReconnect: willReconnect,
	})

	if !willReconnect {
		log.Printf("[WARegistry] Account %d disconnected (loggedOut=%v userClosed=%v), not reconnecting", accountID, loggedOut, userClosed)
		return
	}

	log.Printf("[WARegistry] Account %d dropped, reconnecting in %s", accountID, r.reconnectDelay)
	time.AfterFunc(r.reconnectDelay, func() {
		if err := r.Connect(context.Background(), accountID); err != nil && !errors.Is(err, ErrConnectInProgress) {
			log.Printf("[WARegistry] Reconnect failed for account %d: %v", accountID, err)
		}
	})
}

// Disconnect gracefully logs out and closes the account's connection. The
// persisted state goes to disconnected even when no live connection exists,
// so a stale connected row cannot survive an explicit disconnect.
func (r *SessionRegistry) Disconnect(ctx context.Context, accountID uint) error {
	r.mu.Lock()
	conn := r.conns[accountID]
	if conn != nil {
		conn.userClosed = true
	}
	r.mu.Unlock()

	if conn != nil {
		if err := conn.transport.Logout(ctx); err != nil {
			log.Printf("[WARegistry] Logout failed for account %d: %v", accountID, err)
			if closeErr := conn.transport.Close(); closeErr != nil {
				log.Printf("[WARegistry] Close failed for account %d: %v", accountID, closeErr)
			}
		}
	}

	if err := r.sessionRepo.UpsertStatus(ctx, accountID, models.WASessionStatusDisconnected, nil, nil); err != nil {
		return fmt.Errorf("failed to persist disconnected state: %w", err)
	}
	return nil
}

// IsRegistered reports whether the account has a live connection
func (r *SessionRegistry) IsRegistered(accountID uint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.conns[accountID]
	return ok
}

// Send delivers one text message over the account's live connection. The
// return value is a soft success flag: a missing connection or a transport
// error both yield false, never a panic into the caller.
func (r *SessionRegistry) Send(ctx context.Context, accountID uint, phone, message string) bool {
	r.mu.Lock()
	conn := r.conns[accountID]
	r.mu.Unlock()

	if conn == nil {
		return false
	}
	if err := conn.transport.SendText(ctx, NormalizePhone(phone), message); err != nil {
		log.Printf("[WARegistry] Send failed for account %d: %v", accountID, err)
		return false
	}
	return true
}

// CheckNumber asks the live connection whether a phone number exists on
// WhatsApp
func (r *SessionRegistry) CheckNumber(ctx context.Context, accountID uint, phone string) (bool, error) {
	r.mu.Lock()
	conn := r.conns[accountID]
	r.mu.Unlock()

	if conn == nil {
		return false, ErrNotConnected
	}
	return conn.transport.CheckNumber(ctx, NormalizePhone(phone))
}

// RestoreAll reconnects every account whose persisted state is connected and
// whose credentials survived the restart. Accounts are restored sequentially;
// one failure never blocks the rest.
func (r *SessionRegistry) RestoreAll(ctx context.Context) error {
	sessions, err := r.sessionRepo.ListConnected(ctx)
	if err != nil {
		return fmt.Errorf("failed to list connected sessions: %w", err)
	}

	for _, session := range sessions {
		if !r.dialer.CredentialsExist(session.UserID) {
			log.Printf("[WARegistry] No stored credentials for account %d, marking disconnected", session.UserID)
			if err := r.sessionRepo.UpsertStatus(ctx, session.UserID, models.WASessionStatusDisconnected, nil, nil); err != nil {
				log.Printf("[WARegistry] Failed to persist disconnected state for account %d: %v", session.UserID, err)
			}
			continue
		}
		if err := r.Connect(ctx, session.UserID); err != nil {
			log.Printf("[WARegistry] Failed to restore account %d: %v", session.UserID, err)
		}
	}
	return nil
}
