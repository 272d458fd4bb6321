package services

import (
	"context"
	"strings"
)

// TransportEventKind enumerates the lifecycle events a transport emits
type TransportEventKind string

const (
	EventQR           TransportEventKind = "qr"
	EventConnected    TransportEventKind = "connected"
	EventDisconnected TransportEventKind = "disconnected"
)

// TransportEvent is one lifecycle notification from a live connection.
// For EventQR, QRCode carries the pairing payload. For EventDisconnected,
// LoggedOut distinguishes a deliberate unlink (credentials invalidated,
// no reconnect) from a transient drop.
type TransportEvent struct {
	Kind        TransportEventKind
	QRCode      string
	PhoneNumber string
	LoggedOut   bool
}

// Transport is one live WhatsApp connection. Events() is closed when the
// connection is torn down; consumers must drain it.
type Transport interface {
	Events() <-chan TransportEvent
	SendText(ctx context.Context, phone, message string) error
	CheckNumber(ctx context.Context, phone string) (bool, error)
	// Logout invalidates stored credentials before closing.
	Logout(ctx context.Context) error
	Close() error
}

// TransportDialer opens connections for accounts. CredentialsExist reports
// whether a stored credential directory allows a silent resume (no QR).
type TransportDialer interface {
	Dial(ctx context.Context, accountID uint) (Transport, error)
	CredentialsExist(accountID uint) bool
}

// NormalizePhone canonicalizes a phone number to international digits-only
// form: strip formatting, replace a leading 0 with the Indonesian country
// code, drop any leading plus.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if strings.HasPrefix(digits, "0") {
		digits = "62" + digits[1:]
	}
	return digits
}
