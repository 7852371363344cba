// Package votifier sends vote notifications to game servers running a
// Votifier v1 listener.
//
// The protocol is a single exchange: the listener greets with a
// "VOTIFIER <version>" line, the sender answers with one RSA block holding
// the vote record encrypted with the listener's public key.
package votifier

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"unicode"

	"github.com/vncsmyrnk/servervote/internal/core/domain"
)

const (
	greetingPrefix   = "VOTIFIER"
	defaultService   = "servervote"
	anonymousVoter   = "Anonymous"
	maxGreetingBytes = 64
)

var ErrBadGreeting = errors.New("unexpected votifier greeting")

type Notifier struct {
	serviceName string
	dialer      net.Dialer
}

func NewNotifier(serviceName string) *Notifier {
	if serviceName == "" {
		serviceName = defaultService
	}
	return &Notifier{serviceName: serviceName}
}

// Notify delivers one vote. The deadline of ctx bounds the whole exchange.
func (n *Notifier) Notify(ctx context.Context, notification domain.Notification) error {
	key, err := ParsePublicKey(notification.Endpoint.PublicKey)
	if err != nil {
		return err
	}

	block, err := rsa.EncryptPKCS1v15(rand.Reader, key, n.payload(notification))
	if err != nil {
		return fmt.Errorf("failed to encrypt vote: %w", err)
	}

	addr := net.JoinHostPort(notification.Endpoint.Host, strconv.Itoa(notification.Endpoint.Port))
	conn, err := n.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return fmt.Errorf("failed to set deadline: %w", err)
		}
	}

	if err := readGreeting(conn); err != nil {
		return err
	}

	if _, err := conn.Write(block); err != nil {
		return fmt.Errorf("failed to send vote: %w", err)
	}
	return nil
}

// ValidateEndpoint checks that an endpoint can be used by Notify.
func (n *Notifier) ValidateEndpoint(endpoint domain.NotificationEndpoint) error {
	if strings.TrimSpace(endpoint.Host) == "" {
		return fmt.Errorf("%w: host is required", domain.ErrInvalidEndpoint)
	}
	if endpoint.Port < 1 || endpoint.Port > 65535 {
		return fmt.Errorf("%w: port out of range", domain.ErrInvalidEndpoint)
	}
	_, err := ParsePublicKey(endpoint.PublicKey)
	return err
}

func (n *Notifier) payload(notification domain.Notification) []byte {
	username := sanitize(notification.DisplayName)
	if username == "" {
		username = anonymousVoter
	}

	var b strings.Builder
	b.WriteString("VOTE\n")
	b.WriteString(n.serviceName)
	b.WriteByte('\n')
	b.WriteString(username)
	b.WriteByte('\n')
	b.WriteString(sanitize(notification.VoterIdentity))
	b.WriteByte('\n')
	b.WriteString(strconv.FormatInt(notification.VotedAt.Unix(), 10))
	b.WriteByte('\n')
	return []byte(b.String())
}

func readGreeting(conn net.Conn) error {
	reader := bufio.NewReaderSize(conn, maxGreetingBytes)
	line, err := reader.ReadSlice('\n')
	if err != nil {
		if errors.Is(err, bufio.ErrBufferFull) {
			return ErrBadGreeting
		}
		return fmt.Errorf("failed to read greeting: %w", err)
	}
	if !strings.HasPrefix(string(line), greetingPrefix) {
		return fmt.Errorf("%w: %q", ErrBadGreeting, strings.TrimSpace(string(line)))
	}
	return nil
}

// ParsePublicKey decodes a base64 X.509 RSA public key. PEM armor and
// whitespace are tolerated.
func ParsePublicKey(encoded string) (*rsa.PublicKey, error) {
	encoded = strings.ReplaceAll(encoded, "-----BEGIN PUBLIC KEY-----", "")
	encoded = strings.ReplaceAll(encoded, "-----END PUBLIC KEY-----", "")
	encoded = strings.Join(strings.Fields(encoded), "")
	if encoded == "" {
		return nil, fmt.Errorf("%w: public key is required", domain.ErrInvalidEndpoint)
	}

	der, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: public key is not base64", domain.ErrInvalidEndpoint)
	}

	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidEndpoint, err)
	}

	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: public key is not RSA", domain.ErrInvalidEndpoint)
	}
	return key, nil
}

func sanitize(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s))
}
