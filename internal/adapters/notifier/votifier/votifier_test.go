package votifier

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vncsmyrnk/servervote/internal/core/domain"
)

func generateKey(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	return key, base64.StdEncoding.EncodeToString(der)
}

// listen starts a fake Votifier listener that greets with greeting and
// forwards the decrypted block it receives.
func listen(t *testing.T, key *rsa.PrivateKey, greeting string) (domain.NotificationEndpoint, <-chan string) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	received := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		if greeting == "" {
			time.Sleep(time.Second)
			return
		}
		if _, err := conn.Write([]byte(greeting)); err != nil {
			return
		}

		block := make([]byte, key.Size())
		if _, err := io.ReadFull(conn, block); err != nil {
			return
		}
		plain, err := rsa.DecryptPKCS1v15(nil, key, block)
		if err != nil {
			return
		}
		received <- string(plain)
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return domain.NotificationEndpoint{Host: "127.0.0.1", Port: addr.Port}, received
}

func TestNotifier_Notify(t *testing.T) {
	key, encoded := generateKey(t)
	endpoint, received := listen(t, key, "VOTIFIER 1.9\n")
	endpoint.PublicKey = encoded

	notifier := NewNotifier("servervote")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := notifier.Notify(ctx, domain.Notification{
		TargetID:      "server_1",
		Endpoint:      endpoint,
		DisplayName:   "Alice",
		VoterIdentity: "1.2.3.4",
		VotedAt:       time.Unix(1748772000, 0),
	})
	require.NoError(t, err)

	select {
	case payload := <-received:
		assert.Equal(t, "VOTE\nservervote\nAlice\n1.2.3.4\n1748772000\n", payload)
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not receive the vote")
	}
}

func TestNotifier_NotifyDefaultsAnonymousUsername(t *testing.T) {
	key, encoded := generateKey(t)
	endpoint, received := listen(t, key, "VOTIFIER 1.9\n")
	endpoint.PublicKey = encoded

	err := NewNotifier("").Notify(context.Background(), domain.Notification{
		Endpoint:      endpoint,
		DisplayName:   " \n",
		VoterIdentity: "2001:db8::1",
		VotedAt:       time.Unix(10, 0),
	})
	require.NoError(t, err)

	select {
	case payload := <-received:
		assert.Equal(t, "VOTE\nservervote\nAnonymous\n2001:db8::1\n10\n", payload)
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not receive the vote")
	}
}

func TestNotifier_NotifyRejectsBadGreeting(t *testing.T) {
	key, encoded := generateKey(t)
	endpoint, _ := listen(t, key, "HTTP/1.1 400 Bad Request\n")
	endpoint.PublicKey = encoded

	err := NewNotifier("servervote").Notify(context.Background(), domain.Notification{Endpoint: endpoint})
	assert.ErrorIs(t, err, ErrBadGreeting)
}

func TestNotifier_NotifyTimesOut(t *testing.T) {
	key, encoded := generateKey(t)
	endpoint, _ := listen(t, key, "")
	endpoint.PublicKey = encoded

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := NewNotifier("servervote").Notify(ctx, domain.Notification{Endpoint: endpoint})
	require.Error(t, err)

	var netErr net.Error
	require.True(t, errors.As(err, &netErr))
	assert.True(t, netErr.Timeout())
}

func TestNotifier_NotifyUnreachable(t *testing.T) {
	_, encoded := generateKey(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	err = NewNotifier("servervote").Notify(context.Background(), domain.Notification{
		Endpoint: domain.NotificationEndpoint{Host: "127.0.0.1", Port: port, PublicKey: encoded},
	})
	assert.Error(t, err)
}

func TestNotifier_ValidateEndpoint(t *testing.T) {
	_, encoded := generateKey(t)

	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	ecDER, err := x509.MarshalPKIXPublicKey(&ecKey.PublicKey)
	require.NoError(t, err)

	der, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	pemEncoded := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))

	tests := []struct {
		name     string
		endpoint domain.NotificationEndpoint
		wantErr  bool
	}{
		{"valid", domain.NotificationEndpoint{Host: "mc.example.org", Port: 8192, PublicKey: encoded}, false},
		{"pem armor", domain.NotificationEndpoint{Host: "mc.example.org", Port: 8192, PublicKey: pemEncoded}, false},
		{"missing host", domain.NotificationEndpoint{Port: 8192, PublicKey: encoded}, true},
		{"port zero", domain.NotificationEndpoint{Host: "mc.example.org", PublicKey: encoded}, true},
		{"port too high", domain.NotificationEndpoint{Host: "mc.example.org", Port: 70000, PublicKey: encoded}, true},
		{"missing key", domain.NotificationEndpoint{Host: "mc.example.org", Port: 8192}, true},
		{"not base64", domain.NotificationEndpoint{Host: "mc.example.org", Port: 8192, PublicKey: "not*base64"}, true},
		{"not a key", domain.NotificationEndpoint{Host: "mc.example.org", Port: 8192, PublicKey: "a2V5"}, true},
		{"not rsa", domain.NotificationEndpoint{Host: "mc.example.org", Port: 8192, PublicKey: base64.StdEncoding.EncodeToString(ecDER)}, true},
	}

	notifier := NewNotifier("servervote")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := notifier.ValidateEndpoint(tt.endpoint)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidEndpoint)
				return
			}
			assert.NoError(t, err)
		})
	}
}
