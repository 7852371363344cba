package integration

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"database/sql"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	handler "github.com/vncsmyrnk/servervote/internal/adapters/handler/http"
	"github.com/vncsmyrnk/servervote/internal/adapters/notifier/votifier"
	pgrepo "github.com/vncsmyrnk/servervote/internal/adapters/repository/postgres"
	"github.com/vncsmyrnk/servervote/internal/core/ports"
	"github.com/vncsmyrnk/servervote/internal/core/services"
)

type TestApp struct {
	DB         *sql.DB
	Server     *httptest.Server
	Client     *http.Client
	container  testcontainers.Container
	dispatcher *services.Dispatcher
	done       chan error
}

func setupPostgresContainer(ctx context.Context) (testcontainers.Container, string, error) {
	dbName := "testdb"
	user := "user"
	password := "password"

	pgContainer, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(user),
		postgres.WithPassword(password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, "", err
	}

	return pgContainer, connStr, nil
}

func applyMigrations(db *sql.DB) error {
	dirPath := "../../internal/adapters/repository/postgres/migrations"

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		if !strings.HasSuffix(entry.Name(), "up.sql") {
			continue
		}

		fullPath := filepath.Join(dirPath, entry.Name())
		content, err := os.ReadFile(fullPath)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", entry.Name(), err)
		}

		_, err = db.Exec(string(content))
		if err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", entry.Name(), err)
		}
	}

	return nil
}

// setupTestApp runs the whole service against a fresh postgres container.
// Requests are attributed to the address in X-Forwarded-For.
func setupTestApp(t *testing.T) *TestApp {
	t.Helper()
	ctx := context.Background()

	container, connStr, err := setupPostgresContainer(ctx)
	require.NoError(t, err)

	db, err := pgrepo.Open(ctx, connStr)
	require.NoError(t, err)
	require.NoError(t, applyMigrations(db))

	log, _ := test.NewNullLogger()
	clock := ports.SystemClock{}
	targets := pgrepo.NewTargetRepository(db)
	votes := pgrepo.NewVoteRepository(db)

	notifier := votifier.NewNotifier("servervote-test")
	dispatcher := services.NewDispatcher(notifier, services.DispatcherConfig{Timeout: 2 * time.Second}, log)
	done := make(chan error, 1)
	go func() { done <- dispatcher.Run(context.Background()) }()

	checker := services.NewEligibilityService(targets, votes, 0)
	voteService := services.NewVoteService(checker, votes, dispatcher, services.VoteServiceConfig{}, log)
	targetService := services.NewTargetService(targets, notifier, clock)

	router := handler.NewHandler(
		handler.NewTargetHandler(targetService, log),
		handler.NewVoteHandler(voteService, checker, clock, log),
		handler.RouterConfig{TrustProxy: true},
	)

	server := httptest.NewServer(router)

	return &TestApp{
		DB:         db,
		Server:     server,
		Client:     server.Client(),
		container:  container,
		dispatcher: dispatcher,
		done:       done,
	}
}

func (app *TestApp) Teardown(t *testing.T) {
	t.Helper()

	app.Server.Close()
	app.dispatcher.Close()
	<-app.done
	app.DB.Close()
	if err := app.container.Terminate(context.Background()); err != nil {
		t.Logf("failed to terminate container: %v", err)
	}
}

// votifierListener is a game server side Votifier endpoint that decrypts
// and forwards every vote it receives.
type votifierListener struct {
	Host      string
	Port      int
	PublicKey string
	Votes     chan string
}

func startVotifierListener(t *testing.T) *votifierListener {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	l := &votifierListener{
		Host:      "127.0.0.1",
		Port:      ln.Addr().(*net.TCPAddr).Port,
		PublicKey: base64.StdEncoding.EncodeToString(der),
		Votes:     make(chan string, 16),
	}

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				if _, err := conn.Write([]byte("VOTIFIER 1.9\n")); err != nil {
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
				l.Votes <- string(plain)
			}()
		}
	}()

	return l
}
