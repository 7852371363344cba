package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/vncsmyrnk/servervote/internal/adapters/repository/repotest"
)

func TestStore_Ledger(t *testing.T) {
	repotest.RunLedgerSuite(t, func(t *testing.T) repotest.Ledger {
		return NewStore()
	})
}

func TestKeyLock_ReleasesIdleKeys(t *testing.T) {
	locks := newKeyLock()

	unlockA := locks.Lock("a")
	unlockB := locks.Lock("b")
	assert.Len(t, locks.locks, 2)

	unlockA()
	unlockB()
	assert.Empty(t, locks.locks)
}

func TestKeyLock_SerializesSameKey(t *testing.T) {
	locks := newKeyLock()
	unlock := locks.Lock("pair")

	acquired := make(chan struct{})
	go func() {
		release := locks.Lock("pair")
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired a held key")
	case <-time.After(20 * time.Millisecond):
	}

	unlock()
	<-acquired
}
