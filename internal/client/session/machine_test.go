package session

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewMachine_InitialState(t *testing.T) {
	m := NewMachine(nil)
	s := m.Snapshot()

	assert.False(t, s.IsInitialized)
	assert.False(t, s.IsAuthenticated)
	assert.False(t, s.IsLoading)
	assert.Nil(t, s.User)
	assert.Empty(t, m.AccessToken())
}

func TestMachine_SnapshotIsCopy(t *testing.T) {
	m := NewMachine(nil)
	m.Apply(FulfilledEvent(OpLogin, testUser("a@x.com"), Tokens{AccessToken: "a", RefreshToken: "r"}))

	snap := m.Snapshot()
	snap.User.Email = "changed@x.com"

	assert.Equal(t, "a@x.com", m.Snapshot().User.Email)
	assert.Equal(t, "a", m.AccessToken())
}

func TestMachine_Subscribe(t *testing.T) {
	m := NewMachine(nil)
	ch, cancel := m.Subscribe()
	defer cancel()

	m.Apply(PendingEvent(OpLogin))

	select {
	case s := <-ch:
		assert.True(t, s.IsLoading)
	case <-time.After(time.Second):
		t.Fatal("no state published")
	}
}

func TestMachine_SubscribeCoalesces(t *testing.T) {
	m := NewMachine(nil)
	ch, cancel := m.Subscribe()
	defer cancel()

	m.Apply(PendingEvent(OpLogin))
	m.Apply(FulfilledEvent(OpLogin, testUser("a@x.com"), Tokens{AccessToken: "a", RefreshToken: "r"}))

	s := <-ch
	assert.True(t, s.IsAuthenticated, "slow reader gets the latest state")
	assert.False(t, s.IsLoading)

	select {
	case <-ch:
		t.Fatal("stale state left in channel")
	default:
	}
}

func TestMachine_SubscribersGetOwnCopy(t *testing.T) {
	m := NewMachine(nil)
	ch1, cancel1 := m.Subscribe()
	defer cancel1()
	ch2, cancel2 := m.Subscribe()
	defer cancel2()

	m.Apply(FulfilledEvent(OpLogin, testUser("a@x.com"), Tokens{AccessToken: "a", RefreshToken: "r"}))

	s1 := <-ch1
	s2 := <-ch2
	s1.User.Email = "changed@x.com"
	assert.Equal(t, "a@x.com", s2.User.Email)
}

func TestMachine_Cancel(t *testing.T) {
	m := NewMachine(nil)
	ch, cancel := m.Subscribe()

	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)

	// публикация после отписки не паникует
	m.Apply(PendingEvent(OpLogout))
}

func TestMachine_Close(t *testing.T) {
	m := NewMachine(nil)
	ch, cancel := m.Subscribe()

	m.Close()
	m.Close()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)

	late, _ := m.Subscribe()
	_, ok = <-late
	assert.False(t, ok)

	s := m.Apply(Event{Kind: KindInitialized})
	assert.True(t, s.IsInitialized)
}

func TestMachine_ConcurrentApply(t *testing.T) {
	m := NewMachine(nil)
	ch, cancel := m.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for s := range ch {
			assert.Equal(t, s.Tokens.AccessToken != "", s.IsAuthenticated)
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				m.Apply(FulfilledEvent(OpLogin, testUser("a@x.com"), Tokens{AccessToken: "a", RefreshToken: "r"}))
			} else {
				m.Apply(FulfilledEvent(OpLogout, nil, Tokens{}))
			}
		}(i)
	}
	wg.Wait()
	cancel()
	<-done

	s := m.Snapshot()
	assert.Equal(t, s.Tokens.AccessToken != "", s.IsAuthenticated)
}

func TestMachine_LogsTransitionKind(t *testing.T) {
	var buf bytes.Buffer
	m := NewMachine(slog.New(slog.NewTextHandler(&buf, nil)))

	m.Apply(FulfilledEvent(OpLogin, testUser("a@x.com"), Tokens{AccessToken: "a", RefreshToken: "r"}))
	assert.Contains(t, buf.String(), "op=login phase=fulfilled")

	buf.Reset()
	m.Apply(Event{Kind: KindSessionExpired})
	line := buf.String()
	assert.Contains(t, line, "kind=sessionExpired")
	assert.NotContains(t, line, "op=")
	assert.NotContains(t, line, "phase=")
}
