package visa_test

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hegelab/hegel/pkg/hegel/visa"
)

// echoServer accepts one connection and answers every line ending in
// '?' with a canned reply, echoing the command back inside it.
func echoServer(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				rd := bufio.NewReader(c)
				for {
					line, err := rd.ReadString('\n')
					if err != nil {
						return
					}
					line = strings.TrimRight(line, "\r\n")
					if strings.HasSuffix(line, "?") {
						if _, err := c.Write([]byte("reply:" + line + "\n")); err != nil {
							return
						}
					}
				}
			}(conn)
		}
	}()

	return ln.Addr().String()
}

func TestSessionTCPQuery(t *testing.T) {
	addr := echoServer(t)
	host, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)

	s, err := visa.Open(context.Background(),
		"TCPIP0::"+host+"::"+port+"::SOCKET",
		visa.WithLockDir(t.TempDir()))
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Query(context.Background(), "*IDN?")
	require.NoError(t, err)
	assert.Equal(t, "reply:*IDN?", got)
}

func TestSessionTCPReadTimeout(t *testing.T) {
	addr := echoServer(t)
	host, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)

	s, err := visa.Open(context.Background(),
		"TCPIP0::"+host+"::"+port+"::SOCKET",
		visa.WithLockDir(t.TempDir()),
		visa.WithTimeout(100*time.Millisecond))
	require.NoError(t, err)
	defer s.Close()

	// A non-query never gets a reply; the read must time out rather
	// than hang.
	start := time.Now()
	_, err = s.Query(context.Background(), "LEV 1")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSessionSim(t *testing.T) {
	s, err := visa.Open(context.Background(), "SIM::source")
	require.NoError(t, err)
	defer s.Close()

	idn, err := s.Query(context.Background(), "*IDN?")
	require.NoError(t, err)
	assert.Contains(t, idn, "SIM-source")

	require.NoError(t, s.Write(context.Background(), "LEV 2.5"))
	lev, err := s.Query(context.Background(), "LEV?")
	require.NoError(t, err)
	assert.Equal(t, "2.5", lev)
}

func TestSessionSimErrorQueue(t *testing.T) {
	s, err := visa.Open(context.Background(), "SIM::meter")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Write(context.Background(), "BOGUS:CMD 1"))
	e, err := s.Query(context.Background(), "SYST:ERR?")
	require.NoError(t, err)
	assert.Contains(t, e, "-113")

	e, err = s.Query(context.Background(), "SYST:ERR?")
	require.NoError(t, err)
	assert.Contains(t, e, "No error")
}

func TestSessionUnknownSimModel(t *testing.T) {
	_, err := visa.Open(context.Background(), "SIM::flux-capacitor")
	require.Error(t, err)
}

func TestSessionConcurrentQueries(t *testing.T) {
	s, err := visa.Open(context.Background(), "SIM::meter")
	require.NoError(t, err)
	defer s.Close()

	// Hammer the session from many goroutines; the session mutex must
	// keep each write/read pair intact, so every reply parses as a
	// float and nothing errors out.
	var wg sync.WaitGroup
	errs := make(chan error, 200)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if _, err := s.Query(context.Background(), "READ?"); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent query failed: %v", err)
	}
}

func TestResourceLockExclusion(t *testing.T) {
	dir := t.TempDir()
	r, err := visa.ParseResource("TCPIP0::lockhost::INSTR")
	require.NoError(t, err)

	l1, err := visa.NewResourceLock(dir, r, time.Millisecond)
	require.NoError(t, err)
	l2, err := visa.NewResourceLock(dir, r, time.Millisecond)
	require.NoError(t, err)

	require.NoError(t, l1.TryLock())
	assert.True(t, l1.Held())

	err = l2.TryLock()
	require.ErrorIs(t, err, visa.ErrLocked)

	require.NoError(t, l1.Unlock())
	require.NoError(t, l2.TryLock())
	require.NoError(t, l2.Unlock())
}

func TestResourceLockWaits(t *testing.T) {
	dir := t.TempDir()
	r, err := visa.ParseResource("TCPIP0::waithost::INSTR")
	require.NoError(t, err)

	l1, err := visa.NewResourceLock(dir, r, time.Millisecond)
	require.NoError(t, err)
	l2, err := visa.NewResourceLock(dir, r, time.Millisecond)
	require.NoError(t, err)

	require.NoError(t, l1.TryLock())

	acquired := make(chan error, 1)
	go func() {
		acquired <- l2.Lock(context.Background())
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, l1.Unlock())

	select {
	case err := <-acquired:
		require.NoError(t, err)
		require.NoError(t, l2.Unlock())
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never acquired the lock after release")
	}
}

func TestResourceLockCancel(t *testing.T) {
	dir := t.TempDir()
	r, err := visa.ParseResource("TCPIP0::cancelhost::INSTR")
	require.NoError(t, err)

	l1, err := visa.NewResourceLock(dir, r, time.Millisecond)
	require.NoError(t, err)
	l2, err := visa.NewResourceLock(dir, r, time.Millisecond)
	require.NoError(t, err)

	require.NoError(t, l1.TryLock())
	defer l1.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = l2.Lock(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSessionWithLock(t *testing.T) {
	addr := echoServer(t)
	host, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	dir := t.TempDir()

	s, err := visa.Open(context.Background(),
		"TCPIP0::"+host+"::"+port+"::SOCKET",
		visa.WithLockDir(dir))
	require.NoError(t, err)
	defer s.Close()

	called := false
	err = s.WithLock(context.Background(), func(ctx context.Context) error {
		called = true
		_, err := s.Query(ctx, "VAL?")
		return err
	})
	require.NoError(t, err)
	assert.True(t, called)
}
