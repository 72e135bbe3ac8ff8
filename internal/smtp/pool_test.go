package smtp

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeServer speaks just enough SMTP to accept messages
type fakeServer struct {
	ln       net.Listener
	mu       sync.Mutex
	messages []string
	conns    int
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &fakeServer{ln: ln}
	go s.serve()
	t.Cleanup(func() { ln.Close() })
	return s
}

func (s *fakeServer) config() Config {
	host, portStr, _ := net.SplitHostPort(s.ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	return Config{Host: host, Port: port}
}

func (s *fakeServer) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns++
		s.mu.Unlock()
		go s.handle(conn)
	}
}

func (s *fakeServer) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)
	reply := func(line string) {
		w.WriteString(line + "\r\n")
		w.Flush()
	}

	reply("220 fake ESMTP")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.ToUpper(strings.TrimSpace(line))
		switch {
		case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
			reply("250-fake")
			reply("250 8BITMIME")
		case strings.HasPrefix(cmd, "DATA"):
			reply("354 go ahead")
			var body strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				body.WriteString(l)
			}
			s.mu.Lock()
			s.messages = append(s.messages, body.String())
			s.mu.Unlock()
			reply("250 queued")
		case strings.HasPrefix(cmd, "QUIT"):
			reply("221 bye")
			return
		default:
			reply("250 ok")
		}
	}
}

func (s *fakeServer) snapshot() (msgs []string, conns int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.messages...), s.conns
}

func TestPool_SendReusesSession(t *testing.T) {
	srv := newFakeServer(t)
	pool := NewPool(srv.config(), 2)
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i := 0; i < 3; i++ {
		msg := []byte("Subject: hello\r\n\r\nbody " + strconv.Itoa(i) + "\r\n")
		if err := pool.Send(ctx, "from@example.com", "to@example.com", msg); err != nil {
			t.Fatalf("Send() #%d error = %v", i, err)
		}
	}

	msgs, conns := srv.snapshot()
	if len(msgs) != 3 {
		t.Fatalf("server received %d messages, want 3", len(msgs))
	}
	if !strings.Contains(msgs[2], "body 2") {
		t.Errorf("unexpected message body: %q", msgs[2])
	}
	if conns != 1 {
		t.Errorf("server saw %d connections, want 1 reused session", conns)
	}
}

func TestPool_SendAfterClose(t *testing.T) {
	pool := NewPool(Config{Host: "127.0.0.1", Port: 1}, 1)
	pool.Close()

	if err := pool.Send(context.Background(), "a@example.com", "b@example.com", []byte("x")); err != ErrPoolClosed {
		t.Errorf("Send() after Close error = %v, want ErrPoolClosed", err)
	}
}

func TestPool_DialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()

	pool := NewPool(Config{Host: "127.0.0.1", Port: addr.Port}, 1)
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pool.Send(ctx, "a@example.com", "b@example.com", []byte("x")); err == nil {
		t.Error("expected dial error")
	}
}
