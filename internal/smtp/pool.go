package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"sync"
	"time"
)

// ErrPoolClosed is returned after Close
var ErrPoolClosed = errors.New("smtp connection pool is closed")

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
}

// implicitTLS reports whether the port expects TLS from the first byte
func (c Config) implicitTLS() bool { return c.Port == 465 }

func (c Config) addr() string { return net.JoinHostPort(c.Host, fmt.Sprint(c.Port)) }

// Pool keeps up to size idle SMTP sessions for reuse. Connections are dialed lazily.
type Pool struct {
	idle   chan *smtp.Client
	config Config
	mu     sync.Mutex
	closed bool
}

// NewPool creates a new SMTP connection pool
func NewPool(config Config, size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		idle:   make(chan *smtp.Client, size),
		config: config,
	}
}

func (p *Pool) dial(ctx context.Context) (*smtp.Client, error) {
	tlsConfig := &tls.Config{ServerName: p.config.Host, MinVersion: tls.VersionTLS12}

	var conn net.Conn
	var err error
	if p.config.implicitTLS() {
		d := &tls.Dialer{Config: tlsConfig}
		conn, err = d.DialContext(ctx, "tcp", p.config.addr())
	} else {
		var d net.Dialer
		conn, err = d.DialContext(ctx, "tcp", p.config.addr())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, p.config.Host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create SMTP client: %w", err)
	}

	if !p.config.implicitTLS() {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				client.Close()
				return nil, fmt.Errorf("STARTTLS failed: %w", err)
			}
		}
	}

	if p.config.Username != "" && p.config.Password != "" {
		auth := smtp.PlainAuth("", p.config.Username, p.config.Password, p.config.Host)
		if err := client.Auth(auth); err != nil {
			client.Quit()
			return nil, fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	// pooled sessions must not inherit this send's deadline
	_ = conn.SetDeadline(time.Time{})
	return client, nil
}

// get returns a live idle session or dials a new one
func (p *Pool) get(ctx context.Context) (*smtp.Client, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrPoolClosed
	}

	for {
		select {
		case client := <-p.idle:
			if client == nil {
				return nil, ErrPoolClosed
			}
			if err := client.Noop(); err != nil {
				client.Close()
				continue
			}
			return client, nil
		default:
			return p.dial(ctx)
		}
	}
}

// put returns a session to the pool, closing it when the pool is full or closed
func (p *Pool) put(client *smtp.Client) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		client.Quit()
		return
	}
	select {
	case p.idle <- client:
	default:
		client.Quit()
	}
}

// Send delivers one message to one recipient over a pooled session
func (p *Pool) Send(ctx context.Context, from, to string, message []byte) error {
	client, err := p.get(ctx)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- p.transmit(client, from, to, message) }()

	select {
	case err = <-done:
	case <-ctx.Done():
		client.Close()
		<-done
		return ctx.Err()
	}
	if err != nil {
		// the session state is unknown after a failure
		client.Close()
		return err
	}

	if err := client.Reset(); err != nil {
		client.Close()
		return nil
	}
	p.put(client)
	return nil
}

func (p *Pool) transmit(client *smtp.Client, from, to string, message []byte) error {
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to get data writer: %w", err)
	}
	if _, err := w.Write(message); err != nil {
		w.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}
	return w.Close()
}

// Close closes all idle connections
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.idle)
	p.mu.Unlock()

	for client := range p.idle {
		client.Quit()
	}
}
