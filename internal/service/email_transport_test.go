package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPEmailTransport_Send(t *testing.T) {
	var got EmailMessage
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	transport := NewHTTPEmailTransport(srv.URL, "secret", time.Second)
	msg := EmailMessage{From: "a@example.com", To: "b@example.com", Subject: "Hi", HTML: "<p>Hi</p>", Text: "Hi"}

	require.NoError(t, transport.Send(context.Background(), msg))
	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, msg, got)
}

func TestHTTPEmailTransport_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid recipient", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	err := NewHTTPEmailTransport(srv.URL, "k", time.Second).Send(context.Background(), EmailMessage{To: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
	assert.Contains(t, err.Error(), "invalid recipient")
}

func TestHTTPEmailTransport_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := NewHTTPEmailTransport(srv.URL, "k", 5*time.Second).Send(ctx, EmailMessage{To: "x"})
	assert.Error(t, err)
}

func TestBuildMIMEMessage(t *testing.T) {
	from := &mail.Address{Name: "Practice", Address: "noreply@practice.example"}
	to := &mail.Address{Address: "jane@example.com"}
	msg := EmailMessage{Subject: "Séance confirmed", Text: "line one\nline two", HTML: "<p>hi</p>"}

	raw, err := buildMIMEMessage(msg, from, to, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	s := string(raw)

	assert.Contains(t, s, "From: \"Practice\" <noreply@practice.example>\r\n")
	assert.Contains(t, s, "To: <jane@example.com>\r\n")
	assert.Contains(t, s, "Subject: =?utf-8?q?S=C3=A9ance_confirmed?=\r\n")
	assert.Contains(t, s, "Content-Type: multipart/alternative; boundary=")
	assert.Contains(t, s, "@practice.example>\r\n")
	assert.Contains(t, s, "line one\r\nline two")
	assert.Less(t, strings.Index(s, "text/plain"), strings.Index(s, "text/html"), "plain part comes first")
}
