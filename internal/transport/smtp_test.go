package transport

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/go-mail/mail/v2"
)

func plainConfig(host string, port int) Config {
	return Config{
		Mode:        SSLModeNone,
		Host:        host,
		Port:        port,
		FromAddress: "noreply@example.com",
		FromName:    "Notifications",
		Timeout:     2 * time.Second,
	}
}

func testMessage() *Message {
	return &Message{
		Code:    "7f6c1d0e-3c9a-4a7e-9d59-0d3f3c2f1b11",
		To:      "alice@example.com",
		Subject: "Welcome",
		Body:    "<p>Hello Alice</p>",
	}
}

func TestSMTP_Send(t *testing.T) {
	b := &testBackend{}
	host, port := startServer(t, b, false)

	tr := NewSMTP(plainConfig(host, port))
	if err := tr.Send(context.Background(), testMessage()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	got := b.received()
	if len(got) != 1 {
		t.Fatalf("expected 1 message, got %d", len(got))
	}
	if got[0].From != "noreply@example.com" {
		t.Errorf("expected envelope sender noreply@example.com, got %s", got[0].From)
	}
	if len(got[0].To) != 1 || got[0].To[0] != "alice@example.com" {
		t.Errorf("expected recipient alice@example.com, got %v", got[0].To)
	}
	data := string(got[0].Data)
	for _, want := range []string{
		"Subject: Welcome",
		"X-Message-Code: 7f6c1d0e-3c9a-4a7e-9d59-0d3f3c2f1b11",
		"text/html",
		"Hello Alice",
	} {
		if !strings.Contains(data, want) {
			t.Errorf("expected message data to contain %q", want)
		}
	}
}

func TestSMTP_Send_WithCredentials(t *testing.T) {
	b := &testBackend{user: "sender", pass: "secret"}
	host, port := startServer(t, b, false)

	cfg := plainConfig(host, port)
	cfg.UserName = "sender"
	cfg.Password = "secret"

	if err := NewSMTP(cfg).Send(context.Background(), testMessage()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(b.received()) != 1 {
		t.Fatalf("expected 1 message, got %d", len(b.received()))
	}
}

func TestSMTP_Send_AuthFailure(t *testing.T) {
	b := &testBackend{user: "sender", pass: "secret"}
	host, port := startServer(t, b, false)

	cfg := plainConfig(host, port)
	cfg.UserName = "sender"
	cfg.Password = "wrong"

	err := NewSMTP(cfg).Send(context.Background(), testMessage())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !IsAuthFailure(err) {
		t.Errorf("expected auth failure, got %v", err)
	}
	if len(b.received()) != 0 {
		t.Errorf("expected no accepted messages, got %d", len(b.received()))
	}
}

func TestSMTP_Send_Timeout(t *testing.T) {
	b := &testBackend{delay: 2 * time.Second}
	host, port := startServer(t, b, false)

	cfg := plainConfig(host, port)
	cfg.Timeout = 100 * time.Millisecond

	for i := 0; i < 3; i++ {
		err := NewSMTP(cfg).Send(context.Background(), testMessage())
		if KindOf(err) != KindTimeout {
			t.Fatalf("attempt %d: expected timeout, got %v", i+1, err)
		}

		// The stalled DATA reply trips the dialer's own deadline, not the
		// outer one.
		var se *mail.SendError
		if !errors.As(err, &se) {
			t.Fatalf("attempt %d: expected the dialer's send error, got %v", i+1, err)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("attempt %d: expected an I/O timeout, got the outer deadline: %v", i+1, err)
		}
	}
}

func TestSMTP_Send_SilentServer(t *testing.T) {
	ln, closed := silentListener(t)

	cfg := plainConfig("127.0.0.1", ln.Addr().(*net.TCPAddr).Port)
	cfg.Timeout = 100 * time.Millisecond

	start := time.Now()
	err := NewSMTP(cfg).Send(context.Background(), testMessage())
	if KindOf(err) != KindTimeout {
		t.Fatalf("expected timeout, got %v", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected the greeting read to time out, got the outer deadline: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("expected send to give up within 1s, took %v", elapsed)
	}
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("connection was left open after the send timed out")
	}
}

func TestSMTP_Send_ConnectionRefused(t *testing.T) {
	// Nothing listens on port 1 in the test environment.
	err := NewSMTP(plainConfig("127.0.0.1", 1)).Send(context.Background(), testMessage())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if KindOf(err) == "" {
		t.Errorf("expected a classified transport error, got %T", err)
	}
	if IsAuthFailure(err) {
		t.Errorf("connection refused must not be an auth failure: %v", err)
	}
}

func TestImplicitTLS_Send(t *testing.T) {
	b := &testBackend{user: "sender", pass: "secret"}
	host, port := startServer(t, b, true)

	cfg := plainConfig(host, port)
	cfg.Mode = SSLModeSSL
	cfg.UserName = "sender"
	cfg.Password = "secret"

	tr := NewImplicitTLS(cfg)
	tr.tlsConfig.InsecureSkipVerify = true

	if err := tr.Send(context.Background(), testMessage()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	got := b.received()
	if len(got) != 1 {
		t.Fatalf("expected 1 message, got %d", len(got))
	}
	if !strings.Contains(string(got[0].Data), "X-Message-Code: ") {
		t.Error("expected message code header")
	}
}

func TestImplicitTLS_Send_AuthFailure(t *testing.T) {
	b := &testBackend{user: "sender", pass: "secret"}
	host, port := startServer(t, b, true)

	cfg := plainConfig(host, port)
	cfg.Mode = SSLModeSSL
	cfg.UserName = "sender"
	cfg.Password = "wrong"

	tr := NewImplicitTLS(cfg)
	tr.tlsConfig.InsecureSkipVerify = true

	err := tr.Send(context.Background(), testMessage())
	if !IsAuthFailure(err) {
		t.Errorf("expected auth failure, got %v", err)
	}
}

func TestImplicitTLS_Send_Timeout(t *testing.T) {
	b := &testBackend{delay: 2 * time.Second}
	host, port := startServer(t, b, true)

	cfg := plainConfig(host, port)
	cfg.Mode = SSLModeSSL
	cfg.Timeout = 200 * time.Millisecond

	tr := NewImplicitTLS(cfg)
	tr.tlsConfig.InsecureSkipVerify = true

	err := tr.Send(context.Background(), testMessage())
	if KindOf(err) != KindTimeout {
		t.Errorf("expected timeout, got %v", err)
	}
}

func TestImplicitTLS_Send_StalledHandshake(t *testing.T) {
	ln, closed := silentListener(t)

	cfg := plainConfig("127.0.0.1", ln.Addr().(*net.TCPAddr).Port)
	cfg.Mode = SSLModeSSL
	cfg.Timeout = 100 * time.Millisecond

	for i := 0; i < 3; i++ {
		err := NewImplicitTLS(cfg).Send(context.Background(), testMessage())
		if KindOf(err) != KindTimeout {
			t.Fatalf("attempt %d: expected timeout, got %v", i+1, err)
		}
	}

	// Every abandoned handshake must release its socket.
	for i := 0; i < 3; i++ {
		select {
		case <-closed:
		case <-time.After(2 * time.Second):
			t.Fatalf("connection %d was left open after the send timed out", i+1)
		}
	}
}

func TestImplicitTLS_Send_Cancelled(t *testing.T) {
	ln, closed := silentListener(t)

	cfg := plainConfig("127.0.0.1", ln.Addr().(*net.TCPAddr).Port)
	cfg.Mode = SSLModeSSL
	cfg.Timeout = 5 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	err := NewImplicitTLS(cfg).Send(ctx, testMessage())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("expected cancellation to stop the send promptly, took %v", elapsed)
	}
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("connection was left open after cancellation")
	}
}

func TestImplicitTLS_Send_UntrustedCertificate(t *testing.T) {
	b := &testBackend{}
	host, port := startServer(t, b, true)

	cfg := plainConfig(host, port)
	cfg.Mode = SSLModeSSL

	err := NewImplicitTLS(cfg).Send(context.Background(), testMessage())
	if err == nil {
		t.Fatal("expected certificate error, got nil")
	}
	if KindOf(err) != KindUnknown {
		t.Errorf("expected unknown kind, got %s", KindOf(err))
	}
}
