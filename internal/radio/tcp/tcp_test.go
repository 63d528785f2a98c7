package tcp

import (
	"bytes"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/nearwire/tether/internal/radio"
	"github.com/nearwire/tether/internal/testutil/testlog"
	"github.com/nearwire/tether/internal/testutil/tlstest"
)

var testService = radio.Service{Name: "tether-test", UUID: "8e2f17d4-93bd-4e60-9716-2f0c0d3a51b7"}

func roundTrip(t *testing.T, tr *Transport, secure bool) {
	t.Helper()

	lnIface, err := tr.OpenListener(testService, secure)
	if err != nil {
		t.Fatalf("OpenListener: %v", err)
	}
	ln := lnIface.(*listener)
	defer ln.Close()

	accepted := make(chan radio.Stream, 1)
	go func() {
		s, err := ln.Accept()
		if err != nil {
			t.Errorf("Accept: %v", err)
			return
		}
		accepted <- s
	}()

	out, err := tr.OpenOutbound(ln.Addr(), secure)
	if err != nil {
		t.Fatalf("OpenOutbound: %v", err)
	}
	if err := out.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer out.Close()

	if _, err := out.Write([]byte("over")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var in radio.Stream
	select {
	case in = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("no inbound stream")
	}
	defer in.Close()

	buf := make([]byte, 16)
	n, err := in.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(buf[:n], []byte("over")) {
		t.Fatalf("read %q", buf[:n])
	}

	if _, err := in.Write([]byte("out")); err != nil {
		t.Fatalf("Write back: %v", err)
	}
	n, err = out.Read(buf)
	if err != nil {
		t.Fatalf("Read back: %v", err)
	}
	if !bytes.Equal(buf[:n], []byte("out")) {
		t.Fatalf("read back %q", buf[:n])
	}
}

func TestPlainRoundTrip(t *testing.T) {
	testlog.Start(t)

	tr := New(Options{ListenAddr: "127.0.0.1:0"})
	roundTrip(t, tr, false)
}

func TestSecureRoundTrip(t *testing.T) {
	testlog.Start(t)

	ca := tlstest.NewAuthority(t, t.TempDir(), "tether test ca")
	tr := New(Options{
		ListenAddr: "127.0.0.1:0",
		ServerTLS:  ca.ServerConfig(t, "tether-station", []string{"localhost"}, []net.IP{net.ParseIP("127.0.0.1")}),
		ClientTLS:  ca.ClientConfig(t, "localhost"),
	})
	roundTrip(t, tr, true)
}

func TestCloseAbortsTLSHandshake(t *testing.T) {
	testlog.Start(t)

	// A raw TCP listener that accepts and then stays silent, so the TLS
	// handshake on the dialing side can never complete.
	raw, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer raw.Close()
	go func() {
		conn, err := raw.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		time.Sleep(5 * time.Second)
	}()

	ca := tlstest.NewAuthority(t, t.TempDir(), "tether test ca")
	tr := New(Options{ClientTLS: ca.ClientConfig(t, "localhost")})

	out, err := tr.OpenOutbound(raw.Addr().String(), true)
	if err != nil {
		t.Fatalf("OpenOutbound: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- out.Connect() }()

	time.Sleep(20 * time.Millisecond)
	out.Close()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("handshake against a silent peer succeeded")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Connect still blocked after Close")
	}
}

func TestCloseBeforeConnect(t *testing.T) {
	testlog.Start(t)

	tr := New(Options{})
	out, err := tr.OpenOutbound("127.0.0.1:1", false)
	if err != nil {
		t.Fatalf("OpenOutbound: %v", err)
	}
	out.Close()
	if err := out.Connect(); !errors.Is(err, ErrStreamClosed) {
		t.Fatalf("Connect after Close: %v", err)
	}
}

func TestMissingConfiguration(t *testing.T) {
	testlog.Start(t)

	tr := New(Options{})
	if _, err := tr.OpenOutbound("127.0.0.1:1", true); !errors.Is(err, ErrNoClientTLS) {
		t.Fatalf("secure outbound without client tls: %v", err)
	}
	if _, err := tr.OpenListener(testService, false); !errors.Is(err, ErrNoListenAddr) {
		t.Fatalf("listener without address: %v", err)
	}

	tr = New(Options{ListenAddr: "127.0.0.1:0"})
	if _, err := tr.OpenListener(testService, true); !errors.Is(err, ErrNoServerTLS) {
		t.Fatalf("secure listener without server tls: %v", err)
	}
}
