package netio_test

import (
	"testing"

	"github.com/dantte-lp/espd/internal/netio"
)

func TestESPConnSendRecvRoundTrip(t *testing.T) {
	t.Parallel()

	a, err := netio.NewESPConn("127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewESPConn a: %v", err)
	}
	defer a.Close()

	b, err := netio.NewESPConn("127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewESPConn b: %v", err)
	}
	defer b.Close()

	dst := b.LocalAddrPort()

	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01, 0x02, 0x03, 0x04}
	if err := a.SendTo(payload, dst); err != nil {
		t.Fatalf("SendTo: %v", err)
	}

	got, _, err := b.RecvFrom()
	if err != nil {
		t.Fatalf("RecvFrom: %v", err)
	}
	defer b.ReleaseBuffer(got)

	if string(got) != string(payload) {
		t.Errorf("RecvFrom got %v, want %v", got, payload)
	}
}

func TestESPConnCloseUnblocksRecv(t *testing.T) {
	t.Parallel()

	conn, err := netio.NewESPConn("127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewESPConn: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, _, recvErr := conn.RecvFrom()
		done <- recvErr
	}()

	if err := conn.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if recvErr := <-done; recvErr == nil {
		t.Error("RecvFrom after Close returned nil error, want ErrConnClosed (or a read error)")
	}
}
