package netio_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dantte-lp/espd/internal/esp"
	"github.com/dantte-lp/espd/internal/netio"
)

type stubDemuxer struct {
	result func(raw []byte) (*esp.Packet, *esp.Result)
}

func (s stubDemuxer) DecryptInbound(raw []byte, _, _ esp.Endpoint) (*esp.Packet, *esp.Result) {
	return s.result(raw)
}

func TestReceiverDeliversDecryptedPacketToHandler(t *testing.T) {
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

	var mu sync.Mutex
	var delivered *esp.Packet
	handlerCalled := make(chan struct{}, 1)

	demuxer := stubDemuxer{result: func(raw []byte) (*esp.Packet, *esp.Result) {
		pkt := esp.NewPacketFromBytes(esp.Endpoint{}, esp.Endpoint{}, raw)
		return pkt, &esp.Result{Status: esp.StatusSuccess}
	}}

	recv := netio.NewReceiver(demuxer, func(pkt *esp.Packet) {
		mu.Lock()
		delivered = pkt
		mu.Unlock()
		handlerCalled <- struct{}{}
	}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go recv.Run(ctx, b)

	if err := a.SendTo([]byte{0xAA, 0xBB, 0xCC, 0xDD}, b.LocalAddrPort()); err != nil {
		t.Fatalf("SendTo: %v", err)
	}

	select {
	case <-handlerCalled:
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not invoked within timeout")
	}

	mu.Lock()
	defer mu.Unlock()
	if delivered == nil {
		t.Fatal("handler received nil packet")
	}
}

func TestReceiverSkipsHandlerOnRejection(t *testing.T) {
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

	handlerCalled := make(chan struct{}, 1)

	demuxer := stubDemuxer{result: func(raw []byte) (*esp.Packet, *esp.Result) {
		return nil, &esp.Result{Status: esp.StatusNotFound}
	}}

	recv := netio.NewReceiver(demuxer, func(pkt *esp.Packet) {
		handlerCalled <- struct{}{}
	}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go recv.Run(ctx, b)

	if err := a.SendTo([]byte{0x01, 0x02, 0x03, 0x04}, b.LocalAddrPort()); err != nil {
		t.Fatalf("SendTo: %v", err)
	}

	select {
	case <-handlerCalled:
		t.Fatal("handler invoked for a rejected datagram")
	case <-time.After(200 * time.Millisecond):
	}
}
