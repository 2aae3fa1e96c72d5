package netio

import (
	"context"
	"encoding/hex"
	"log/slog"

	"github.com/dantte-lp/espd/internal/esp"
	espmetrics "github.com/dantte-lp/espd/internal/metrics"
)

// Demuxer routes a received ESP datagram to the matching security
// association and runs the decrypt pipeline against it. Implemented by
// *sa.Manager; declared here as an interface to avoid netio depending on
// sa's concrete type beyond what it actually calls.
type Demuxer interface {
	DecryptInbound(raw []byte, src, dst esp.Endpoint) (*esp.Packet, *esp.Result)
}

// InboundHandler is invoked for every datagram the Receiver successfully
// decrypts. It receives the recovered inner packet; handler implementations
// typically forward it to a tun device or local delivery path.
type InboundHandler func(pkt *esp.Packet)

// Receiver reads ESP datagrams from an ESPConn and routes them through a
// Demuxer. Decrypt failures are logged and counted but never stop the
// receive loop — only context cancellation does.
type Receiver struct {
	demuxer Demuxer
	handler InboundHandler
	metrics *espmetrics.Collector
	logger  *slog.Logger
}

// NewReceiver creates a Receiver that demultiplexes through demuxer and
// forwards successfully decrypted packets to handler. metrics may be nil.
func NewReceiver(demuxer Demuxer, handler InboundHandler, metrics *espmetrics.Collector, logger *slog.Logger) *Receiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Receiver{
		demuxer: demuxer,
		handler: handler,
		metrics: metrics,
		logger:  logger.With(slog.String("component", "netio.receiver")),
	}
}

// Run reads from conn in a loop until ctx is cancelled.
func (r *Receiver) Run(ctx context.Context, conn *ESPConn) {
	for {
		if ctx.Err() != nil {
			return
		}

		if err := r.recvOne(conn); err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Warn("recv error", slog.String("error", err.Error()))
		}
	}
}

// recvOne performs a single receive-demux-decrypt cycle, releasing the
// pooled buffer back to conn regardless of outcome.
func (r *Receiver) recvOne(conn *ESPConn) error {
	raw, src, err := conn.RecvFrom()
	if err != nil {
		return err
	}
	defer conn.ReleaseBuffer(raw)

	srcEP := esp.Endpoint{Addr: src.Addr(), Port: src.Port()}
	dstEP := esp.Endpoint{Addr: conn.LocalAddr()}

	pkt, res := r.demuxer.DecryptInbound(raw, srcEP, dstEP)
	r.recordResult(raw, res)

	if !res.OK() {
		r.logger.Debug("datagram rejected",
			slog.String("src", src.String()),
			slog.String("status", res.Status.String()),
			slog.String("error", res.Error()),
		)
		return nil
	}

	if r.handler != nil {
		r.handler(pkt)
	}
	return nil
}

// recordResult increments the metrics counter matching res's status.
// Replay drops and MAC failures are labelled with the datagram's SPI,
// which matched an installed SA. SPI is not yet known for
// StatusNotFound/StatusParseError outcomes where the header could not be
// trusted, so those are recorded without an SPI label via the zero value.
func (r *Receiver) recordResult(raw []byte, res *esp.Result) {
	if r.metrics == nil {
		return
	}
	spi := ""
	if len(raw) >= 4 {
		spi = hex.EncodeToString(raw[:4])
	}
	switch res.Status {
	case esp.StatusVerifyError:
		r.metrics.IncReplayDrops(spi)
	case esp.StatusFailed:
		r.metrics.IncMACFailures(spi)
	case esp.StatusParseError, esp.StatusNotFound:
		r.metrics.IncParseErrors("")
	}
}
