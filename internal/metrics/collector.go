package espmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "espd"
	subsystem = "esp"
)

// Label names for ESP metrics.
const (
	labelSPI       = "spi"
	labelDirection = "direction"
	labelCipher    = "cipher"
	labelMAC       = "mac"
)

// -------------------------------------------------------------------------
// Collector — Prometheus ESP Metrics
// -------------------------------------------------------------------------

// Collector holds all ESP Prometheus metrics.
//
//   - ActiveSAs tracks currently installed security associations.
//   - PacketsEncrypted/PacketsDecrypted count successful pipeline runs per SPI.
//   - ReplayDrops and MACFailures flag packets rejected by the anti-replay
//     window or the MAC verification step, the two security-relevant
//     rejection paths an operator alerts on.
//   - ParseErrors counts malformed datagrams and datagrams addressed to
//     an SPI with no installed inbound SA.
type Collector struct {
	// ActiveSAs tracks the number of currently installed security
	// associations, labeled by direction.
	ActiveSAs *prometheus.GaugeVec

	// PacketsEncrypted counts datagrams successfully produced by Encrypt,
	// labeled per SPI/cipher/mac.
	PacketsEncrypted *prometheus.CounterVec

	// PacketsDecrypted counts datagrams successfully accepted by Decrypt,
	// labeled per SPI/cipher/mac.
	PacketsDecrypted *prometheus.CounterVec

	// ReplayDrops counts datagrams rejected by the anti-replay window.
	ReplayDrops *prometheus.CounterVec

	// MACFailures counts datagrams rejected by MAC verification.
	MACFailures *prometheus.CounterVec

	// ParseErrors counts datagrams rejected as malformed (short header,
	// misaligned ciphertext, bad padding, unrecognised inner IP version)
	// or addressed to an unknown SPI. Bad padding and the inner IP version
	// are only detected after MAC verification and decryption.
	ParseErrors *prometheus.CounterVec
}

// NewCollector creates a Collector with all ESP metrics registered against
// the provided prometheus.Registerer. If reg is nil, prometheus.DefaultRegisterer
// is used.
//
// All metrics are created with the "espd_esp_" prefix (namespace_subsystem)
// to avoid collisions with other exporters.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.ActiveSAs,
		c.PacketsEncrypted,
		c.PacketsDecrypted,
		c.ReplayDrops,
		c.MACFailures,
		c.ParseErrors,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	saLabels := []string{labelDirection}
	packetLabels := []string{labelSPI, labelCipher, labelMAC}
	spiLabels := []string{labelSPI}

	return &Collector{
		ActiveSAs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "active_sas",
			Help:      "Number of currently installed security associations.",
		}, saLabels),

		PacketsEncrypted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_encrypted_total",
			Help:      "Total datagrams successfully produced by Encrypt.",
		}, packetLabels),

		PacketsDecrypted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_decrypted_total",
			Help:      "Total datagrams successfully accepted by Decrypt.",
		}, packetLabels),

		ReplayDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "replay_drops_total",
			Help:      "Total datagrams rejected by the anti-replay window.",
		}, spiLabels),

		MACFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "mac_failures_total",
			Help:      "Total datagrams rejected by MAC verification.",
		}, spiLabels),

		ParseErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "parse_errors_total",
			Help:      "Total datagrams rejected as malformed or addressed to an unknown SPI.",
		}, spiLabels),
	}
}

// -------------------------------------------------------------------------
// SA Lifecycle
// -------------------------------------------------------------------------

// RegisterSA increments the active SA gauge for the given direction.
// Called when internal/sa.Manager installs a new security association.
func (c *Collector) RegisterSA(direction string) {
	c.ActiveSAs.WithLabelValues(direction).Inc()
}

// UnregisterSA decrements the active SA gauge for the given direction.
// Called when internal/sa.Manager destroys a security association.
func (c *Collector) UnregisterSA(direction string) {
	c.ActiveSAs.WithLabelValues(direction).Dec()
}

// -------------------------------------------------------------------------
// Packet Counters
// -------------------------------------------------------------------------

// IncPacketsEncrypted increments the encrypted-packet counter for an SPI.
func (c *Collector) IncPacketsEncrypted(spi, cipher, mac string) {
	c.PacketsEncrypted.WithLabelValues(spi, cipher, mac).Inc()
}

// IncPacketsDecrypted increments the decrypted-packet counter for an SPI.
func (c *Collector) IncPacketsDecrypted(spi, cipher, mac string) {
	c.PacketsDecrypted.WithLabelValues(spi, cipher, mac).Inc()
}

// IncReplayDrops increments the replay-drop counter for an SPI.
// Called when esp.Decrypt returns StatusVerifyError wrapping ErrReplayed.
func (c *Collector) IncReplayDrops(spi string) {
	c.ReplayDrops.WithLabelValues(spi).Inc()
}

// IncMACFailures increments the MAC-failure counter for an SPI.
// Called when esp.Decrypt returns StatusFailed wrapping ErrBadMAC.
func (c *Collector) IncMACFailures(spi string) {
	c.MACFailures.WithLabelValues(spi).Inc()
}

// IncParseErrors increments the parse-error counter for an SPI.
// Called when inbound decryption returns StatusParseError, or
// StatusNotFound for an SPI with no installed inbound SA.
func (c *Collector) IncParseErrors(spi string) {
	c.ParseErrors.WithLabelValues(spi).Inc()
}
