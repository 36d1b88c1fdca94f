package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// handshakesAccepted tracks TLS handshakes whose peer passed trust evaluation
	handshakesAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "httpsecurity_tls_handshakes_accepted_total",
			Help: "Total number of TLS handshakes accepted by the trust evaluator",
		},
	)

	// handshakeRejections tracks rejected TLS handshakes by reason
	// Labels: reason (untrusted, hostname)
	handshakeRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpsecurity_tls_handshake_rejections_total",
			Help: "Total number of TLS handshakes rejected grouped by reason",
		},
		[]string{"reason"},
	)
)
