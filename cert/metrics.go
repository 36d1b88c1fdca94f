package cert

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// trustEvaluations 服务端信任评估结果计数
	// Labels: result (trusted, untrusted, malformed)
	trustEvaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpsecurity_trust_evaluations_total",
			Help: "Total number of server trust evaluations grouped by result",
		},
		[]string{"result"},
	)
)
