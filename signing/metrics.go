package signing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// signatureValidations 签名校验结果计数
	// Labels: result (valid, invalid)
	signatureValidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpsecurity_signature_validations_total",
			Help: "Total number of pinned signature validations grouped by result",
		},
		[]string{"result"},
	)

	// signerRejections 签名者描述被排除的原因计数
	// Labels: reason (descriptor_invalid, ski_mismatch, serial_mismatch, signature_invalid,
	// chain_invalid, aki_mismatch, common_name_mismatch)
	signerRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpsecurity_signer_rejections_total",
			Help: "Total number of pinned signer descriptors rejected grouped by reason",
		},
		[]string{"reason"},
	)
)
