// SPDX-License-Identifier: MIT

package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	apiErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sessiond_api_errors_total",
		Help: "Session API error responses by HTTP status",
	}, []string{"status"})

	qrImagesRendered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sessiond_qr_images_rendered_total",
		Help: "QR challenge images rendered as PNG",
	})
)
