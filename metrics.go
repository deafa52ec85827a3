package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	publicationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notpixel_publications_total",
		Help: "Publications received, by channel kind.",
	}, []string{"kind"})

	decodeErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notpixel_decode_errors_total",
		Help: "Publications dropped because they could not be decoded.",
	}, []string{"kind"})

	boardPixels = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "notpixel_board_pixels",
		Help: "Pixels currently tracked on the board.",
	})

	repaintsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notpixel_repaints_total",
		Help: "Repaint RPCs issued, by result.",
	}, []string{"result"})
)
