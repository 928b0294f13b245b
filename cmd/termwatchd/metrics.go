package main

import (
	"github.com/carlmjohnson/versioninfo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var serviceInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "termwatchd_service_info",
	Help: "Build information for the running daemon",
}, []string{"version"})

func init() {
	serviceInfo.WithLabelValues(versioninfo.Short()).Set(1)
}
