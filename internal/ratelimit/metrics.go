package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeAllowed = "allowed"
	outcomeLimited = "limited"
	outcomeError   = "error"
)

var requestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "caredraft_ratelimit_requests_total",
		Help: "Total number of rate limit decisions, by endpoint class and outcome",
	},
	[]string{"class", "outcome"},
)
