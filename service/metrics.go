package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const resultOK = "ok"

var (
	challengesIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "walletauth_challenges_issued_total",
		Help: "The total number of challenges issued",
	}, []string{"policy"})

	loginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "walletauth_login_attempts_total",
		Help: "Login attempts by outcome",
	}, []string{"result"})

	authentications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "walletauth_authentications_total",
		Help: "Bearer credential checks by credential kind and outcome",
	}, []string{"method", "result"})
)
