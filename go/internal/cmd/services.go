package main

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/proctorhq/examengine/go/internal/clock"
	"github.com/proctorhq/examengine/go/internal/exam/questions"
	"github.com/proctorhq/examengine/go/internal/exam/scoring"
	"github.com/proctorhq/examengine/go/internal/exam/session"
	"github.com/proctorhq/examengine/go/internal/exam/status"
	"github.com/proctorhq/examengine/go/internal/exam/sweeper"
	"github.com/proctorhq/examengine/go/internal/exam/violation"
	"github.com/proctorhq/examengine/go/internal/exam/window"
	"github.com/proctorhq/examengine/go/internal/gateway"
	"github.com/proctorhq/examengine/go/internal/outbox"
)

type Services struct {
	Windows    *window.App
	Sessions   *session.App
	Violations *violation.App
	Status     *status.App
	Sweeper    *sweeper.Sweeper
	Gateway    *gateway.Gateway

	Connections *gateway.ConnectionManager
	Pusher      *gateway.StatusPusher
}

func setupServices(pool *pgxpool.Pool, config *Config) (*Services, error) {
	// Repository layer -> app layer -> gateway, all sharing one pool and
	// one UTC clock.
	clk := clock.New()

	outboxRepo := outbox.NewRepository(pool)
	windowRepo := window.NewRepository(pool)
	sessionRepo := session.NewRepository(pool)
	questionRepo := questions.NewRepository(pool)
	scoringRepo := scoring.NewRepository(pool)
	violationRepo := violation.NewRepository(pool)

	windowApp := window.NewApp(windowRepo, outboxRepo, clk)
	scoringApp := scoring.NewApp(questionRepo, scoringRepo, clk)
	sessionApp := session.NewApp(sessionRepo, windowApp, questionRepo, scoringApp, outboxRepo, clk)

	policy := violation.DefaultPolicy()
	if len(config.Violations.Limits) > 0 {
		var err error
		policy, err = violation.FromLimits(config.Violations.Limits)
		if err != nil {
			return nil, fmt.Errorf("invalid violation limits: %w", err)
		}
	}
	violationApp, err := violation.NewApp(violationRepo, sessionApp, policy)
	if err != nil {
		return nil, err
	}

	statusApp := status.NewApp(windowApp, sessionRepo, clk)
	sweep := sweeper.New(windowApp, sessionApp, clk, config.Sweeper.BatchSize)

	connections := gateway.NewConnectionManager(gateway.DefaultConnectionConfig())
	pusher := gateway.NewStatusPusher(statusApp, connections, config.Server.StatusPushInterval)

	gw := gateway.NewGateway(
		windowApp,
		sessionApp,
		violationApp,
		statusApp,
		questionRepo,
		scoringApp,
		gateway.NewTokenRepository(pool),
		connections,
	)

	return &Services{
		Windows:     windowApp,
		Sessions:    sessionApp,
		Violations:  violationApp,
		Status:      statusApp,
		Sweeper:     sweep,
		Gateway:     gw,
		Connections: connections,
		Pusher:      pusher,
	}, nil
}
