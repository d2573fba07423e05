package gateway

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/proctorhq/examengine/go/internal/exam/status"
)

// StatusPusher periodically projects exam status for every drive with
// at least one socket subscriber and broadcasts the snapshot. Clients
// render the countdown from these pushes but the stored expected_end
// stays the only clock that matters.
type StatusPusher struct {
	status      *status.App
	connections *ConnectionManager
	interval    time.Duration
}

func NewStatusPusher(statusApp *status.App, connections *ConnectionManager, interval time.Duration) *StatusPusher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &StatusPusher{
		status:      statusApp,
		connections: connections,
		interval:    interval,
	}
}

func (p *StatusPusher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", p.interval).Msg("status pusher started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("status pusher shutting down")
			return
		case <-ticker.C:
			p.pushAll(ctx)
		}
	}
}

func (p *StatusPusher) pushAll(ctx context.Context) {
	for _, driveID := range p.connections.ActiveDrives() {
		st, err := p.status.GetExamStatus(ctx, driveID)
		if err != nil {
			log.Warn().
				Err(err).
				Str("drive_id", driveID.String()).
				Msg("failed to project status for push")
			continue
		}
		p.connections.BroadcastToDrive(driveID, st)
	}
}
