package gateway

import (
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/proctorhq/examengine/go/internal/exam/questions"
	"github.com/proctorhq/examengine/go/internal/exam/scoring"
	"github.com/proctorhq/examengine/go/internal/exam/session"
	"github.com/proctorhq/examengine/go/internal/exam/status"
	"github.com/proctorhq/examengine/go/internal/exam/violation"
	"github.com/proctorhq/examengine/go/internal/exam/window"
)

// Gateway is the HTTP surface of the engine: operator window controls,
// student attempt endpoints, and the status push socket. It owns no
// business rules; everything is delegated to the apps.
type Gateway struct {
	windows    *window.App
	sessions   *session.App
	violations *violation.App
	status     *status.App
	questions  *questions.Repository
	scoring    *scoring.App
	resolver   IdentityResolver
	validate   *validator.Validate

	connections *ConnectionManager
}

func NewGateway(
	windows *window.App,
	sessions *session.App,
	violations *violation.App,
	statusApp *status.App,
	questionRepo *questions.Repository,
	scoringApp *scoring.App,
	resolver IdentityResolver,
	connections *ConnectionManager,
) *Gateway {
	return &Gateway{
		windows:     windows,
		sessions:    sessions,
		violations:  violations,
		status:      statusApp,
		questions:   questionRepo,
		scoring:     scoringApp,
		resolver:    resolver,
		validate:    validator.New(),
		connections: connections,
	}
}

// RegisterRoutes registers every gateway route on the mux.
func (g *Gateway) RegisterRoutes(mux *http.ServeMux) {
	// Operator window controls.
	mux.HandleFunc("POST /api/windows", g.handleCreateWindow)
	mux.HandleFunc("POST /api/windows/{drive_id}/approve", g.handleApproveWindow)
	mux.HandleFunc("POST /api/windows/{drive_id}/open", g.handleOpenWindow)
	mux.HandleFunc("POST /api/windows/{drive_id}/close", g.handleCloseWindow)
	mux.HandleFunc("GET /api/windows/{drive_id}", g.handleGetWindow)
	mux.HandleFunc("GET /api/drives/{drive_id}/status", g.handleExamStatus)

	// Student attempt endpoints, authenticated by exam token.
	mux.HandleFunc("POST /api/session/start", g.handleStartSession)
	mux.HandleFunc("POST /api/session/submit", g.handleSubmit)
	mux.HandleFunc("POST /api/session/violations", g.handleRecordViolation)
	mux.HandleFunc("GET /api/session/status", g.handleSessionStatus)
	mux.HandleFunc("GET /api/session/questions", g.handleQuestions)
	mux.HandleFunc("GET /api/session/result", g.handleResult)

	// Live status push.
	mux.HandleFunc("GET /ws/status", g.handleStatusSocket)
}
