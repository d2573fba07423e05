package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrUnauthorized means the request carried no usable exam token.
var ErrUnauthorized = errors.New("missing or invalid exam token")

// Identity is the resolved subject of a student request.
type Identity struct {
	StudentID uuid.UUID
	DriveID   uuid.UUID
}

// IdentityResolver maps an exam token to the student and drive it was
// issued for. The token service lives outside this engine; implementors
// wrap whatever store it writes to.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (*Identity, error)
}

// TokenRepository resolves tokens against the exam_tokens table the
// enrollment service populates.
type TokenRepository struct {
	pool *pgxpool.Pool
}

func NewTokenRepository(pool *pgxpool.Pool) *TokenRepository {
	return &TokenRepository{
		pool: pool,
	}
}

func (r *TokenRepository) Resolve(ctx context.Context, token string) (*Identity, error) {
	var id Identity
	if err := r.pool.QueryRow(ctx, `
		SELECT student_id, drive_id
		FROM exam_tokens
		WHERE token = $1 AND revoked_at IS NULL`,
		token,
	).Scan(&id.StudentID, &id.DriveID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("failed to resolve exam token: %w", err)
	}
	return &id, nil
}

// bearerToken extracts the exam token from the Authorization header or
// the X-Exam-Token fallback used by the desktop client.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.Header.Get("X-Exam-Token")
}
