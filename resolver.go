package intake

import (
	"context"
	"strings"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// ResolutionStatus is the tri-state outcome of a token lookup.
type ResolutionStatus = string

const (
	ResolutionActive   ResolutionStatus = "active"
	ResolutionDeleted  ResolutionStatus = "deleted"
	ResolutionNotFound ResolutionStatus = "not-found"
)

// Resolution identifies the row a bearer token points at. Deleted must stay
// distinguishable from NotFound so the caller can invite a resubmission
// instead of rendering a dead-link error.
type Resolution struct {
	Status     ResolutionStatus
	ID         uuid.UUID
	Submission *Submission
}

// TokenResolver answers "which row, in what state" for any of the three
// token kinds. Read-only; resolving the same token twice with no intervening
// mutation yields identical output.
type TokenResolver struct {
	repo   RepositoryManager
	logger Logger
}

func NewTokenResolver(repo RepositoryManager) *TokenResolver {
	return &TokenResolver{
		repo:   repo,
		logger: defLogger{},
	}
}

// WithLogger overrides the resolver's logger.
func (r *TokenResolver) WithLogger(logger Logger) *TokenResolver {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// Resolve looks the token up by exact match against its column. An empty
// token is a client error, never a lookup miss. Tokens get no format
// validation beyond that: they are high-entropy strings whose unguessability
// is the only security property.
func (r *TokenResolver) Resolve(ctx context.Context, kind TokenKind, token string) (*Resolution, error) {
	if strings.TrimSpace(token) == "" {
		return nil, NewMissingParameterError(string(kind))
	}

	record, err := r.repo.Submissions().GetByToken(ctx, kind, token)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return &Resolution{Status: ResolutionNotFound}, nil
		}
		return nil, err
	}

	if record.IsDeleted() {
		return &Resolution{
			Status:     ResolutionDeleted,
			ID:         record.ID,
			Submission: record,
		}, nil
	}

	return &Resolution{
		Status:     ResolutionActive,
		ID:         record.ID,
		Submission: record,
	}, nil
}
