package intake

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// DeleteSubmissionMessage soft deletes a record via either a bearer delete
// token or an authenticated owner identity. Exactly one path is used per
// request; the token wins when both are present.
type DeleteSubmissionMessage struct {
	DeleteToken string `json:"delete_token,omitempty" doc:"Durable delete credential from the manage email."`
	ID          string `json:"id,omitempty" doc:"Record id, identity path only."`
	UserID      string `json:"user_id,omitempty" doc:"Authenticated identity, identity path only."`
	Reason      string `json:"reason,omitempty" doc:"Free-text reason; defaults when blank on the token path."`
	OnResponse  func(resp *DeleteSubmissionResponse)
}

func (m DeleteSubmissionMessage) Type() string { return "submission.delete" }

type DeleteSubmissionResponse struct {
	Submission *Submission
	// Already is true when the record had been deleted before this call.
	// Repeated deletes are a success no-op and never touch delete_reason.
	Already bool
}

type DeleteSubmissionHandler struct {
	repo     RepositoryManager
	notifier Notifier
	logger   Logger
}

// NewDeleteSubmissionHandler creates a handler with sane defaults.
func NewDeleteSubmissionHandler(repo RepositoryManager) *DeleteSubmissionHandler {
	return &DeleteSubmissionHandler{
		repo:     repo,
		notifier: noopNotifier{},
		logger:   defLogger{},
	}
}

// WithNotifier sets the sink used to emit delete alerts.
func (h *DeleteSubmissionHandler) WithNotifier(n Notifier) *DeleteSubmissionHandler {
	h.notifier = normalizeNotifier(n)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *DeleteSubmissionHandler) WithLogger(logger Logger) *DeleteSubmissionHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *DeleteSubmissionHandler) Execute(ctx context.Context, event DeleteSubmissionMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during submission delete",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *DeleteSubmissionHandler) execute(ctx context.Context, event DeleteSubmissionMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	var record *Submission
	var err error

	if event.DeleteToken != "" {
		record, err = h.repo.Submissions().GetByToken(ctx, DeleteTokenKind, event.DeleteToken)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return NewSubmissionNotFoundError()
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve delete token")
		}
	} else {
		record, err = h.authorizeIdentityDelete(ctx, event)
		if err != nil {
			return err
		}
	}

	if record.IsDeleted() {
		h.respond(event, record, true)
		return nil
	}

	reason := strings.TrimSpace(event.Reason)
	if reason == "" {
		// The identity path demands a reason up front; the token path falls
		// back to a placeholder so the admin alert is never blank.
		reason = DefaultDeleteReason
	}

	var deleted *Submission
	already := false

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		deleted, err = h.repo.Submissions().SoftDeleteTx(ctx, tx, record.ID, reason)
		if err == nil {
			return nil
		}

		if !repository.IsRecordNotFound(err) {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to soft delete submission")
		}

		// The guarded update matched nothing: someone deleted the row in
		// between. Re-read to confirm and treat it as the no-op case.
		current, readErr := h.repo.Submissions().GetByID(ctx, record.ID.String())
		if readErr != nil {
			return goerrors.Wrap(readErr, goerrors.CategoryInternal, "failed to re-read submission after delete miss")
		}
		if current.IsDeleted() {
			deleted = current
			already = true
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "submission vanished during delete")
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "submission delete transaction failed")
	}

	if !already {
		Dispatch(h.notifier, h.logger, Event{
			Type:   EventDelete,
			ID:     deleted.ID.String(),
			Name:   deleted.FullName(),
			Email:  deleted.Email,
			Reason: deleted.DeleteReason,
		})
	}

	h.respond(event, deleted, already)
	return nil
}

// authorizeIdentityDelete enforces the ownership check for the id+identity
// path. Mismatches answer Forbidden, not NotFound: we acknowledge the row
// exists. Applied uniformly across the API.
func (h *DeleteSubmissionHandler) authorizeIdentityDelete(ctx context.Context, event DeleteSubmissionMessage) (*Submission, error) {
	if event.ID == "" {
		return nil, NewMissingParameterError("id")
	}
	if strings.TrimSpace(event.Reason) == "" {
		return nil, NewMissingParameterError("reason")
	}

	userID, err := uuid.Parse(event.UserID)
	if err != nil || userID == uuid.Nil {
		return nil, NewUnauthenticatedError()
	}

	record, err := h.repo.Submissions().GetByID(ctx, event.ID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, NewSubmissionNotFoundError()
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load submission")
	}

	if !record.IsOwnedBy(userID) {
		return nil, NewForbiddenError()
	}

	return record, nil
}

func (h *DeleteSubmissionHandler) respond(event DeleteSubmissionMessage, record *Submission, already bool) {
	if event.OnResponse != nil {
		event.OnResponse(&DeleteSubmissionResponse{
			Submission: record,
			Already:    already,
		})
	}
}
