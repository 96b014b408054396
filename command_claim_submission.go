package intake

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ClaimSubmissionMessage binds an anonymous submission to the authenticated
// identity that confirmed it.
type ClaimSubmissionMessage struct {
	Token      string `json:"token" doc:"Single-use claim token from the confirmation email."`
	UserID     string `json:"user_id" doc:"Authenticated identity taking ownership."`
	OnResponse func(resp *ClaimSubmissionResponse)
}

func (m ClaimSubmissionMessage) Type() string { return "submission.claim" }

type ClaimSubmissionResponse struct {
	Submission  *Submission
	ManageToken string
	DeleteToken string
}

type ClaimSubmissionHandler struct {
	repo     RepositoryManager
	notifier Notifier
	links    LinkBuilder
	logger   Logger
}

// NewClaimSubmissionHandler creates a handler with sane defaults.
func NewClaimSubmissionHandler(repo RepositoryManager) *ClaimSubmissionHandler {
	return &ClaimSubmissionHandler{
		repo:     repo,
		notifier: noopNotifier{},
		logger:   defLogger{},
	}
}

// WithNotifier sets the sink for the manage-link delivery alert.
func (h *ClaimSubmissionHandler) WithNotifier(n Notifier) *ClaimSubmissionHandler {
	h.notifier = normalizeNotifier(n)
	return h
}

// WithLinks sets the builder for the manage/delete URLs in the alert payload.
func (h *ClaimSubmissionHandler) WithLinks(links LinkBuilder) *ClaimSubmissionHandler {
	h.links = links
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *ClaimSubmissionHandler) WithLogger(logger Logger) *ClaimSubmissionHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ClaimSubmissionHandler) Execute(ctx context.Context, event ClaimSubmissionMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during submission claim",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ClaimSubmissionHandler) execute(ctx context.Context, event ClaimSubmissionMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if event.Token == "" {
		return NewMissingParameterError("token")
	}

	userID, err := uuid.Parse(event.UserID)
	if err != nil || userID == uuid.Nil {
		return NewUnauthenticatedError()
	}

	// Candidate credentials; COALESCE in the claim statement keeps any
	// tokens the form tool already assigned.
	manageToken := NewOpaqueToken()
	deleteToken := NewOpaqueToken()

	var claimed *Submission

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		// One conditional update: the guard on claim_token + user_id IS NULL
		// means at most one concurrent caller gets the row back.
		claimed, err = h.repo.Submissions().ClaimTx(ctx, tx, event.Token, userID, manageToken, deleteToken)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				// The token column is cleared on use, so a consumed token and
				// one that never existed look the same here.
				return NewTokenAlreadyUsedError()
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to claim submission")
		}
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "submission claim transaction failed")
	}

	// Manage-link delivery is advisory: issued, not awaited.
	Dispatch(h.notifier, h.logger, Event{
		Type:      EventClaim,
		ID:        claimed.ID.String(),
		Name:      claimed.FullName(),
		Email:     claimed.Email,
		ManageURL: h.links.ManageURL(claimed.ManageToken),
		DeleteURL: h.links.DeleteURL(claimed.DeleteToken),
	})

	if event.OnResponse != nil {
		event.OnResponse(&ClaimSubmissionResponse{
			Submission:  claimed,
			ManageToken: claimed.ManageToken,
			DeleteToken: claimed.DeleteToken,
		})
	}

	return nil
}
