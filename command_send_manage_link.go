package intake

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

// SendManageLinkMessage re-delivers the manage email for an already claimed
// submission. Unlike the other alerts this delivery is synchronous: the caller
// needs to know whether the email hook accepted the request.
type SendManageLinkMessage struct {
	ManageToken string `json:"manage_token"`
	OnResponse  func(resp *SendManageLinkResponse)
}

func (m SendManageLinkMessage) Type() string { return "submission.send_manage_link" }

type SendManageLinkResponse struct {
	Submission *Submission
}

type SendManageLinkHandler struct {
	repo     RepositoryManager
	notifier Notifier
	links    *LinkBuilder
	// credential is the privileged token handed to the mail hook. The server
	// refuses to deliver without it rather than sending an unauthenticated
	// request downstream.
	credential string
	logger     Logger
}

// NewSendManageLinkHandler creates a handler with sane defaults.
func NewSendManageLinkHandler(repo RepositoryManager) *SendManageLinkHandler {
	return &SendManageLinkHandler{
		repo:     repo,
		notifier: noopNotifier{},
		logger:   defLogger{},
	}
}

// WithNotifier sets the sink used to deliver the manage email.
func (h *SendManageLinkHandler) WithNotifier(n Notifier) *SendManageLinkHandler {
	h.notifier = normalizeNotifier(n)
	return h
}

// WithLinks sets the builder used to render manage and delete URLs.
func (h *SendManageLinkHandler) WithLinks(links *LinkBuilder) *SendManageLinkHandler {
	h.links = links
	return h
}

// WithCredential sets the privileged token forwarded to the mail hook.
func (h *SendManageLinkHandler) WithCredential(credential string) *SendManageLinkHandler {
	h.credential = credential
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *SendManageLinkHandler) WithLogger(logger Logger) *SendManageLinkHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *SendManageLinkHandler) Execute(ctx context.Context, event SendManageLinkMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during manage link delivery",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *SendManageLinkHandler) execute(ctx context.Context, event SendManageLinkMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if event.ManageToken == "" {
		return NewMissingParameterError("manage_token")
	}

	if h.credential == "" {
		h.logger.Error("manage link delivery refused: no service credential configured")
		return NewMisconfiguredError("mail hook credential is not configured")
	}

	if h.links == nil || !h.links.Configured() {
		return NewMisconfiguredError("portal base URL is not configured")
	}

	record, err := h.repo.Submissions().GetByToken(ctx, ManageTokenKind, event.ManageToken)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return NewSubmissionNotFoundError()
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load submission")
	}

	if record.IsDeleted() {
		return NewSubmissionDeletedError()
	}

	payload := Event{
		Type:      EventManageLink,
		ID:        record.ID.String(),
		Name:      record.FullName(),
		Email:     record.Email,
		ManageURL: h.links.ManageURL(record.ManageToken),
		DeleteURL: h.links.DeleteURL(record.DeleteToken),
	}

	if err := h.notifier.Notify(ctx, payload); err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return NewUpstreamError(err, "mail hook rejected the manage link delivery")
	}

	if event.OnResponse != nil {
		event.OnResponse(&SendManageLinkResponse{Submission: record})
	}

	return nil
}
