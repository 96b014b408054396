package intake

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// IntakeControllerRoutes holds the route paths so embedders can remap them.
type IntakeControllerRoutes struct {
	Claim              string
	ResolveManageToken string
	DeleteByToken      string
	DeleteSubmission   string
	SendManageEmail    string
	NotifyEdit         string
	Submission         string
	SubmissionPhoto    string
}

type IntakeController struct {
	Debug    bool
	Logger   Logger
	Repo     RepositoryManager
	Resolver *TokenResolver
	Notifier Notifier
	// MailNotifier delivers the manage email. Falls back to Notifier when the
	// deployment uses a single hook for everything.
	MailNotifier Notifier
	Photos       *PhotoStore
	Links        *LinkBuilder
	Verifier     *SessionVerifier
	Routes       *IntakeControllerRoutes
	// Credential is the privileged token the mail hook expects.
	Credential string
}

type IntakeControllerOption func(*IntakeController) *IntakeController

func WithControllerLogger(logger Logger) IntakeControllerOption {
	return func(c *IntakeController) *IntakeController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithControllerRepo(repo RepositoryManager) IntakeControllerOption {
	return func(c *IntakeController) *IntakeController {
		c.Repo = repo
		return c
	}
}

func WithControllerNotifier(n Notifier) IntakeControllerOption {
	return func(c *IntakeController) *IntakeController {
		c.Notifier = normalizeNotifier(n)
		return c
	}
}

func WithControllerMailNotifier(n Notifier) IntakeControllerOption {
	return func(c *IntakeController) *IntakeController {
		c.MailNotifier = normalizeNotifier(n)
		return c
	}
}

func WithControllerPhotos(p *PhotoStore) IntakeControllerOption {
	return func(c *IntakeController) *IntakeController {
		c.Photos = p
		return c
	}
}

func WithControllerLinks(l *LinkBuilder) IntakeControllerOption {
	return func(c *IntakeController) *IntakeController {
		c.Links = l
		return c
	}
}

func WithControllerVerifier(v *SessionVerifier) IntakeControllerOption {
	return func(c *IntakeController) *IntakeController {
		c.Verifier = v
		return c
	}
}

func WithControllerCredential(credential string) IntakeControllerOption {
	return func(c *IntakeController) *IntakeController {
		c.Credential = credential
		return c
	}
}

func WithControllerDebug(debug bool) IntakeControllerOption {
	return func(c *IntakeController) *IntakeController {
		c.Debug = debug
		return c
	}
}

func NewIntakeController(opts ...IntakeControllerOption) *IntakeController {
	c := &IntakeController{
		Logger:   defLogger{},
		Notifier: noopNotifier{},
		Routes: &IntakeControllerRoutes{
			Claim:              "/api/claim",
			ResolveManageToken: "/api/resolve-manage-token",
			DeleteByToken:      "/api/delete-by-token",
			DeleteSubmission:   "/api/delete-submission",
			SendManageEmail:    "/api/send-manage-email",
			NotifyEdit:         "/api/notify-edit",
			Submission:         "/api/submissions/:id",
			SubmissionPhoto:    "/api/submissions/:id/photo",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in intake controller...")
	}

	if c.Resolver == nil {
		c.Resolver = NewTokenResolver(c.Repo).WithLogger(c.Logger)
	}

	return c
}

// RegisterIntakeRoutes mounts the portal API on the given router.
func RegisterIntakeRoutes[T any](app router.Router[T], opts ...IntakeControllerOption) *IntakeController {
	controller := NewIntakeController(opts...)

	requireSession := func(h router.HandlerFunc) router.HandlerFunc { return h }
	if controller.Verifier != nil {
		requireSession = RequireSession(controller.Verifier)
	}

	app.Post(controller.Routes.Claim, requireSession(controller.ClaimPost)).
		SetName("intake.claim.post")

	app.Post(controller.Routes.ResolveManageToken, controller.ResolveManageTokenPost).
		SetName("intake.resolve.post")

	app.Post(controller.Routes.DeleteByToken, controller.DeleteByTokenPost).
		SetName("intake.delete-by-token.post")

	app.Post(controller.Routes.DeleteSubmission, requireSession(controller.DeleteSubmissionPost)).
		SetName("intake.delete-submission.post")

	app.Post(controller.Routes.SendManageEmail, controller.SendManageEmailPost).
		SetName("intake.send-manage-email.post")

	app.Post(controller.Routes.NotifyEdit, controller.NotifyEditPost).
		SetName("intake.notify-edit.post")

	app.Get(controller.Routes.Submission, controller.SubmissionGet).
		SetName("intake.submission.get")

	app.Put(controller.Routes.Submission, controller.SubmissionPut).
		SetName("intake.submission.put")

	app.Post(controller.Routes.SubmissionPhoto, controller.SubmissionPhotoPost).
		SetName("intake.submission-photo.post")

	return controller
}

// respondError maps the error taxonomy onto a JSON body and status code.
func (a *IntakeController) respondError(ctx router.Context, err error) error {
	status := HTTPStatus(err)
	if status >= 500 {
		a.Logger.Error("intake request failed: %s", err)
	}

	body := map[string]any{"error": err.Error()}
	if IsSubmissionDeleted(err) {
		body["deleted"] = true
	}

	return ctx.JSON(status, body)
}

// publicView strips the single use claim token before a row goes on the wire.
func publicView(record *Submission) *Submission {
	if record == nil {
		return nil
	}
	view := *record
	view.ClaimToken = ""
	return &view
}

// ClaimRequest payload
type ClaimRequest struct {
	Token string `form:"token" json:"token"`
}

// Validate will run validation rules
func (r ClaimRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
	)
}

func (a *IntakeController) ClaimPost(ctx router.Context) error {
	payload := new(ClaimRequest)

	if err := ctx.Bind(payload); err != nil {
		return a.respondError(ctx, NewMissingParameterError("token"))
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(router.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": err,
		})
	}

	userID, err := SessionUserID(ctx)
	if err != nil {
		return a.respondError(ctx, err)
	}

	if a.Debug {
		fmt.Println("======= INTAKE CLAIM ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("===========================")
	}

	var resp *ClaimSubmissionResponse
	claim := NewClaimSubmissionHandler(a.Repo).
		WithNotifier(a.Notifier).
		WithLogger(a.Logger)
	if a.Links != nil {
		claim = claim.WithLinks(*a.Links)
	}

	err = claim.Execute(ctx.Context(), ClaimSubmissionMessage{
		Token:  payload.Token,
		UserID: userID.String(),
		OnResponse: func(r *ClaimSubmissionResponse) {
			resp = r
		},
	})
	if err != nil {
		return a.respondError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"id":           resp.Submission.ID.String(),
		"manage_token": resp.ManageToken,
		"delete_token": resp.DeleteToken,
	})
}

// ResolveTokenRequest payload
type ResolveTokenRequest struct {
	Token string `form:"token" json:"token"`
}

// Validate will run validation rules
func (r ResolveTokenRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
	)
}

func (a *IntakeController) ResolveManageTokenPost(ctx router.Context) error {
	payload := new(ResolveTokenRequest)

	if err := ctx.Bind(payload); err != nil {
		return a.respondError(ctx, NewMissingParameterError("token"))
	}

	if err := payload.Validate(); err != nil {
		return a.respondError(ctx, NewMissingParameterError("token"))
	}

	resolution, err := a.Resolver.Resolve(ctx.Context(), ManageTokenKind, payload.Token)
	if err != nil {
		return a.respondError(ctx, err)
	}

	switch resolution.Status {
	case ResolutionNotFound:
		return a.respondError(ctx, NewSubmissionNotFoundError())
	case ResolutionDeleted:
		return ctx.JSON(router.StatusGone, map[string]any{
			"deleted": true,
			"id":      resolution.ID,
		})
	default:
		return ctx.JSON(router.StatusOK, map[string]any{
			"id":         resolution.ID,
			"submission": publicView(resolution.Submission),
		})
	}
}

// DeleteByTokenRequest payload
type DeleteByTokenRequest struct {
	Token  string `form:"token" json:"token"`
	Reason string `form:"reason" json:"reason"`
}

// Validate will run validation rules
func (r DeleteByTokenRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
	)
}

func (a *IntakeController) DeleteByTokenPost(ctx router.Context) error {
	payload := new(DeleteByTokenRequest)

	if err := ctx.Bind(payload); err != nil {
		return a.respondError(ctx, NewMissingParameterError("token"))
	}

	if err := payload.Validate(); err != nil {
		return a.respondError(ctx, NewMissingParameterError("token"))
	}

	var resp *DeleteSubmissionResponse
	del := NewDeleteSubmissionHandler(a.Repo).
		WithNotifier(a.Notifier).
		WithLogger(a.Logger)

	err := del.Execute(ctx.Context(), DeleteSubmissionMessage{
		DeleteToken: payload.Token,
		Reason:      payload.Reason,
		OnResponse: func(r *DeleteSubmissionResponse) {
			resp = r
		},
	})
	if err != nil {
		return a.respondError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"ok":      true,
		"already": resp.Already,
	})
}

// DeleteSubmissionRequest payload
type DeleteSubmissionRequest struct {
	ID     string `form:"id" json:"id"`
	Reason string `form:"reason" json:"reason"`
}

// Validate will run validation rules
func (r DeleteSubmissionRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ID, validation.Required, is.UUID),
		validation.Field(&r.Reason, validation.Required),
	)
}

func (a *IntakeController) DeleteSubmissionPost(ctx router.Context) error {
	payload := new(DeleteSubmissionRequest)

	if err := ctx.Bind(payload); err != nil {
		return a.respondError(ctx, NewMissingParameterError("id"))
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(router.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": err,
		})
	}

	userID, err := SessionUserID(ctx)
	if err != nil {
		return a.respondError(ctx, err)
	}

	var resp *DeleteSubmissionResponse
	del := NewDeleteSubmissionHandler(a.Repo).
		WithNotifier(a.Notifier).
		WithLogger(a.Logger)

	err = del.Execute(ctx.Context(), DeleteSubmissionMessage{
		ID:     payload.ID,
		UserID: userID.String(),
		Reason: payload.Reason,
		OnResponse: func(r *DeleteSubmissionResponse) {
			resp = r
		},
	})
	if err != nil {
		return a.respondError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"ok":      true,
		"already": resp.Already,
	})
}

// SendManageEmailRequest payload
type SendManageEmailRequest struct {
	ManageToken string `form:"manage_token" json:"manage_token"`
}

// Validate will run validation rules
func (r SendManageEmailRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ManageToken, validation.Required),
	)
}

func (a *IntakeController) SendManageEmailPost(ctx router.Context) error {
	payload := new(SendManageEmailRequest)

	if err := ctx.Bind(payload); err != nil {
		return a.respondError(ctx, NewMissingParameterError("manage_token"))
	}

	if err := payload.Validate(); err != nil {
		return a.respondError(ctx, NewMissingParameterError("manage_token"))
	}

	mail := a.MailNotifier
	if mail == nil {
		mail = a.Notifier
	}

	send := NewSendManageLinkHandler(a.Repo).
		WithNotifier(mail).
		WithLinks(a.Links).
		WithCredential(a.Credential).
		WithLogger(a.Logger)

	if err := send.Execute(ctx.Context(), SendManageLinkMessage{
		ManageToken: payload.ManageToken,
	}); err != nil {
		return a.respondError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{"ok": true})
}

// NotifyEditRequest payload
type NotifyEditRequest struct {
	ID      string         `form:"id" json:"id"`
	Name    string         `form:"name" json:"name"`
	Email   string         `form:"email" json:"email"`
	Changes map[string]any `form:"changes" json:"changes"`
}

func (a *IntakeController) NotifyEditPost(ctx router.Context) error {
	payload := new(NotifyEditRequest)

	// Edit alerts are advisory. This endpoint never fails the caller: a lost
	// alert must not break the edit flow that already committed.
	if err := ctx.Bind(payload); err != nil {
		a.Logger.Warn("notify-edit: unparseable payload: %s", err)
		return ctx.JSON(router.StatusOK, map[string]any{"ok": true})
	}

	if payload.ID != "" && len(payload.Changes) > 0 {
		Dispatch(a.Notifier, a.Logger, Event{
			Type:    EventEdit,
			ID:      payload.ID,
			Name:    payload.Name,
			Email:   payload.Email,
			Changes: payload.Changes,
		})
	}

	return ctx.JSON(router.StatusOK, map[string]any{"ok": true})
}

// submissionAccess authorizes a read or write on a submission row using the
// manage token when present, or the bearer session otherwise.
func (a *IntakeController) submissionAccess(ctx router.Context, manageToken string) (string, uuid.UUID, error) {
	if manageToken != "" {
		return manageToken, uuid.Nil, nil
	}

	if a.Verifier == nil {
		return "", uuid.Nil, NewUnauthenticatedError()
	}

	tokenString, err := bearerToken(ctx)
	if err != nil {
		return "", uuid.Nil, NewUnauthenticatedError()
	}

	claims, err := a.Verifier.Validate(tokenString)
	if err != nil {
		return "", uuid.Nil, err
	}

	userID, err := uuid.Parse(claims.UserID())
	if err != nil || userID == uuid.Nil {
		return "", uuid.Nil, NewUnauthenticatedError()
	}

	return "", userID, nil
}

func (a *IntakeController) SubmissionGet(ctx router.Context) error {
	id := ctx.Param("id", "")
	if id == "" {
		return a.respondError(ctx, NewMissingParameterError("id"))
	}

	manageToken, userID, err := a.submissionAccess(ctx, ctx.Query("manage_token", ""))
	if err != nil {
		return a.respondError(ctx, err)
	}

	record, err := a.Repo.Submissions().GetByID(ctx.Context(), id)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return a.respondError(ctx, NewSubmissionNotFoundError())
		}
		return a.respondError(ctx, err)
	}

	if manageToken != "" {
		if record.ManageToken == "" || record.ManageToken != manageToken {
			return a.respondError(ctx, NewForbiddenError())
		}
	} else if !record.IsOwnedBy(userID) {
		return a.respondError(ctx, NewForbiddenError())
	}

	if record.IsDeleted() {
		return a.respondError(ctx, NewSubmissionDeletedError())
	}

	body := map[string]any{"submission": publicView(record)}

	if record.PhotoPath != "" && a.Photos != nil && a.Photos.Configured() {
		if url, err := a.Photos.PresignView(ctx.Context(), record.PhotoPath); err != nil {
			a.Logger.Warn("failed to presign photo view: %s", err)
		} else {
			body["photo_url"] = url
		}
	}

	return ctx.JSON(router.StatusOK, body)
}

// UpdateSubmissionRequest payload
type UpdateSubmissionRequest struct {
	ManageToken string `form:"manage_token" json:"manage_token"`
	ProfileInput
}

// Validate will run validation rules
func (r UpdateSubmissionRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, is.Email),
	)
}

func (a *IntakeController) SubmissionPut(ctx router.Context) error {
	id := ctx.Param("id", "")
	if id == "" {
		return a.respondError(ctx, NewMissingParameterError("id"))
	}

	payload := new(UpdateSubmissionRequest)
	if err := ctx.Bind(payload); err != nil {
		return a.respondError(ctx, NewMissingParameterError("body"))
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(router.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": err,
		})
	}

	manageToken, userID, err := a.submissionAccess(ctx, payload.ManageToken)
	if err != nil {
		return a.respondError(ctx, err)
	}

	msg := UpdateProfileMessage{
		ID:          id,
		ManageToken: manageToken,
		Profile:     payload.ProfileInput,
	}
	if manageToken == "" {
		msg.UserID = userID.String()
	}

	var resp *UpdateProfileResponse
	msg.OnResponse = func(r *UpdateProfileResponse) {
		resp = r
	}

	update := NewUpdateProfileHandler(a.Repo).
		WithNotifier(a.Notifier).
		WithLogger(a.Logger)

	if err := update.Execute(ctx.Context(), msg); err != nil {
		return a.respondError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"submission": publicView(resp.Submission),
		"changed":    len(resp.Changes) > 0,
	})
}

// SubmissionPhotoRequest payload. The photo flow has two steps: a request with
// ext presigns an upload URL, and a follow-up with photo_path confirms that
// the client finished the upload. The key is only persisted on confirmation,
// so an abandoned presign never leaves the row pointing at a missing object.
type SubmissionPhotoRequest struct {
	ManageToken string `form:"manage_token" json:"manage_token"`
	Ext         string `form:"ext" json:"ext"`
	PhotoPath   string `form:"photo_path" json:"photo_path"`
}

func (a *IntakeController) SubmissionPhotoPost(ctx router.Context) error {
	id := ctx.Param("id", "")
	if id == "" {
		return a.respondError(ctx, NewMissingParameterError("id"))
	}

	payload := new(SubmissionPhotoRequest)
	if err := ctx.Bind(payload); err != nil {
		return a.respondError(ctx, NewMissingParameterError("body"))
	}

	manageToken, userID, err := a.submissionAccess(ctx, payload.ManageToken)
	if err != nil {
		return a.respondError(ctx, err)
	}

	record, err := a.Repo.Submissions().GetByID(ctx.Context(), id)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return a.respondError(ctx, NewSubmissionNotFoundError())
		}
		return a.respondError(ctx, err)
	}

	if manageToken != "" {
		if record.ManageToken == "" || record.ManageToken != manageToken {
			return a.respondError(ctx, NewForbiddenError())
		}
	} else if !record.IsOwnedBy(userID) {
		return a.respondError(ctx, NewForbiddenError())
	}

	if record.IsDeleted() {
		return a.respondError(ctx, NewSubmissionDeletedError())
	}

	if payload.PhotoPath != "" {
		return a.confirmPhotoUpload(ctx, record, payload.PhotoPath)
	}

	if a.Photos == nil || !a.Photos.Configured() {
		return a.respondError(ctx, NewMisconfiguredError("photo storage is not configured"))
	}

	key, uploadURL, err := a.Photos.PresignUpload(ctx.Context(), record.ID, payload.Ext)
	if err != nil {
		return a.respondError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"upload_url": uploadURL,
		"photo_path": key,
	})
}

// confirmPhotoUpload persists the photo key after the client finished the
// presigned upload. Keys that do not belong to the record are refused.
func (a *IntakeController) confirmPhotoUpload(ctx router.Context, record *Submission, key string) error {
	if !OwnsPhotoKey(record.ID, key) {
		return a.respondError(ctx, NewMissingParameterError("photo_path"))
	}

	if err := a.Repo.Submissions().SetPhotoPath(ctx.Context(), record.ID, key); err != nil {
		if repository.IsRecordNotFound(err) {
			return a.respondError(ctx, NewSubmissionDeletedError())
		}
		return a.respondError(ctx, err)
	}

	Dispatch(a.Notifier, a.Logger, Event{
		Type:  EventPhotoUpdate,
		ID:    record.ID.String(),
		Name:  record.FullName(),
		Email: record.Email,
	})

	return ctx.JSON(router.StatusOK, map[string]any{
		"ok":         true,
		"photo_path": key,
	})
}
