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

// ProfileInput is the full mutable field set. The edit form always posts the
// complete snapshot; fields left blank clear their columns.
type ProfileInput struct {
	FirstName   string `json:"first_name"`
	Surname     string `json:"surname"`
	FatherName  string `json:"father_name"`
	MotherName  string `json:"mother_name"`
	DateOfBirth string `json:"date_of_birth"`
	City        string `json:"city"`
	Country     string `json:"country"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`

	ContactName            string   `json:"contact_name"`
	PreferredCommunication []string `json:"preferred_communication"`

	Languages     string `json:"languages"`
	Gender        string `json:"gender"`
	Height        string `json:"height"`
	Community     string `json:"community"`
	MaritalStatus string `json:"marital_status"`
	Children      string `json:"children"`
	Occupation    string `json:"occupation"`

	TheirOccupation string   `json:"their_occupation"`
	TheirCommunity  string   `json:"their_community"`
	TheirLanguages  string   `json:"their_languages"`
	TheirStatus     []string `json:"their_status"`

	AboutMe    string `json:"about_me"`
	AboutThem  string `json:"about_them"`
	References string `json:"references"`
}

// UpdateProfileMessage edits a submission's mutable fields. The caller
// authorizes with the record's manage token or as the authenticated owner.
type UpdateProfileMessage struct {
	ID          string `json:"id"`
	ManageToken string `json:"manage_token,omitempty"`
	UserID      string `json:"user_id,omitempty"`
	Profile     ProfileInput
	OnResponse  func(resp *UpdateProfileResponse)
}

func (m UpdateProfileMessage) Type() string { return "submission.update_profile" }

type UpdateProfileResponse struct {
	Submission *Submission
	// Changes holds only the fields that differ from the stored row, keyed by
	// column. Cosmetic: it feeds the EDIT alert, never conflict detection.
	Changes map[string]any
}

type UpdateProfileHandler struct {
	repo     RepositoryManager
	notifier Notifier
	logger   Logger
}

// NewUpdateProfileHandler creates a handler with sane defaults.
func NewUpdateProfileHandler(repo RepositoryManager) *UpdateProfileHandler {
	return &UpdateProfileHandler{
		repo:     repo,
		notifier: noopNotifier{},
		logger:   defLogger{},
	}
}

// WithNotifier sets the sink used to emit edit alerts.
func (h *UpdateProfileHandler) WithNotifier(n Notifier) *UpdateProfileHandler {
	h.notifier = normalizeNotifier(n)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *UpdateProfileHandler) WithLogger(logger Logger) *UpdateProfileHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *UpdateProfileHandler) Execute(ctx context.Context, event UpdateProfileMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during profile update",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *UpdateProfileHandler) execute(ctx context.Context, event UpdateProfileMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if event.ID == "" {
		return NewMissingParameterError("id")
	}

	var updated *Submission
	var changes map[string]any

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := h.repo.Submissions().GetByID(ctx, event.ID)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return NewSubmissionNotFoundError()
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load submission")
		}

		if err := authorizeEdit(record, event); err != nil {
			return err
		}

		if record.IsDeleted() {
			return NewSubmissionDeletedError()
		}

		changes = event.Profile.apply(record)
		if len(changes) == 0 {
			updated = record
			return nil
		}

		updated, err = h.repo.Submissions().UpdateProfileTx(ctx, tx, record)
		if err == nil {
			return nil
		}

		if repository.IsRecordNotFound(err) {
			// The guarded update refused the write: the row was deleted
			// between our read and the update.
			return NewSubmissionDeletedError()
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update submission profile")
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "profile update transaction failed")
	}

	if len(changes) > 0 {
		Dispatch(h.notifier, h.logger, Event{
			Type:    EventEdit,
			ID:      updated.ID.String(),
			Name:    updated.FullName(),
			Email:   updated.Email,
			Changes: changes,
		})
	}

	if event.OnResponse != nil {
		event.OnResponse(&UpdateProfileResponse{
			Submission: updated,
			Changes:    changes,
		})
	}

	return nil
}

// authorizeEdit accepts either the record's manage token or the owner's
// identity. Mismatches are Forbidden, uniformly with the delete path.
func authorizeEdit(record *Submission, event UpdateProfileMessage) error {
	if event.ManageToken != "" {
		if record.ManageToken != "" && record.ManageToken == event.ManageToken {
			return nil
		}
		return NewForbiddenError()
	}

	userID, err := uuid.Parse(event.UserID)
	if err != nil || userID == uuid.Nil {
		return NewUnauthenticatedError()
	}

	if !record.IsOwnedBy(userID) {
		return NewForbiddenError()
	}

	return nil
}

// apply copies the input onto the record and reports the changed columns.
func (in ProfileInput) apply(record *Submission) map[string]any {
	changes := map[string]any{}

	setString := func(column string, dst *string, val string) {
		if *dst != val {
			changes[column] = val
			*dst = val
		}
	}
	setList := func(column string, dst *[]string, val []string) {
		val = normalizeList(val)
		if !equalList(*dst, val) {
			changes[column] = val
			*dst = val
		}
	}

	setString("first_name", &record.FirstName, in.FirstName)
	setString("surname", &record.Surname, in.Surname)
	setString("father_name", &record.FatherName, in.FatherName)
	setString("mother_name", &record.MotherName, in.MotherName)
	setString("date_of_birth", &record.DateOfBirth, in.DateOfBirth)
	setString("city", &record.City, in.City)
	setString("country", &record.Country, in.Country)
	setString("phone", &record.Phone, in.Phone)
	setString("email", &record.Email, in.Email)
	setString("contact_name", &record.ContactName, in.ContactName)
	setList("preferred_communication", &record.PreferredCommunication, in.PreferredCommunication)
	setString("languages", &record.Languages, in.Languages)
	setString("gender", &record.Gender, in.Gender)
	setString("height", &record.Height, in.Height)
	setString("community", &record.Community, in.Community)
	setString("marital_status", &record.MaritalStatus, in.MaritalStatus)
	setString("children", &record.Children, in.Children)
	setString("occupation", &record.Occupation, in.Occupation)
	setString("their_occupation", &record.TheirOccupation, in.TheirOccupation)
	setString("their_community", &record.TheirCommunity, in.TheirCommunity)
	setString("their_languages", &record.TheirLanguages, in.TheirLanguages)
	setList("their_status", &record.TheirStatus, in.TheirStatus)
	setString("about_me", &record.AboutMe, in.AboutMe)
	setString("about_them", &record.AboutThem, in.AboutThem)
	setString("references", &record.References, in.References)

	return changes
}

func normalizeList(vals []string) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func equalList(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
