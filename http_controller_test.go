package intake_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
	intake "github.com/shlomoshadmi-byte/shidduch-portal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestIntakeController(repo intake.RepositoryManager, opts ...intake.IntakeControllerOption) *intake.IntakeController {
	base := []intake.IntakeControllerOption{
		intake.WithControllerRepo(repo),
		intake.WithControllerLogger(testLogger{}),
	}
	return intake.NewIntakeController(append(base, opts...)...)
}

func bindAs[T any](value T) func(mock.Arguments) {
	return func(args mock.Arguments) {
		*args.Get(0).(*T) = value
	}
}

func TestClaimPostRequiresSession(t *testing.T) {
	repo := &MockRepositoryManager{}
	subs := &MockSubmissions{}
	repo.On("Submissions").Return(subs)

	controller := newTestIntakeController(repo)

	ctx := router.NewMockContext()
	ctx.On("Bind", mock.Anything).
		Run(bindAs(intake.ClaimRequest{Token: "claim-tok"})).
		Return(nil)

	var body map[string]any
	ctx.On("JSON", router.StatusUnauthorized, mock.Anything).Run(func(args mock.Arguments) {
		body = args.Get(1).(map[string]any)
	}).Return(nil).Once()

	require.NoError(t, controller.ClaimPost(ctx))
	require.Contains(t, body, "error")
	ctx.AssertExpectations(t)
}

func TestClaimPostValidationFieldShape(t *testing.T) {
	repo := &MockRepositoryManager{}
	subs := &MockSubmissions{}
	repo.On("Submissions").Return(subs)

	controller := newTestIntakeController(repo)

	ctx := router.NewMockContext()
	ctx.On("Bind", mock.Anything).
		Run(bindAs(intake.ClaimRequest{})).
		Return(nil)

	var body map[string]any
	ctx.On("JSON", router.StatusBadRequest, mock.Anything).Run(func(args mock.Arguments) {
		body = args.Get(1).(map[string]any)
	}).Return(nil).Once()

	require.NoError(t, controller.ClaimPost(ctx))
	require.Equal(t, "validation failed", body["error"])
	require.Contains(t, body, "fields")
	ctx.AssertExpectations(t)
}

func TestClaimPostReturnsCredentials(t *testing.T) {
	repo := &MockRepositoryManager{}
	subs := &MockSubmissions{}
	userID := uuid.New()

	claimed := &intake.Submission{
		ID:          uuid.New(),
		UserID:      &userID,
		ManageToken: "manage-abc",
		DeleteToken: "delete-abc",
		FirstName:   "Rivka",
		Surname:     "Stein",
		Email:       "rivka@example.com",
	}

	repo.On("Submissions").Return(subs)
	repo.On("RunInTx", mock.Anything, (*sql.TxOptions)(nil), mock.Anything).
		Return(nil).Once()
	subs.On("ClaimTx", mock.Anything, mock.Anything, "claim-tok", userID, mock.Anything, mock.Anything).
		Return(claimed, nil).Once()

	controller := newTestIntakeController(repo)

	ctx := router.NewMockContext()
	ctx.LocalsMock[intake.SessionContextKey] = &intake.SessionClaims{UID: userID.String()}
	ctx.On("Context").Return(context.Background())
	ctx.On("Bind", mock.Anything).
		Run(bindAs(intake.ClaimRequest{Token: "claim-tok"})).
		Return(nil)

	var body map[string]any
	ctx.On("JSON", router.StatusOK, mock.Anything).Run(func(args mock.Arguments) {
		body = args.Get(1).(map[string]any)
	}).Return(nil).Once()

	require.NoError(t, controller.ClaimPost(ctx))
	require.Equal(t, claimed.ID.String(), body["id"])
	require.Equal(t, "manage-abc", body["manage_token"])
	require.Equal(t, "delete-abc", body["delete_token"])

	repo.AssertExpectations(t)
	subs.AssertExpectations(t)
}

func TestResolveManageTokenPostReturnsSubmission(t *testing.T) {
	repo := &MockRepositoryManager{}
	subs := &MockSubmissions{}

	record := &intake.Submission{
		ID:          uuid.New(),
		ClaimToken:  "should-never-leak",
		ManageToken: "manage-tok",
		FirstName:   "Dov",
	}

	repo.On("Submissions").Return(subs)
	subs.On("GetByToken", mock.Anything, intake.ManageTokenKind, "manage-tok").
		Return(record, nil).Once()

	controller := newTestIntakeController(repo)

	ctx := router.NewMockContext()
	ctx.On("Context").Return(context.Background())
	ctx.On("Bind", mock.Anything).
		Run(bindAs(intake.ResolveTokenRequest{Token: "manage-tok"})).
		Return(nil)

	var body map[string]any
	ctx.On("JSON", router.StatusOK, mock.Anything).Run(func(args mock.Arguments) {
		body = args.Get(1).(map[string]any)
	}).Return(nil).Once()

	require.NoError(t, controller.ResolveManageTokenPost(ctx))
	require.Equal(t, record.ID, body["id"])

	view, ok := body["submission"].(*intake.Submission)
	require.True(t, ok)
	require.Empty(t, view.ClaimToken)
	require.Equal(t, "Dov", view.FirstName)
}

func TestResolveManageTokenPostAnswersGoneForDeleted(t *testing.T) {
	repo := &MockRepositoryManager{}
	subs := &MockSubmissions{}

	now := time.Now()
	record := &intake.Submission{
		ID:          uuid.New(),
		ManageToken: "manage-tok",
		DeletedAt:   &now,
	}

	repo.On("Submissions").Return(subs)
	subs.On("GetByToken", mock.Anything, intake.ManageTokenKind, "manage-tok").
		Return(record, nil).Once()

	controller := newTestIntakeController(repo)

	ctx := router.NewMockContext()
	ctx.On("Context").Return(context.Background())
	ctx.On("Bind", mock.Anything).
		Run(bindAs(intake.ResolveTokenRequest{Token: "manage-tok"})).
		Return(nil)

	var body map[string]any
	ctx.On("JSON", router.StatusGone, mock.Anything).Run(func(args mock.Arguments) {
		body = args.Get(1).(map[string]any)
	}).Return(nil).Once()

	require.NoError(t, controller.ResolveManageTokenPost(ctx))
	require.Equal(t, true, body["deleted"])
	require.Equal(t, record.ID, body["id"])
}

func TestResolveManageTokenPostUnknownToken(t *testing.T) {
	repo := &MockRepositoryManager{}
	subs := &MockSubmissions{}

	repo.On("Submissions").Return(subs)
	subs.On("GetByToken", mock.Anything, intake.ManageTokenKind, "nope").
		Return(nil, repository.NewRecordNotFound()).Once()

	controller := newTestIntakeController(repo)

	ctx := router.NewMockContext()
	ctx.On("Context").Return(context.Background())
	ctx.On("Bind", mock.Anything).
		Run(bindAs(intake.ResolveTokenRequest{Token: "nope"})).
		Return(nil)

	ctx.On("JSON", router.StatusNotFound, mock.Anything).Return(nil).Once()

	require.NoError(t, controller.ResolveManageTokenPost(ctx))
	ctx.AssertExpectations(t)
}

func TestNotifyEditPostSwallowsBadPayload(t *testing.T) {
	repo := &MockRepositoryManager{}
	subs := &MockSubmissions{}
	repo.On("Submissions").Return(subs)

	controller := newTestIntakeController(repo)

	ctx := router.NewMockContext()
	ctx.On("Bind", mock.Anything).Return(errors.New("unparseable"))

	var body map[string]any
	ctx.On("JSON", router.StatusOK, mock.Anything).Run(func(args mock.Arguments) {
		body = args.Get(1).(map[string]any)
	}).Return(nil).Once()

	require.NoError(t, controller.NotifyEditPost(ctx))
	require.Equal(t, true, body["ok"])
}

func TestNotifyEditPostDispatchesEvent(t *testing.T) {
	repo := &MockRepositoryManager{}
	subs := &MockSubmissions{}
	notifier := newCaptureNotifier()
	repo.On("Submissions").Return(subs)

	controller := newTestIntakeController(repo, intake.WithControllerNotifier(notifier))

	ctx := router.NewMockContext()
	ctx.On("Bind", mock.Anything).
		Run(bindAs(intake.NotifyEditRequest{
			ID:      "some-id",
			Name:    "Dov Katz",
			Changes: map[string]any{"city": "Jerusalem"},
		})).
		Return(nil)
	ctx.On("JSON", router.StatusOK, mock.Anything).Return(nil).Once()

	require.NoError(t, controller.NotifyEditPost(ctx))

	select {
	case event := <-notifier.ch:
		require.Equal(t, intake.EventEdit, event.Type)
		require.Equal(t, "some-id", event.ID)
		require.Equal(t, map[string]any{"city": "Jerusalem"}, event.Changes)
	case <-time.After(2 * time.Second):
		t.Fatal("edit event was not dispatched")
	}
}

func TestSubmissionPhotoPostPresignDoesNotPersist(t *testing.T) {
	repo := &MockRepositoryManager{}
	subs := &MockSubmissions{}

	record := &intake.Submission{
		ID:          uuid.New(),
		ManageToken: "manage-tok",
	}

	repo.On("Submissions").Return(subs)
	subs.On("GetByID", mock.Anything, record.ID.String(), mock.Anything).
		Return(record, nil).Once()

	photos := intake.NewPhotoStore(intake.PhotoStoreConfig{
		Endpoint:  "http://127.0.0.1:9000",
		Region:    "us-east-1",
		Bucket:    "intake-photos",
		AccessKey: "test-access",
		SecretKey: "test-secret",
	}).WithLogger(testLogger{})

	controller := newTestIntakeController(repo, intake.WithControllerPhotos(photos))

	ctx := router.NewMockContext()
	ctx.ParamsM["id"] = record.ID.String()
	ctx.On("Context").Return(context.Background())
	ctx.On("Bind", mock.Anything).
		Run(bindAs(intake.SubmissionPhotoRequest{ManageToken: "manage-tok", Ext: "png"})).
		Return(nil)

	var body map[string]any
	ctx.On("JSON", router.StatusOK, mock.Anything).Run(func(args mock.Arguments) {
		body = args.Get(1).(map[string]any)
	}).Return(nil).Once()

	require.NoError(t, controller.SubmissionPhotoPost(ctx))
	require.Equal(t, intake.PhotoKey(record.ID, "png"), body["photo_path"])
	require.NotEmpty(t, body["upload_url"])

	// Nothing hits the row until the client confirms the upload.
	subs.AssertNotCalled(t, "SetPhotoPath", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmissionPhotoPostConfirmStoresKey(t *testing.T) {
	repo := &MockRepositoryManager{}
	subs := &MockSubmissions{}
	notifier := newCaptureNotifier()

	record := &intake.Submission{
		ID:          uuid.New(),
		ManageToken: "manage-tok",
		FirstName:   "Rivka",
		Email:       "rivka@example.com",
	}
	key := intake.PhotoKey(record.ID, "jpg")

	repo.On("Submissions").Return(subs)
	subs.On("GetByID", mock.Anything, record.ID.String(), mock.Anything).
		Return(record, nil).Once()
	subs.On("SetPhotoPath", mock.Anything, record.ID, key).
		Return(nil).Once()

	controller := newTestIntakeController(repo, intake.WithControllerNotifier(notifier))

	ctx := router.NewMockContext()
	ctx.ParamsM["id"] = record.ID.String()
	ctx.On("Context").Return(context.Background())
	ctx.On("Bind", mock.Anything).
		Run(bindAs(intake.SubmissionPhotoRequest{ManageToken: "manage-tok", PhotoPath: key})).
		Return(nil)

	var body map[string]any
	ctx.On("JSON", router.StatusOK, mock.Anything).Run(func(args mock.Arguments) {
		body = args.Get(1).(map[string]any)
	}).Return(nil).Once()

	require.NoError(t, controller.SubmissionPhotoPost(ctx))
	require.Equal(t, true, body["ok"])
	require.Equal(t, key, body["photo_path"])

	select {
	case event := <-notifier.ch:
		require.Equal(t, intake.EventPhotoUpdate, event.Type)
		require.Equal(t, record.ID.String(), event.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("photo update event was not dispatched")
	}

	subs.AssertExpectations(t)
}

func TestSubmissionPhotoPostRefusesForeignKey(t *testing.T) {
	repo := &MockRepositoryManager{}
	subs := &MockSubmissions{}

	record := &intake.Submission{
		ID:          uuid.New(),
		ManageToken: "manage-tok",
	}
	foreign := intake.PhotoKey(uuid.New(), "jpg")

	repo.On("Submissions").Return(subs)
	subs.On("GetByID", mock.Anything, record.ID.String(), mock.Anything).
		Return(record, nil).Once()

	controller := newTestIntakeController(repo)

	ctx := router.NewMockContext()
	ctx.ParamsM["id"] = record.ID.String()
	ctx.On("Context").Return(context.Background())
	ctx.On("Bind", mock.Anything).
		Run(bindAs(intake.SubmissionPhotoRequest{ManageToken: "manage-tok", PhotoPath: foreign})).
		Return(nil)

	ctx.On("JSON", router.StatusBadRequest, mock.Anything).Return(nil).Once()

	require.NoError(t, controller.SubmissionPhotoPost(ctx))
	subs.AssertNotCalled(t, "SetPhotoPath", mock.Anything, mock.Anything, mock.Anything)
	ctx.AssertExpectations(t)
}
