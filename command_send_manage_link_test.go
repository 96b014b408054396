package intake_test

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	intake "github.com/shlomoshadmi-byte/shidduch-portal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestSendManageLinkHandlerDeliversSynchronously(t *testing.T) {
	ctx := context.Background()
	repo := &MockRepositoryManager{}
	subs := &MockSubmissions{}
	notifier := newCaptureNotifier()

	record := &intake.Submission{
		ID:          uuid.New(),
		ManageToken: "manage-tok",
		DeleteToken: "delete-tok",
		FirstName:   "Sara",
		Surname:     "Gold",
		Email:       "sara@example.com",
	}

	repo.On("Submissions").Return(subs)
	subs.On("GetByToken", mock.Anything, intake.ManageTokenKind, "manage-tok").
		Return(record, nil).Once()

	links := intake.NewLinkBuilder("https://portal.example.com")
	handler := intake.NewSendManageLinkHandler(repo).
		WithNotifier(notifier).
		WithLinks(&links).
		WithCredential("service-secret").
		WithLogger(testLogger{})

	err := handler.Execute(ctx, intake.SendManageLinkMessage{ManageToken: "manage-tok"})
	require.NoError(t, err)

	events := notifier.Events()
	require.Len(t, events, 1)
	require.Equal(t, intake.EventManageLink, events[0].Type)
	require.Equal(t, "sara@example.com", events[0].Email)
	require.Equal(t, "https://portal.example.com/manage/manage-tok", events[0].ManageURL)
	require.Equal(t, "https://portal.example.com/delete/delete-tok", events[0].DeleteURL)

	repo.AssertExpectations(t)
	subs.AssertExpectations(t)
}

func TestSendManageLinkHandlerRefusesWithoutCredential(t *testing.T) {
	ctx := context.Background()
	repo := &MockRepositoryManager{}

	links := intake.NewLinkBuilder("https://portal.example.com")
	handler := intake.NewSendManageLinkHandler(repo).
		WithLinks(&links).
		WithLogger(testLogger{})

	err := handler.Execute(ctx, intake.SendManageLinkMessage{ManageToken: "manage-tok"})
	require.Error(t, err)
	require.Equal(t, 500, intake.HTTPStatus(err))
}

func TestSendManageLinkHandlerSurfacesDeliveryFailure(t *testing.T) {
	ctx := context.Background()
	repo := &MockRepositoryManager{}
	subs := &MockSubmissions{}

	notifier := newCaptureNotifier()
	notifier.err = errors.New("hook down")

	record := &intake.Submission{ID: uuid.New(), ManageToken: "manage-tok"}

	repo.On("Submissions").Return(subs)
	subs.On("GetByToken", mock.Anything, intake.ManageTokenKind, "manage-tok").
		Return(record, nil).Once()

	links := intake.NewLinkBuilder("https://portal.example.com")
	handler := intake.NewSendManageLinkHandler(repo).
		WithNotifier(notifier).
		WithLinks(&links).
		WithCredential("service-secret").
		WithLogger(testLogger{})

	err := handler.Execute(ctx, intake.SendManageLinkMessage{ManageToken: "manage-tok"})
	require.Error(t, err)
	require.Equal(t, 502, intake.HTTPStatus(err))
}

func TestSendManageLinkHandlerUnknownToken(t *testing.T) {
	ctx := context.Background()
	repo := &MockRepositoryManager{}
	subs := &MockSubmissions{}

	repo.On("Submissions").Return(subs)
	subs.On("GetByToken", mock.Anything, intake.ManageTokenKind, "nope").
		Return(nil, repository.NewRecordNotFound()).Once()

	links := intake.NewLinkBuilder("https://portal.example.com")
	handler := intake.NewSendManageLinkHandler(repo).
		WithNotifier(newCaptureNotifier()).
		WithLinks(&links).
		WithCredential("service-secret").
		WithLogger(testLogger{})

	err := handler.Execute(ctx, intake.SendManageLinkMessage{ManageToken: "nope"})
	require.Error(t, err)
	require.Equal(t, 404, intake.HTTPStatus(err))
}
