package intake_test

import (
	"context"
	"database/sql"
	"sync"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	intake "github.com/shlomoshadmi-byte/shidduch-portal"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"
)

type testLogger struct{}

func (testLogger) Debug(string, ...any) {}
func (testLogger) Info(string, ...any)  {}
func (testLogger) Warn(string, ...any)  {}
func (testLogger) Error(string, ...any) {}

// MockRepositoryManager implements intake.RepositoryManager
type MockRepositoryManager struct {
	mock.Mock
}

func (m *MockRepositoryManager) Submissions() intake.Submissions {
	args := m.Called()
	return args.Get(0).(intake.Submissions)
}

func (m *MockRepositoryManager) Validate() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockRepositoryManager) MustValidate() {
	m.Called()
}

// RunInTx invokes the callback with a zero Tx so the stubbed repositories
// drive the outcome; a stubbed error short-circuits instead.
func (m *MockRepositoryManager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(context.Context, bun.Tx) error) error {
	args := m.Called(ctx, opts, f)
	if err := args.Error(0); err != nil {
		return err
	}
	return f(ctx, bun.Tx{})
}

// MockSubmissions implements intake.Submissions. The embedded interface
// covers the generic repository surface; calls to anything not stubbed below
// panic, which is what we want in a test.
type MockSubmissions struct {
	mock.Mock
	intake.Submissions
}

func submissionResult(args mock.Arguments) (*intake.Submission, error) {
	var record *intake.Submission
	if v := args.Get(0); v != nil {
		record = v.(*intake.Submission)
	}
	return record, args.Error(1)
}

func (m *MockSubmissions) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*intake.Submission, error) {
	args := m.Called(ctx, id, criteria)
	return submissionResult(args)
}

func (m *MockSubmissions) GetByToken(ctx context.Context, kind intake.TokenKind, token string) (*intake.Submission, error) {
	args := m.Called(ctx, kind, token)
	return submissionResult(args)
}

func (m *MockSubmissions) GetByTokenTx(ctx context.Context, tx bun.IDB, kind intake.TokenKind, token string) (*intake.Submission, error) {
	args := m.Called(ctx, tx, kind, token)
	return submissionResult(args)
}

func (m *MockSubmissions) Claim(ctx context.Context, token string, userID uuid.UUID, manageToken, deleteToken string) (*intake.Submission, error) {
	args := m.Called(ctx, token, userID, manageToken, deleteToken)
	return submissionResult(args)
}

func (m *MockSubmissions) ClaimTx(ctx context.Context, tx bun.IDB, token string, userID uuid.UUID, manageToken, deleteToken string) (*intake.Submission, error) {
	args := m.Called(ctx, tx, token, userID, manageToken, deleteToken)
	return submissionResult(args)
}

func (m *MockSubmissions) SoftDelete(ctx context.Context, id uuid.UUID, reason string) (*intake.Submission, error) {
	args := m.Called(ctx, id, reason)
	return submissionResult(args)
}

func (m *MockSubmissions) SoftDeleteTx(ctx context.Context, tx bun.IDB, id uuid.UUID, reason string) (*intake.Submission, error) {
	args := m.Called(ctx, tx, id, reason)
	return submissionResult(args)
}

func (m *MockSubmissions) UpdateProfile(ctx context.Context, record *intake.Submission) (*intake.Submission, error) {
	args := m.Called(ctx, record)
	return submissionResult(args)
}

func (m *MockSubmissions) UpdateProfileTx(ctx context.Context, tx bun.IDB, record *intake.Submission) (*intake.Submission, error) {
	args := m.Called(ctx, tx, record)
	return submissionResult(args)
}

func (m *MockSubmissions) SetPhotoPath(ctx context.Context, id uuid.UUID, path string) error {
	args := m.Called(ctx, id, path)
	return args.Error(0)
}

func (m *MockSubmissions) SetPhotoPathTx(ctx context.Context, tx bun.IDB, id uuid.UUID, path string) error {
	args := m.Called(ctx, tx, id, path)
	return args.Error(0)
}

// captureNotifier records deliveries and signals each one so tests can wait
// for the detached dispatch goroutine.
type captureNotifier struct {
	mu     sync.Mutex
	events []intake.Event
	ch     chan intake.Event
	err    error
}

func newCaptureNotifier() *captureNotifier {
	return &captureNotifier{ch: make(chan intake.Event, 8)}
}

func (c *captureNotifier) Notify(_ context.Context, event intake.Event) error {
	c.mu.Lock()
	c.events = append(c.events, event)
	err := c.err
	c.mu.Unlock()
	c.ch <- event
	return err
}

func (c *captureNotifier) Events() []intake.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]intake.Event, len(c.events))
	copy(out, c.events)
	return out
}
