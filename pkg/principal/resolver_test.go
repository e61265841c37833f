package principal

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/boogy/health-journal/pkg/store"
	"github.com/boogy/health-journal/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockUserRepository is a mock implementation of UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) FindBySubject(ctx context.Context, subject string) (*types.User, error) {
	args := m.Called(ctx, subject)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.User), args.Error(1)
}

func (m *MockUserRepository) Insert(ctx context.Context, user *types.User) (int64, error) {
	args := m.Called(ctx, user)
	return args.Get(0).(int64), args.Error(1)
}

// memoryUsers enforces a unique subject like the real table does.
type memoryUsers struct {
	mu      sync.Mutex
	bySub   map[string]*types.User
	nextID  int64
	inserts int
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{bySub: make(map[string]*types.User)}
}

func (m *memoryUsers) FindBySubject(_ context.Context, subject string) (*types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.bySub[subject]; ok {
		return u, nil
	}
	return nil, store.ErrNotFound
}

func (m *memoryUsers) Insert(_ context.Context, user *types.User) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bySub[user.Subject]; ok {
		return 0, store.ErrDuplicate
	}
	m.nextID++
	m.inserts++
	stored := *user
	stored.ID = m.nextID
	m.bySub[user.Subject] = &stored
	return stored.ID, nil
}

func TestResolveExistingUser(t *testing.T) {
	repo := new(MockUserRepository)
	repo.On("FindBySubject", mock.Anything, "abc-123").Return(&types.User{ID: 7, Subject: "abc-123"}, nil)

	id, err := NewResolver(repo).Resolve(context.Background(), "abc-123", "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	repo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestResolveCreatesUser(t *testing.T) {
	repo := new(MockUserRepository)
	repo.On("FindBySubject", mock.Anything, "abc-123").Return(nil, store.ErrNotFound)
	repo.On("Insert", mock.Anything, mock.MatchedBy(func(u *types.User) bool {
		return u.Subject == "abc-123" && u.Email == "a@b.com" &&
			u.FirstName == PlaceholderFirstName && u.LastName == PlaceholderLastName
	})).Return(int64(42), nil)

	id, err := NewResolver(repo).Resolve(context.Background(), "abc-123", "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	repo.AssertExpectations(t)
}

func TestResolveDuplicateInsertRereads(t *testing.T) {
	repo := new(MockUserRepository)
	repo.On("FindBySubject", mock.Anything, "abc-123").Return(nil, store.ErrNotFound).Once()
	repo.On("Insert", mock.Anything, mock.Anything).Return(int64(0), store.ErrDuplicate)
	repo.On("FindBySubject", mock.Anything, "abc-123").Return(&types.User{ID: 9}, nil).Once()

	id, err := NewResolver(repo).Resolve(context.Background(), "abc-123", "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, int64(9), id)
	repo.AssertExpectations(t)
}

func TestResolvePersistenceFailures(t *testing.T) {
	dbDown := errors.New("connection reset")

	tests := []struct {
		name  string
		setup func(*MockUserRepository)
	}{
		{
			name: "find fails",
			setup: func(r *MockUserRepository) {
				r.On("FindBySubject", mock.Anything, "abc-123").Return(nil, dbDown)
			},
		},
		{
			name: "insert fails",
			setup: func(r *MockUserRepository) {
				r.On("FindBySubject", mock.Anything, "abc-123").Return(nil, store.ErrNotFound)
				r.On("Insert", mock.Anything, mock.Anything).Return(int64(0), dbDown)
			},
		},
		{
			name: "re-read fails",
			setup: func(r *MockUserRepository) {
				r.On("FindBySubject", mock.Anything, "abc-123").Return(nil, store.ErrNotFound).Once()
				r.On("Insert", mock.Anything, mock.Anything).Return(int64(0), store.ErrDuplicate)
				r.On("FindBySubject", mock.Anything, "abc-123").Return(nil, dbDown).Once()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockUserRepository)
			tt.setup(repo)

			_, err := NewResolver(repo).Resolve(context.Background(), "abc-123", "a@b.com")
			assert.ErrorIs(t, err, ErrPersistence)
		})
	}
}

func TestResolveEmptySubject(t *testing.T) {
	_, err := NewResolver(newMemoryUsers()).Resolve(context.Background(), "", "a@b.com")
	assert.ErrorIs(t, err, ErrPersistence)
}

func TestResolveIsIdempotent(t *testing.T) {
	repo := newMemoryUsers()
	r := NewResolver(repo)

	first, err := r.Resolve(context.Background(), "abc-123", "a@b.com")
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), "abc-123", "a@b.com")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, repo.inserts)
}

func TestResolveConcurrentFirstSight(t *testing.T) {
	repo := newMemoryUsers()
	r := NewResolver(repo)

	const n = 32
	ids := make([]int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := r.Resolve(context.Background(), "new-subject", "n@b.com")
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, repo.inserts)
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestPrincipalContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ctx := WithPrincipal(context.Background(), Principal{UserID: 42})
	p, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, int64(42), p.UserID)
	assert.Equal(t, "42", p.String())
}
