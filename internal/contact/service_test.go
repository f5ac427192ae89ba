package contact

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/touristguard/internal/model"
	"github.com/hitoshi/touristguard/internal/security"
)

// memoryContactRepo はContactRepositoryのテスト用実装。
type memoryContactRepo struct {
	mu       sync.Mutex
	contacts map[string]*model.EmergencyContact
	next     int
	err      error
}

func newMemoryContactRepo() *memoryContactRepo {
	return &memoryContactRepo{contacts: make(map[string]*model.EmergencyContact)}
}

func (r *memoryContactRepo) ListByUserID(_ context.Context, userID string) ([]*model.EmergencyContact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	var out []*model.EmergencyContact
	for _, c := range r.contacts {
		if c.UserID == userID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (r *memoryContactRepo) FindByID(_ context.Context, userID, id string) (*model.EmergencyContact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contacts[id]
	if !ok || c.UserID != userID {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *memoryContactRepo) Create(_ context.Context, c *model.EmergencyContact, limit int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}
	count := 0
	for _, existing := range r.contacts {
		if existing.UserID == c.UserID {
			count++
		}
	}
	if count >= limit {
		return false, nil
	}
	c.Position = r.next
	r.next++
	cp := *c
	r.contacts[c.ID] = &cp
	return true, nil
}

func (r *memoryContactRepo) Update(_ context.Context, c *model.EmergencyContact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.contacts[c.ID] = &cp
	return nil
}

func (r *memoryContactRepo) Delete(_ context.Context, userID, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contacts[id]
	if !ok || c.UserID != userID {
		return false, nil
	}
	delete(r.contacts, id)
	return true, nil
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

func newTestService() (*Service, *memoryContactRepo) {
	repo := newMemoryContactRepo()
	return NewService(repo, security.NewTextSanitizer()), repo
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, code, apiErr.Code)
}

func TestAdd_NormalizesInput(t *testing.T) {
	svc, _ := newTestService()

	c, err := svc.Add(context.Background(), "u1", CreateInput{
		Name:         "  <b>Ravi</b> ",
		Phone:        "98765 43210",
		Relationship: "Brother",
	})
	require.NoError(t, err)

	assert.Equal(t, "Ravi", c.Name)
	assert.Equal(t, "+919876543210", c.Phone)
	assert.Equal(t, 1, c.Priority)
	assert.NotEmpty(t, c.ID)
}

func TestAdd_PriorityClamped(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{0, 1}, {-4, 1}, {1, 1}, {2, 2}, {3, 3}, {9, 3},
	}
	for _, tt := range tests {
		svc, _ := newTestService()
		c, err := svc.Add(context.Background(), "u1", CreateInput{Name: "A", Phone: "9876543210", Relationship: "Friend", Priority: intPtr(tt.in)})
		require.NoError(t, err)
		assert.Equal(t, tt.want, c.Priority, "priority %d", tt.in)
	}
}

func TestAdd_RequiredFields(t *testing.T) {
	tests := []struct {
		name string
		in   CreateInput
	}{
		{"missing name", CreateInput{Phone: "9876543210", Relationship: "Friend"}},
		{"markup-only name", CreateInput{Name: "<i></i>", Phone: "9876543210", Relationship: "Friend"}},
		{"missing relationship", CreateInput{Name: "A", Phone: "9876543210"}},
		{"bad phone", CreateInput{Name: "A", Phone: "123", Relationship: "Friend"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo := newTestService()
			_, err := svc.Add(context.Background(), "u1", tt.in)
			requireCode(t, err, model.ErrCodeInvalidRequest)
			assert.Empty(t, repo.contacts)
		})
	}
}

func TestAdd_LimitOfFive(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	for i := 0; i < model.MaxEmergencyContacts; i++ {
		_, err := svc.Add(ctx, "u1", CreateInput{Name: "C", Phone: "9876543210", Relationship: "Friend"})
		require.NoError(t, err)
	}

	_, err := svc.Add(ctx, "u1", CreateInput{Name: "Sixth", Phone: "9876543210", Relationship: "Friend"})
	requireCode(t, err, model.ErrCodeContactLimit)

	list, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, model.MaxEmergencyContacts)
}

func TestList_PreservesOrderAfterDelete(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	var ids []string
	for _, name := range []string{"A", "B", "C"} {
		c, err := svc.Add(ctx, "u1", CreateInput{Name: name, Phone: "9876543210", Relationship: "Friend"})
		require.NoError(t, err)
		ids = append(ids, c.ID)
	}

	require.NoError(t, svc.Delete(ctx, "u1", ids[1]))

	list, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "A", list[0].Name)
	assert.Equal(t, "C", list[1].Name)
}

func TestUpdate_Partial(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	c, err := svc.Add(ctx, "u1", CreateInput{Name: "A", Phone: "9876543210", Relationship: "Friend", Priority: intPtr(2)})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, "u1", c.ID, UpdateInput{Phone: strPtr("+14155550100"), Priority: intPtr(7)})
	require.NoError(t, err)

	assert.Equal(t, "A", updated.Name)
	assert.Equal(t, "Friend", updated.Relationship)
	assert.Equal(t, "+14155550100", updated.Phone)
	assert.Equal(t, 3, updated.Priority)
	assert.Equal(t, c.Position, updated.Position)
}

func TestUpdate_NotFoundAndOtherUser(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	c, err := svc.Add(ctx, "u1", CreateInput{Name: "A", Phone: "9876543210", Relationship: "Friend"})
	require.NoError(t, err)

	_, err = svc.Update(ctx, "u1", "missing", UpdateInput{Name: strPtr("B")})
	requireCode(t, err, model.ErrCodeContactNotFound)

	_, err = svc.Update(ctx, "u2", c.ID, UpdateInput{Name: strPtr("B")})
	requireCode(t, err, model.ErrCodeContactNotFound)
}

func TestUpdate_RejectsEmptyName(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	c, err := svc.Add(ctx, "u1", CreateInput{Name: "A", Phone: "9876543210", Relationship: "Friend"})
	require.NoError(t, err)

	_, err = svc.Update(ctx, "u1", c.ID, UpdateInput{Name: strPtr("   ")})
	requireCode(t, err, model.ErrCodeInvalidRequest)
}

func TestDelete_NotFound(t *testing.T) {
	svc, _ := newTestService()

	err := svc.Delete(context.Background(), "u1", "missing")

	requireCode(t, err, model.ErrCodeContactNotFound)
}

func TestList_RepositoryError(t *testing.T) {
	svc, repo := newTestService()
	repo.err = errors.New("db down")

	_, err := svc.List(context.Background(), "u1")

	require.Error(t, err)
	assert.ErrorIs(t, err, repo.err)
}
