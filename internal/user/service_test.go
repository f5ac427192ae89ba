package user

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/touristguard/internal/model"
)

// --- モック ---

type mockUserStore struct {
	findByIDFn           func(ctx context.Context, id string) (*model.User, error)
	updateVerificationFn func(ctx context.Context, id string, phone, doc *bool) (*model.User, error)
}

func (m *mockUserStore) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserStore) UpdateVerification(ctx context.Context, id string, phone, doc *bool) (*model.User, error) {
	if m.updateVerificationFn != nil {
		return m.updateVerificationFn(ctx, id, phone, doc)
	}
	return nil, nil
}

func boolPtr(b bool) *bool { return &b }

// --- テスト ---

func TestService_Profile(t *testing.T) {
	store := &mockUserStore{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Email: "traveler@example.com"}, nil
		},
	}
	svc := NewService(store, nil)

	u, err := svc.Profile(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.ID != "user-1" {
		t.Errorf("ID = %q, want %q", u.ID, "user-1")
	}
}

func TestService_Profile_NotFound(t *testing.T) {
	svc := NewService(&mockUserStore{}, nil)

	_, err := svc.Profile(context.Background(), "missing")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeUserNotFound {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeUserNotFound)
	}
}

func TestService_Profile_RepoError(t *testing.T) {
	store := &mockUserStore{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return nil, errors.New("connection refused")
		},
	}
	svc := NewService(store, nil)

	_, err := svc.Profile(context.Background(), "user-1")
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		t.Errorf("repository failure should not be an APIError, got %v", apiErr)
	}
}

func TestService_SetVerification(t *testing.T) {
	var gotPhone, gotDoc *bool
	store := &mockUserStore{
		updateVerificationFn: func(ctx context.Context, id string, phone, doc *bool) (*model.User, error) {
			gotPhone, gotDoc = phone, doc
			return &model.User{ID: id, PhoneVerified: true, DocumentVerified: false}, nil
		},
	}
	svc := NewService(store, nil)

	u, err := svc.SetVerification(context.Background(), "user-1", boolPtr(true), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPhone == nil || !*gotPhone {
		t.Error("phone flag should be passed through as true")
	}
	if gotDoc != nil {
		t.Error("document flag should stay nil")
	}
	if !u.PhoneVerified {
		t.Error("PhoneVerified should be true")
	}
}

func TestService_SetVerification_NotFound(t *testing.T) {
	svc := NewService(&mockUserStore{}, nil)

	_, err := svc.SetVerification(context.Background(), "missing", boolPtr(true), boolPtr(true))

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUserNotFound {
		t.Fatalf("expected USER_NOT_FOUND, got %v", err)
	}
}

func TestService_SetVerification_NoFlags(t *testing.T) {
	updateCalled := false
	store := &mockUserStore{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id}, nil
		},
		updateVerificationFn: func(ctx context.Context, id string, phone, doc *bool) (*model.User, error) {
			updateCalled = true
			return nil, nil
		},
	}
	svc := NewService(store, nil)

	if _, err := svc.SetVerification(context.Background(), "user-1", nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updateCalled {
		t.Error("UpdateVerification should not be called when no flag is given")
	}
}
