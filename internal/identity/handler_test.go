package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakeAuthenticator struct {
	registerErr error
}

func (f *fakeAuthenticator) Register(ctx context.Context, req *RegisterRequest) (*User, error) {
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	return &User{ID: "u1", Username: req.Username}, nil
}

func (f *fakeAuthenticator) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	return nil, errors.New("bad credentials")
}

func TestRegisterFailureDoesNotLeakStoreError(t *testing.T) {
	storeErr := errors.New(`pq: duplicate key value violates unique constraint "users_username_key"`)
	h := NewHandler(&fakeAuthenticator{registerErr: storeErr})

	req := httptest.NewRequest(http.MethodPost, "/register",
		strings.NewReader(`{"username":"alice","password":"pw"}`))
	w := httptest.NewRecorder()
	h.Register(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	body := w.Body.String()
	if strings.Contains(body, "constraint") || strings.Contains(body, "pq:") {
		t.Errorf("response leaked store internals: %q", body)
	}
	if !strings.Contains(body, "could not create account") {
		t.Errorf("body = %q, want the neutral failure message", body)
	}
}

func TestLoginFailureStaysNeutral(t *testing.T) {
	h := NewHandler(&fakeAuthenticator{})

	req := httptest.NewRequest(http.MethodPost, "/login",
		strings.NewReader(`{"username":"alice","password":"wrong"}`))
	w := httptest.NewRecorder()
	h.Login(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if !strings.Contains(w.Body.String(), "invalid credentials") {
		t.Errorf("body = %q, want invalid credentials", w.Body.String())
	}
}
