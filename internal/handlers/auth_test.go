package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	coopdoor "coop_door"
	"coop_door/internal/service"
)

func postJSON(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(w, req)
	return w
}

func TestAuthHandlers_SignUpAndSignIn(t *testing.T) {
	auth := &mockAuth{signUpID: 42, genTokenToken: "tok123", parseID: 1}
	r := newTestRouter(&service.Service{Authorization: auth})

	w := postJSON(t, r, "/auth/sign-up", `{"username":"keeper","password":"p"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("sign-up status=%d, body=%s", w.Code, w.Body.String())
	}
	var created coopdoor.SignUpResponse
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil || created.ID != 42 {
		t.Fatalf("expected id=42, got %+v (err %v)", created, err)
	}
	if auth.lastSignUpUsername != "keeper" {
		t.Fatalf("sign-up username %q", auth.lastSignUpUsername)
	}

	w = postJSON(t, r, "/auth/sign-in", `{"username":"keeper","password":"p"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("sign-in status=%d, body=%s", w.Code, w.Body.String())
	}
	var tok coopdoor.TokenResponse
	if err := json.Unmarshal(w.Body.Bytes(), &tok); err != nil || tok.Token != "tok123" {
		t.Fatalf("expected token tok123, got %+v (err %v)", tok, err)
	}
}

func TestAuthHandlers_ErrorsUseEnvelope(t *testing.T) {
	cases := []struct {
		name     string
		auth     *mockAuth
		path     string
		body     string
		wantCode int
		wantMsg  string
	}{
		{
			name:     "bad body",
			auth:     &mockAuth{},
			path:     "/auth/sign-in",
			body:     `{"username":1}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "duplicate user",
			auth:     &mockAuth{signUpErr: errors.New("username already taken")},
			path:     "/auth/sign-up",
			body:     `{"username":"keeper","password":"p"}`,
			wantCode: http.StatusBadRequest,
			wantMsg:  "username already taken",
		},
		{
			name:     "wrong password",
			auth:     &mockAuth{genTokenErr: errors.New("bcrypt mismatch")},
			path:     "/auth/sign-in",
			body:     `{"username":"keeper","password":"nope"}`,
			wantCode: http.StatusUnauthorized,
			wantMsg:  errInvalidCreds,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestRouter(&service.Service{Authorization: tc.auth})
			w := postJSON(t, r, tc.path, tc.body)
			if w.Code != tc.wantCode {
				t.Fatalf("status=%d, want %d (body=%s)", w.Code, tc.wantCode, w.Body.String())
			}
			var out coopdoor.ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil || out.Error == "" {
				t.Fatalf("expected an error envelope, got %s (err %v)", w.Body.String(), err)
			}
			if tc.wantMsg != "" && out.Error != tc.wantMsg {
				t.Fatalf("error=%q, want %q", out.Error, tc.wantMsg)
			}
		})
	}
}
