package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/AnTengye/solarflow/config"
	"github.com/AnTengye/solarflow/middleware"
	"github.com/AnTengye/solarflow/model"
	"github.com/AnTengye/solarflow/service"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testAuth = &config.AuthConfig{JWTSecret: "test-secret", TokenExpireHours: 24}

type fakeUsers struct {
	err error
}

func (f *fakeUsers) Authenticate(ctx context.Context, username, password string) (*model.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	if username == "asha" && password == "secret" {
		return &model.Session{Username: "asha", Role: model.RoleAdmin}, nil
	}
	return nil, service.ErrInvalidCredentials
}

// bearer returns an Authorization header value for the session
func bearer(t *testing.T, session *model.Session) string {
	t.Helper()
	token, _, err := middleware.GenerateToken(session, testAuth)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	return "Bearer " + token
}

func TestAuthHandlerLogin(t *testing.T) {
	handler := NewAuthHandler(&fakeUsers{}, testAuth)

	tests := []struct {
		name           string
		body           map[string]string
		expectedStatus int
	}{
		{
			name:           "valid login",
			body:           map[string]string{"username": "asha", "password": "secret"},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "invalid username",
			body:           map[string]string{"username": "nobody", "password": "secret"},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "invalid password",
			body:           map[string]string{"username": "asha", "password": "wrong"},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "missing fields",
			body:           map[string]string{"username": "asha"},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.POST("/login", handler.Login)

			body, _ := json.Marshal(tt.body)
			req := httptest.NewRequest("POST", "/login", bytes.NewBuffer(body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}

			if tt.expectedStatus == http.StatusOK {
				var response LoginResponse
				if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
					t.Fatalf("Failed to parse response: %v", err)
				}
				if response.Token == "" {
					t.Error("Expected token in response")
				}
				if response.Role != model.RoleAdmin {
					t.Errorf("Expected role admin, got '%s'", response.Role)
				}
				session, err := middleware.ParseToken(response.Token, testAuth)
				if err != nil {
					t.Fatalf("Issued token does not parse: %v", err)
				}
				if session.Username != "asha" {
					t.Errorf("Expected token for asha, got '%s'", session.Username)
				}
			}
		})
	}
}

func TestAuthHandlerLoginSheetUnavailable(t *testing.T) {
	handler := NewAuthHandler(&fakeUsers{err: service.ErrTransport}, testAuth)

	router := gin.New()
	router.POST("/login", handler.Login)

	req := httptest.NewRequest("POST", "/login", strings.NewReader(`{"username":"asha","password":"secret"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadGateway {
		t.Errorf("Expected status 502, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"retry":true`) {
		t.Errorf("Expected retry hint, got %s", w.Body.String())
	}
}

func TestAuthHandlerGetCurrentUser(t *testing.T) {
	handler := NewAuthHandler(&fakeUsers{}, testAuth)

	router := gin.New()
	router.GET("/me", middleware.AuthMiddleware(testAuth), handler.GetCurrentUser)

	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", bearer(t, &model.Session{Username: "ravi", Role: model.RoleUser}))
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var response struct {
		Username string `json:"username"`
		Role     string `json:"role"`
		IsAdmin  bool   `json:"is_admin"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if response.Username != "ravi" || response.Role != model.RoleUser || response.IsAdmin {
		t.Errorf("Unexpected session %+v", response)
	}
}

func TestAuthHandlerGetCurrentUserWithoutSession(t *testing.T) {
	handler := NewAuthHandler(&fakeUsers{}, testAuth)

	router := gin.New()
	router.GET("/me", handler.GetCurrentUser)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/me", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

func TestAuthHandlerLoginInvalidJSON(t *testing.T) {
	handler := NewAuthHandler(&fakeUsers{}, testAuth)

	router := gin.New()
	router.POST("/login", handler.Login)

	req := httptest.NewRequest("POST", "/login", bytes.NewBufferString("invalid json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}
