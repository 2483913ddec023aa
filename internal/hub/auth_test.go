package hub

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/taskflow/notify/internal/domain"
)

const testSecret = "test-secret"

func testIdentity() domain.Identity {
	return domain.Identity{
		UserID: uuid.New(),
		Email:  "dana@example.com",
		Name:   "Dana",
	}
}

func TestJWTVerifier_ValidToken(t *testing.T) {
	identity := testIdentity()
	token, err := GenerateToken(testSecret, identity, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	got, err := NewJWTVerifier(testSecret).Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if got.UserID != identity.UserID {
		t.Errorf("UserID = %v, want %v", got.UserID, identity.UserID)
	}
	if got.Email != identity.Email {
		t.Errorf("Email = %q, want %q", got.Email, identity.Email)
	}
	if got.Name != identity.Name {
		t.Errorf("Name = %q, want %q", got.Name, identity.Name)
	}
}

func TestJWTVerifier_WrongSecret(t *testing.T) {
	token, err := GenerateToken(testSecret, testIdentity(), time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	if _, err := NewJWTVerifier("other-secret").Verify(token); err == nil {
		t.Error("token signed with a different secret should not verify")
	}
}

func TestJWTVerifier_ExpiredToken(t *testing.T) {
	token, err := GenerateToken(testSecret, testIdentity(), -time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	if _, err := NewJWTVerifier(testSecret).Verify(token); err == nil {
		t.Error("expired token should not verify")
	}
}

func TestJWTVerifier_Garbage(t *testing.T) {
	if _, err := NewJWTVerifier(testSecret).Verify("not.a.token"); err == nil {
		t.Error("garbage token should not verify")
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		query  string
		want   string
	}{
		{"header", "Bearer abc123", "", "abc123"},
		{"malformed header", "Basic abc123", "", ""},
		{"query fallback", "", "xyz789", "xyz789"},
		{"header wins over query", "Bearer abc123", "xyz789", "abc123"},
		{"nothing", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := "/ws"
			if tt.query != "" {
				url += "?access_token=" + tt.query
			}
			r := httptest.NewRequest("GET", url, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			if got := bearerToken(r); got != tt.want {
				t.Errorf("bearerToken() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHandler_RejectsBeforeUpgrade(t *testing.T) {
	h := New()
	handler := NewHandler(h, NewJWTVerifier(testSecret))

	tests := []struct {
		name  string
		token string
	}{
		{"missing token", ""},
		{"invalid token", "garbage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := "/ws"
			if tt.token != "" {
				url += "?access_token=" + tt.token
			}
			r := httptest.NewRequest("GET", url, nil)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, r)

			if rec.Code != 401 {
				t.Errorf("status = %d, want 401", rec.Code)
			}
			// No hub state may exist for a rejected handshake.
			if h.Connections() != 0 {
				t.Errorf("Connections() = %d, want 0", h.Connections())
			}
		})
	}
}
