package auth

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"go.uber.org/zap"

	"github.com/quotevault/quotevault/internal/core"
)

// testToken builds an unsigned JWT with the given claims.
func testToken(t *testing.T, claims map[string]any) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	payload, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("encode claims: %v", err)
	}
	return header + "." + base64.RawURLEncoding.EncodeToString(payload) + "."
}

func TestSession_SignInExtractsSubject(t *testing.T) {
	s := NewSession(zap.NewNop())
	token := testToken(t, map[string]any{"sub": "user-1", "email": "u@example.com"})

	userID, err := s.SignIn(token)
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if userID != "user-1" {
		t.Fatalf("SignIn returned %q, want user-1", userID)
	}
	if got, err := s.UserID(); err != nil || got != "user-1" {
		t.Fatalf("UserID = %q, %v; want user-1", got, err)
	}
	if s.Token() != token {
		t.Fatal("Token should return the installed access token")
	}
	if !s.Authenticated() {
		t.Fatal("Authenticated should be true after sign-in")
	}
}

func TestSession_SignInRejectsGarbage(t *testing.T) {
	s := NewSession(zap.NewNop())
	if _, err := s.SignIn("not-a-jwt"); err == nil {
		t.Fatal("SignIn should reject an unparseable token")
	}
	if _, err := s.SignIn(testToken(t, map[string]any{"email": "nosub@example.com"})); err == nil {
		t.Fatal("SignIn should reject a token without a subject")
	}
	if s.Authenticated() {
		t.Fatal("failed sign-in must not install an identity")
	}
}

func TestSession_SignedOutUserIDFails(t *testing.T) {
	s := NewSession(zap.NewNop())
	if _, err := s.UserID(); !core.IsNotAuthenticated(err) {
		t.Fatalf("UserID error = %v, want not-authenticated", err)
	}
}

func TestSession_ListenersRunInOrder(t *testing.T) {
	s := NewSession(zap.NewNop())

	var events []string
	s.OnChange(func(e Event) { events = append(events, "a:"+string(e.Type)) })
	s.OnChange(func(e Event) { events = append(events, "b:"+string(e.Type)) })

	if _, err := s.SignIn(testToken(t, map[string]any{"sub": "u1"})); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	s.SignOut()

	want := []string{"a:SIGNED_IN", "b:SIGNED_IN", "a:SIGNED_OUT", "b:SIGNED_OUT"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events[%d] = %q, want %q", i, events[i], want[i])
		}
	}
}

func TestSession_SignOutWhileSignedOutIsSilent(t *testing.T) {
	s := NewSession(zap.NewNop())
	fired := false
	s.OnChange(func(Event) { fired = true })

	s.SignOut()
	if fired {
		t.Fatal("sign-out without identity must not emit an event")
	}
}

func TestSession_UserSwitchEmitsSignedIn(t *testing.T) {
	s := NewSession(zap.NewNop())
	var got []Event
	s.OnChange(func(e Event) { got = append(got, e) })

	s.SignIn(testToken(t, map[string]any{"sub": "u1"}))
	s.SignIn(testToken(t, map[string]any{"sub": "u2"}))

	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[1].Type != SignedIn || got[1].UserID != "u2" {
		t.Fatalf("second event = %+v, want SignedIn for u2", got[1])
	}
	if id, _ := s.UserID(); id != "u2" {
		t.Fatalf("UserID = %q, want u2", id)
	}
}
