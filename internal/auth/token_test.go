package auth

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func testCodec(t *testing.T, now *time.Time) *Codec {
	t.Helper()
	codec, err := NewCodec([]byte("test-signing-secret"), WithCodecClock(func() time.Time { return *now }))
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return codec
}

func TestCodecIssueAndVerify(t *testing.T) {
	now := time.Now()
	codec := testCodec(t, &now)

	token, exp, err := codec.Issue("alice", []string{"USER", "ADMIN", "user"}, TokenKindAccess, 30*time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}
	if !exp.After(now) {
		t.Fatalf("expected future expiry, got %v", exp)
	}

	claims, err := codec.Verify(token, TokenKindAccess)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != "alice" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
	if len(claims.Roles) != 2 || claims.Roles[0] != "USER" || claims.Roles[1] != "ADMIN" {
		t.Fatalf("roles not preserved/deduplicated: %v", claims.Roles)
	}
	if claims.Kind != string(TokenKindAccess) {
		t.Fatalf("unexpected kind: %s", claims.Kind)
	}
}

func TestCodecRejectsExpired(t *testing.T) {
	now := time.Now()
	codec := testCodec(t, &now)

	token, _, err := codec.Issue("alice", []string{"USER"}, TokenKindAccess, time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := codec.Verify(token, TokenKindAccess); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func tamperPayload(t *testing.T, token string) string {
	t.Helper()
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape: %d segments", len(parts))
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	var claims map[string]any
	if err := json.Unmarshal(payload, &claims); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	claims["roles"] = []string{"ADMIN"}
	forged, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	parts[1] = base64.RawURLEncoding.EncodeToString(forged)
	return strings.Join(parts, ".")
}

func TestCodecRejectsTamperedPayload(t *testing.T) {
	now := time.Now()
	codec := testCodec(t, &now)

	token, _, err := codec.Issue("alice", []string{"USER"}, TokenKindAccess, time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := codec.Verify(tamperPayload(t, token), TokenKindAccess); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestCodecSignatureCheckedBeforeExpiry(t *testing.T) {
	now := time.Now()
	codec := testCodec(t, &now)

	token, _, err := codec.Issue("alice", []string{"USER"}, TokenKindAccess, time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	forged := tamperPayload(t, token)

	// Tampered AND expired: the signature failure wins.
	now = now.Add(time.Hour)
	if _, err := codec.Verify(forged, TokenKindAccess); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestCodecRejectsMalformed(t *testing.T) {
	now := time.Now()
	codec := testCodec(t, &now)

	for _, token := range []string{"", "garbage", "a.b", "a.b.c.d", "!!!.!!!.!!!"} {
		if _, err := codec.Verify(token, TokenKindAccess); !errors.Is(err, ErrTokenMalformed) {
			t.Fatalf("Verify(%q): expected ErrTokenMalformed, got %v", token, err)
		}
	}
}

func TestCodecRejectsForeignSecret(t *testing.T) {
	now := time.Now()
	codec := testCodec(t, &now)
	other, err := NewCodec([]byte("a-different-secret"), WithCodecClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	token, _, err := other.Issue("alice", []string{"USER"}, TokenKindAccess, time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := codec.Verify(token, TokenKindAccess); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestCodecEnforcesKind(t *testing.T) {
	now := time.Now()
	codec := testCodec(t, &now)

	refresh, _, err := codec.Issue("alice", []string{"USER"}, TokenKindRefresh, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := codec.Verify(refresh, TokenKindAccess); !errors.Is(err, ErrWrongTokenKind) {
		t.Fatalf("refresh token accepted as access token: %v", err)
	}

	access, _, err := codec.Issue("alice", []string{"USER"}, TokenKindAccess, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := codec.Verify(access, TokenKindRefresh); !errors.Is(err, ErrWrongTokenKind) {
		t.Fatalf("access token accepted as refresh token: %v", err)
	}
}

func TestPeekSubject(t *testing.T) {
	now := time.Now()
	codec := testCodec(t, &now)

	token, _, err := codec.Issue("alice", []string{"USER"}, TokenKindAccess, time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if got := codec.PeekSubject(token); got != "alice" {
		t.Fatalf("PeekSubject = %q, want alice", got)
	}
	if got := codec.PeekSubject("garbage"); got != "" {
		t.Fatalf("PeekSubject on garbage = %q, want empty", got)
	}
}

func TestResolveSecret(t *testing.T) {
	secret, generated, err := ResolveSecret("")
	if err != nil {
		t.Fatalf("ResolveSecret: %v", err)
	}
	if !generated || len(secret) != 32 {
		t.Fatalf("expected generated 32-byte secret, got %d bytes generated=%v", len(secret), generated)
	}

	encoded := base64.StdEncoding.EncodeToString([]byte("configured-secret"))
	secret, generated, err = ResolveSecret(encoded)
	if err != nil {
		t.Fatalf("ResolveSecret: %v", err)
	}
	if generated || string(secret) != "configured-secret" {
		t.Fatalf("expected decoded secret, got %q generated=%v", secret, generated)
	}

	secret, generated, err = ResolveSecret("raw-secret-value")
	if err != nil {
		t.Fatalf("ResolveSecret: %v", err)
	}
	if generated || len(secret) == 0 {
		t.Fatalf("expected raw secret passthrough")
	}
}
