package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "s3cret" || hash == "" {
		t.Fatal("hash must not be the plaintext")
	}
	if !VerifyPassword(hash, "s3cret") {
		t.Fatal("correct password should verify")
	}
	if VerifyPassword(hash, "wrong") {
		t.Fatal("wrong password must not verify")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	tok, err := GenerateAccessToken(7, "secret", time.Minute)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	claims, err := ParseAccessToken(tok, "secret")
	if err != nil {
		t.Fatalf("ParseAccessToken: %v", err)
	}
	if claims.UserID != 7 || claims.Subject != "7" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseAccessToken_Rejections(t *testing.T) {
	tok, _ := GenerateAccessToken(7, "secret", time.Minute)

	if _, err := ParseAccessToken(tok, "other-secret"); err == nil {
		t.Fatal("wrong secret must fail")
	}
	if _, err := ParseAccessToken("not.a.token", "secret"); err == nil {
		t.Fatal("garbage must fail")
	}

	expired, _ := GenerateAccessToken(7, "secret", -time.Minute)
	if _, err := ParseAccessToken(expired, "secret"); err == nil {
		t.Fatal("expired token must fail")
	}

	zeroUID, _ := GenerateAccessToken(0, "secret", time.Minute)
	if _, err := ParseAccessToken(zeroUID, "secret"); err == nil {
		t.Fatal("zero user id must fail")
	}
}

func newAuthRouter(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware(secret))
	r.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": UserID(c)})
	})
	return r
}

func TestMiddleware_AllowsValidToken(t *testing.T) {
	r := newAuthRouter("secret")
	tok, _ := GenerateAccessToken(7, "secret", time.Minute)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestMiddleware_RejectsMissingAndBadTokens(t *testing.T) {
	r := newAuthRouter("secret")

	cases := map[string]string{
		"no header":    "",
		"wrong scheme": "Basic abc",
		"bad token":    "Bearer not.a.token",
	}
	for name, header := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		r.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("%s: status = %d, want 401", name, w.Code)
		}
	}
}

func TestUserID_UnsetIsZero(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if UserID(c) != 0 {
		t.Fatal("unauthenticated context must read as zero")
	}
}
