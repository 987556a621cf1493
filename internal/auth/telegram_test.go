package auth

import (
	"errors"
	"fmt"
	"net/url"
	"testing"
	"time"
)

const testBotToken = "12345:TEST_TOKEN"

func signedInitData(t *testing.T, v *Verifier, authDate time.Time, userJSON string) string {
	t.Helper()
	values := url.Values{}
	values.Set("auth_date", fmt.Sprintf("%d", authDate.Unix()))
	values.Set("query_id", "AAF0x")
	if userJSON != "" {
		values.Set("user", userJSON)
	}
	values.Set("hash", v.Sign(values))
	return values.Encode()
}

func TestVerifyAcceptsSignedData(t *testing.T) {
	v := NewVerifier(testBotToken, time.Hour)
	data := signedInitData(t, v, time.Now(), `{"id":42,"first_name":"Ann","username":"ann_dev"}`)
	user, err := v.Verify(data)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if user.ID != 42 || user.Username != "ann_dev" {
		t.Fatalf("unexpected user: %+v", user)
	}
}

func TestVerifyRejectsTamperedData(t *testing.T) {
	v := NewVerifier(testBotToken, time.Hour)
	data := signedInitData(t, v, time.Now(), `{"id":42,"first_name":"Ann"}`)
	values, _ := url.ParseQuery(data)
	values.Set("user", `{"id":999,"first_name":"Mallory"}`)
	if _, err := v.Verify(values.Encode()); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("got %v want ErrBadSignature", err)
	}
}

func TestVerifyRejectsWrongBotToken(t *testing.T) {
	signer := NewVerifier("999:OTHER_TOKEN", time.Hour)
	data := signedInitData(t, signer, time.Now(), `{"id":42,"first_name":"Ann"}`)
	v := NewVerifier(testBotToken, time.Hour)
	if _, err := v.Verify(data); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("got %v want ErrBadSignature", err)
	}
}

func TestVerifyRejectsStaleAuthDate(t *testing.T) {
	v := NewVerifier(testBotToken, time.Hour)
	data := signedInitData(t, v, time.Now().Add(-2*time.Hour), `{"id":42,"first_name":"Ann"}`)
	if _, err := v.Verify(data); !errors.Is(err, ErrExpired) {
		t.Fatalf("got %v want ErrExpired", err)
	}
}

func TestVerifyRejectsMissingUser(t *testing.T) {
	v := NewVerifier(testBotToken, time.Hour)
	data := signedInitData(t, v, time.Now(), "")
	if _, err := v.Verify(data); !errors.Is(err, ErrMalformed) {
		t.Fatalf("got %v want ErrMalformed", err)
	}
}

func TestVerifyRejectsMissingHash(t *testing.T) {
	v := NewVerifier(testBotToken, time.Hour)
	if _, err := v.Verify("auth_date=1"); !errors.Is(err, ErrMalformed) {
		t.Fatalf("got %v want ErrMalformed", err)
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		user TelegramUser
		want string
	}{
		{TelegramUser{ID: 1, Username: "ann_dev", FirstName: "Ann"}, "ann_dev"},
		{TelegramUser{ID: 1, FirstName: "Ann", LastName: "Lee"}, "Ann Lee"},
		{TelegramUser{ID: 7}, "player7"},
	}
	for _, tc := range tests {
		if got := tc.user.DisplayName(); got != tc.want {
			t.Fatalf("got %q want %q", got, tc.want)
		}
	}
}
