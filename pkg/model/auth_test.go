package model

import (
	"net/http"
	"testing"
)

func TestStripBearer(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi"},
		{"bearer abc.def.ghi", "abc.def.ghi"},
		{"abc.def.ghi", "abc.def.ghi"},
		{"  Bearer   abc  ", "abc"},
		{"", ""},
		{"Bearer", ""},
		{"Bearer ", ""},
		{"bearer\tabc", "abc"},
		{"Bearerish.tok.en", "Bearerish.tok.en"},
	}
	for _, tt := range tests {
		if got := StripBearer(tt.in); got != tt.want {
			t.Errorf("StripBearer(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeAuthResponse(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		header    http.Header
		wantToken string
		wantUser  string
	}{
		{"token+user", `{"token":"a.b.c","user":{"id":"1","username":"ann"}}`, nil, "a.b.c", "ann"},
		{"access_token", `{"access_token":"Bearer a.b.c"}`, nil, "a.b.c", ""},
		{"accessToken+userData", `{"accessToken":"x.y.z","userData":{"username":"bob"}}`, nil, "x.y.z", "bob"},
		{"authToken", `{"authToken":"t.t.t"}`, nil, "t.t.t", ""},
		{"jwt inline user", `{"jwt":"j.w.t","id":"9","username":"cy","role":"admin"}`, nil, "j.w.t", "cy"},
		{"header fallback", `{"user":{"username":"dee"}}`, http.Header{"Authorization": {"Bearer h.h.h"}}, "h.h.h", "dee"},
		{"empty body", ``, nil, "", ""},
		{"null user", `{"token":"a.b.c","user":null}`, nil, "a.b.c", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeAuthResponse([]byte(tt.body), tt.header)
			if err != nil {
				t.Fatalf("NormalizeAuthResponse: %v", err)
			}
			if got.Token != tt.wantToken {
				t.Errorf("Token = %q, want %q", got.Token, tt.wantToken)
			}
			name := ""
			if got.User != nil {
				name = got.User.Username
			}
			if name != tt.wantUser {
				t.Errorf("User.Username = %q, want %q", name, tt.wantUser)
			}
		})
	}
}

func TestNormalizeAuthResponse_BadJSON(t *testing.T) {
	if _, err := NormalizeAuthResponse([]byte("{"), nil); err == nil {
		t.Fatal("expected error for malformed body")
	}
}

func TestNormalizeAuthResponse_BannedUser(t *testing.T) {
	got, err := NormalizeAuthResponse([]byte(`{"token":"a.b.c","user":{"username":"z","banned":true}}`), nil)
	if err != nil {
		t.Fatalf("NormalizeAuthResponse: %v", err)
	}
	if got.User == nil || !got.User.Banned {
		t.Fatalf("expected banned user, got %+v", got.User)
	}
}
