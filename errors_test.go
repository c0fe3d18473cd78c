package nest

import (
	"fmt"
	"testing"
)

func TestClassifyUpstream(t *testing.T) {
	cases := []struct {
		status int
		body   string
		want   Kind
	}{
		{401, `{"error":"UNAUTHENTICATED"}`, KindAuthExpired},
		{403, `partner consent has been revoked`, KindConsentRequired},
		{403, `User must re-GRANT access`, KindConsentRequired},
		{403, `caller does not have access to the project`, KindPermissionDenied},
		{404, ``, KindNotFound},
		{429, `quota exceeded`, KindRateLimited},
		{500, `internal`, KindTransient},
		{503, ``, KindTransient},
		{400, `bad argument`, KindUpstream},
		{409, ``, KindUpstream},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%d", tc.status), func(t *testing.T) {
			got := ClassifyUpstream(tc.status, []byte(tc.body))
			if got.Kind != tc.want {
				t.Fatalf("status %d body %q: got kind %s, want %s", tc.status, tc.body, got.Kind, tc.want)
			}
			if got.Status != tc.status {
				t.Fatalf("status not carried: got %d, want %d", got.Status, tc.status)
			}
		})
	}
}

func TestReauth(t *testing.T) {
	if !Reauth(E(KindAuthExpired, "x")) {
		t.Fatal("AuthExpired must force reauth")
	}
	if !Reauth(E(KindConsentRequired, "x")) {
		t.Fatal("ConsentRequired must force reauth")
	}
	if Reauth(E(KindRateLimited, "x")) {
		t.Fatal("RateLimited must not force reauth")
	}
	if Reauth(fmt.Errorf("plain")) {
		t.Fatal("unclassified errors must not force reauth")
	}
}

func TestParseMode(t *testing.T) {
	if ParseMode("HEAT") != ModeHeat {
		t.Fatal("HEAT should parse")
	}
	if ParseMode("MANUAL_ECO") != ModeUnknown {
		t.Fatal("unrecognized strings map to UNKNOWN")
	}
}
