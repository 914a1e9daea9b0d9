package social

import (
	"errors"
	"testing"
)

func TestClassifyStatus(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{200, nil},
		{204, nil},
		{429, ErrRateLimited},
		{401, ErrForbidden},
		{403, ErrForbidden},
		{404, ErrNotFound},
		{500, ErrTransient},
		{503, ErrTransient},
	}
	for _, tc := range cases {
		err := ClassifyStatus(tc.status, "send")
		if tc.want == nil {
			if err != nil {
				t.Errorf("status %d: unexpected error %v", tc.status, err)
			}
			continue
		}
		if !errors.Is(err, tc.want) {
			t.Errorf("status %d: err = %v, want %v", tc.status, err, tc.want)
		}
	}

	if err := ClassifyStatus(418, "send"); err == nil {
		t.Error("unexpected status should still error")
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(ClassifyStatus(429, "op")) {
		t.Error("rate limited should be retryable")
	}
	if !Retryable(ClassifyStatus(502, "op")) {
		t.Error("5xx should be retryable")
	}
	if Retryable(ClassifyStatus(403, "op")) {
		t.Error("forbidden must not be retried")
	}
	if Retryable(ClassifyStatus(404, "op")) {
		t.Error("not found must not be retried")
	}
}
