package domain

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from Status
		to   Status
		want bool
	}{
		{StatusPending, StatusAuthorized, true},
		{StatusPending, StatusSucceeded, true},
		{StatusPending, StatusFailed, true},
		{StatusAuthorized, StatusSucceeded, true},
		{StatusAuthorized, StatusFailed, true},

		{StatusAuthorized, StatusPending, false},
		{StatusSucceeded, StatusFailed, false},
		{StatusSucceeded, StatusPending, false},
		{StatusFailed, StatusSucceeded, false},
		{StatusFailed, StatusPending, false},

		{StatusPending, StatusPending, false},
		{StatusSucceeded, StatusSucceeded, false},
	}

	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTerminal(t *testing.T) {
	if StatusPending.Terminal() || StatusAuthorized.Terminal() {
		t.Error("open statuses must not be terminal")
	}
	if !StatusSucceeded.Terminal() || !StatusFailed.Terminal() {
		t.Error("SUCCEEDED and FAILED must be terminal")
	}
}
