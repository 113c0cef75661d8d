package prv

import (
	"testing"
	"time"
)

func TestHeader(t *testing.T) {
	written := time.Date(2015, time.March, 7, 9, 5, 0, 0, time.UTC)
	got := Header(written, 4000, 3)
	want := "#Paraver (07/03/2015 at 09:05):4000:1(3):1:1(3:1)\n"
	if got != want {
		t.Fatalf("Header = %q, want %q", got, want)
	}
}

func TestHeaderUsesUTC(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	written := time.Date(2015, time.March, 7, 1, 30, 0, 0, loc)
	got := Header(written, 1, 1)
	want := "#Paraver (06/03/2015 at 22:30):1:1(1):1:1(1:1)\n"
	if got != want {
		t.Fatalf("Header = %q, want %q", got, want)
	}
}

func TestAppendLines(t *testing.T) {
	cases := []struct {
		name string
		got  []byte
		want string
	}{
		{"state", AppendState(nil, 0, 0, 4, 1), "1:1:1:1:1:0:4:1\n"},
		{"event", AppendEvent(nil, 2, 17, 540681, "99"), "2:3:1:1:3:17:540681:99\n"},
		{"task", AppendTask(nil, 1, 4, 6, 3, "fib-17"), "worker=2:4:6:3:fib-17\n"},
	}
	for _, tc := range cases {
		if string(tc.got) != tc.want {
			t.Errorf("%s: got %q, want %q", tc.name, tc.got, tc.want)
		}
	}
}

func TestParseLineRoundTrip(t *testing.T) {
	st, err := ParseLine(string(AppendState(nil, 4, 10, 20, 3)))
	if err != nil {
		t.Fatalf("ParseLine(state): %v", err)
	}
	if st != (Line{Kind: KindState, Worker: 4, Begin: 10, End: 20, Code: 3}) {
		t.Fatalf("state = %+v", st)
	}

	ev, err := ParseLine(string(AppendEvent(nil, 0, 7, 540680, "-1")))
	if err != nil {
		t.Fatalf("ParseLine(event): %v", err)
	}
	if ev != (Line{Kind: KindEvent, Worker: 0, Begin: 7, Code: 540680, Value: "-1"}) {
		t.Fatalf("event = %+v", ev)
	}
}

func TestParseLineRejects(t *testing.T) {
	for _, s := range []string{
		"#Paraver (x):1:1(1):1:1(1:1)",
		"3:1:1:1:1:0:1:0",
		"1:0:1:1:0:0:1:0",
		"1:1:1:1:1:0:x:0",
		"1:1:1:1",
	} {
		if _, err := ParseLine(s); err == nil {
			t.Errorf("ParseLine(%q) should fail", s)
		}
	}
}
