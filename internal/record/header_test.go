package record

import (
	"errors"
	"strings"
	"testing"
)

func TestParseHeader(t *testing.T) {
	h, err := ParseHeader(strings.NewReader("creation_cycle=1000\ndestruction_cycle=5000\nnum_workers=4\n"), "cfg.rec")
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	want := Header{CreationTime: 1000, DestructionTime: 5000, Workers: 4}
	if h != want {
		t.Fatalf("header = %+v, want %+v", h, want)
	}
	if h.Duration() != 4000 {
		t.Fatalf("Duration = %d", h.Duration())
	}
}

func TestParseHeaderRejects(t *testing.T) {
	cases := map[string]string{
		"missing line":   "creation_time=1\ndestruction_time=2\n",
		"no equals":      "creation_time 1\ndestruction_time=2\nnum_workers=1\n",
		"zero workers":   "creation_time=1\ndestruction_time=2\nnum_workers=0\n",
		"reversed times": "creation_time=9\ndestruction_time=2\nnum_workers=1\n",
		"not a number":   "creation_time=x\ndestruction_time=2\nnum_workers=1\n",
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseHeader(strings.NewReader(input), "cfg.rec")
			var mre *MalformedRecordError
			if !errors.As(err, &mre) {
				t.Fatalf("err = %v, want MalformedRecordError", err)
			}
		})
	}
}
