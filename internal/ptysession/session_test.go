package ptysession

import (
	"testing"
	"time"

	"github.com/muesli/termenv"
)

func TestColorToX11RGB(t *testing.T) {
	c := colorToX11(termenv.RGBColor("#112233"))
	want := "rgb:1111/2222/3333"
	if c != want {
		t.Fatalf("expected %q, got %q", want, c)
	}
}

func TestSessionEchoesInput(t *testing.T) {
	s, err := New("cat", nil, "", 24, 80, nil)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	defer s.Close()

	if err := s.SendText("hello\n"); err != nil {
		t.Fatalf("send text: %v", err)
	}

	deadline := time.After(3 * time.Second)
	var got []byte
	for len(got) < 5 {
		select {
		case chunk := <-s.Output():
			got = append(got, chunk...)
		case <-deadline:
			t.Fatalf("timed out waiting for echoed output, got %q", got)
		}
	}
}
