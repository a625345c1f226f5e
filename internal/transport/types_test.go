package transport

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type stubSender struct {
	name  string
	err   error
	texts []string
}

func (s *stubSender) Name() string { return s.name }

func (s *stubSender) SendText(_ context.Context, text string) error {
	s.texts = append(s.texts, text)
	return s.err
}

func TestNewMulti(t *testing.T) {
	if NewMulti() != nil {
		t.Fatal("empty multi should be nil")
	}
	one := &stubSender{name: "a"}
	if NewMulti(nil, one) != Sender(one) {
		t.Fatal("single sender should be returned as is")
	}
	m := NewMulti(one, &stubSender{name: "b"})
	if m.Name() != "multi:a,b" {
		t.Fatalf("name = %q", m.Name())
	}
}

func TestMultiTriesAllAndJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	a := &stubSender{name: "a", err: boom}
	b := &stubSender{name: "b"}
	err := NewMulti(a, b).SendText(context.Background(), "hi")
	if !errors.Is(err, boom) || !strings.Contains(err.Error(), "a: boom") {
		t.Fatalf("err = %v", err)
	}
	if len(b.texts) != 1 {
		t.Fatal("second sender should still receive the message")
	}
}
