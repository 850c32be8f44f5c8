package notify

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/desertthunder/agin/internal/shared"
)

func TestNotice(t *testing.T) {
	tc := []struct {
		name    string
		notice  Notice
		str     string
		isError bool
	}{
		{"title only", Notice{Title: "Downloading"}, "Downloading", false},
		{"with subtitle", Notice{Title: "Downloading", Subtitle: "Song"}, "Downloading: Song", false},
		{"error haptics", Notice{Title: "Failed", Haptics: HapticsError}, "Failed", true},
		{"error icon", Notice{Title: "Failed", Icon: IconError}, "Failed", true},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.notice.String(); got != tt.str {
				t.Errorf("expected %q, got %q", tt.str, got)
			}
			if got := tt.notice.IsError(); got != tt.isError {
				t.Errorf("expected IsError %v, got %v", tt.isError, got)
			}
		})
	}
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(shared.NewLogger(&buf))

	n.Notify(Notice{Title: "Download Failed", Subtitle: "timeout", Haptics: HapticsError})

	out := buf.String()
	if !strings.Contains(out, "ERRO") || !strings.Contains(out, "timeout") {
		t.Errorf("expected error line with detail, got %q", out)
	}
}

func TestChannelNotifier(t *testing.T) {
	n := NewChannelNotifier(1)
	n.Notify(Notice{Title: "first"})
	n.Notify(Notice{Title: "dropped"})

	got := <-n.C()
	if got.Title != "first" {
		t.Errorf("expected first, got %s", got.Title)
	}
	select {
	case extra := <-n.C():
		t.Errorf("expected overflow to be dropped, got %v", extra)
	default:
	}
}

func TestMulti(t *testing.T) {
	a, b := NewChannelNotifier(1), NewChannelNotifier(1)
	Multi{a, b}.Notify(Notice{Title: "x"})

	if len(a.C()) != 1 || len(b.C()) != 1 {
		t.Error("expected both notifiers to receive the notice")
	}
}

func TestPromptConfirmer(t *testing.T) {
	c := Confirmation{Title: "Clear Queue", Message: "Sure?", ConfirmText: "Clear", CancelText: "Cancel"}

	tc := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"yes", true},
	}

	for _, tt := range tc {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			var out bytes.Buffer
			p := NewPromptConfirmer(strings.NewReader(tt.input), &out)

			got, err := p.Confirm(context.Background(), c)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
			if !strings.Contains(out.String(), "[y] Clear / [n] Cancel") {
				t.Errorf("unexpected prompt %q", out.String())
			}
		})
	}

	t.Run("context cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		pr, _ := newBlockingReader()
		p := NewPromptConfirmer(pr, &bytes.Buffer{})
		if _, err := p.Confirm(ctx, c); err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

type blockingReader struct{ ch chan struct{} }

func newBlockingReader() (*blockingReader, func()) {
	r := &blockingReader{ch: make(chan struct{})}
	return r, func() { close(r.ch) }
}

func (r *blockingReader) Read([]byte) (int, error) {
	<-r.ch
	return 0, nil
}
