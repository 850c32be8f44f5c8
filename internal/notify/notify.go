// Package notify provides the user-facing notice and confirmation surfaces.
//
// A [Notifier] shows short, fire-and-forget messages. A [Confirmer] asks a yes/no
// question and blocks the caller until it is answered.
package notify

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"
)

// Icon hints which glyph accompanies a notice.
type Icon string

const (
	IconNone     Icon = ""
	IconCheck    Icon = "circle-check"
	IconError    Icon = "circle-x"
	IconDownload Icon = "download"
	IconWarning  Icon = "exclamation-circle"
)

// Haptics hints tactile or audible feedback for a notice.
type Haptics string

const (
	HapticsNone    Haptics = ""
	HapticsSuccess Haptics = "success"
	HapticsError   Haptics = "error"
)

// Notice is one ephemeral message.
type Notice struct {
	Title    string
	Subtitle string
	Icon     Icon
	Haptics  Haptics
}

func (n Notice) String() string {
	if n.Subtitle == "" {
		return n.Title
	}
	return n.Title + ": " + n.Subtitle
}

// IsError reports whether the notice describes a failure.
func (n Notice) IsError() bool {
	return n.Haptics == HapticsError || n.Icon == IconError
}

// Notifier shows notices. Notify must not block.
type Notifier interface {
	Notify(n Notice)
}

// Variant styles a confirmation.
type Variant string

const (
	VariantDefault     Variant = "default"
	VariantDestructive Variant = "destructive"
)

// Confirmation describes a yes/no question.
type Confirmation struct {
	Title       string
	Message     string
	ConfirmText string
	CancelText  string
	Variant     Variant
}

// Confirmer asks a [Confirmation] and reports whether it was accepted.
type Confirmer interface {
	Confirm(ctx context.Context, c Confirmation) (bool, error)
}

// LogNotifier writes notices to a logger.
type LogNotifier struct {
	logger *log.Logger
}

func NewLogNotifier(logger *log.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(n Notice) {
	if n.IsError() {
		l.logger.Error(n.Title, "detail", n.Subtitle)
		return
	}
	l.logger.Info(n.Title, "detail", n.Subtitle)
}

// ChannelNotifier forwards notices to a channel, dropping them when it is full.
type ChannelNotifier struct {
	ch chan Notice
}

// NewChannelNotifier creates a notifier with the given buffer size.
func NewChannelNotifier(size int) *ChannelNotifier {
	return &ChannelNotifier{ch: make(chan Notice, size)}
}

func (c *ChannelNotifier) Notify(n Notice) {
	select {
	case c.ch <- n:
	default:
	}
}

// C returns the receive side of the channel.
func (c *ChannelNotifier) C() <-chan Notice { return c.ch }

// Multi fans a notice out to several notifiers.
type Multi []Notifier

func (m Multi) Notify(n Notice) {
	for _, notifier := range m {
		notifier.Notify(n)
	}
}

// PromptConfirmer asks on a text stream and accepts y or yes.
type PromptConfirmer struct {
	in  *bufio.Reader
	out io.Writer
}

func NewPromptConfirmer(in io.Reader, out io.Writer) *PromptConfirmer {
	return &PromptConfirmer{in: bufio.NewReader(in), out: out}
}

func (p *PromptConfirmer) Confirm(ctx context.Context, c Confirmation) (bool, error) {
	confirm, cancel := c.ConfirmText, c.CancelText
	if confirm == "" {
		confirm = "yes"
	}
	if cancel == "" {
		cancel = "no"
	}
	fmt.Fprintf(p.out, "%s\n%s\n[y] %s / [n] %s: ", c.Title, c.Message, confirm, cancel)

	type answer struct {
		line string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		line, err := p.in.ReadString('\n')
		ch <- answer{line, err}
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case a := <-ch:
		if a.err != nil && a.err != io.EOF {
			return false, a.err
		}
		switch strings.ToLower(strings.TrimSpace(a.line)) {
		case "y", "yes":
			return true, nil
		}
		return false, nil
	}
}

// Static answers every confirmation with the same value.
type Static bool

func (s Static) Confirm(context.Context, Confirmation) (bool, error) { return bool(s), nil }
