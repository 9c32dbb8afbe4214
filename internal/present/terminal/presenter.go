// Package terminal renders in-app messages on a text terminal and reads the
// user's choice from a line-oriented input.
package terminal

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/tinywideclouds/go-notifylight/pkg/inapp"
)

// dismissKey closes a message without choosing an action. An empty line
// does the same.
const dismissKey = "d"

type showing struct {
	msg inapp.Message
	r   inapp.Responder
}

// Presenter is an inapp.Presenter for terminals. Present only draws the
// message; a single reader goroutine routes input lines to whichever message
// is on screen.
type Presenter struct {
	mu     sync.Mutex
	active *showing
	out    io.Writer
	done   chan struct{}
	logger *slog.Logger

	title     *color.Color
	primary   *color.Color
	secondary *color.Color
	hint      *color.Color
}

// New starts reading choices from in. Done is closed once in is exhausted.
func New(in io.Reader, out io.Writer, logger *slog.Logger) *Presenter {
	p := &Presenter{
		out:       out,
		done:      make(chan struct{}),
		logger:    logger.With("component", "TerminalPresenter"),
		title:     color.New(color.FgHiCyan, color.Bold),
		primary:   color.New(color.FgGreen, color.Bold),
		secondary: color.New(color.FgWhite),
		hint:      color.New(color.FgHiBlack),
	}
	go p.readLoop(in)
	return p
}

// Done is closed when the input stream ends.
func (p *Presenter) Done() <-chan struct{} { return p.done }

func (p *Presenter) Present(msg inapp.Message, r inapp.Responder) {
	p.mu.Lock()
	p.active = &showing{msg: msg, r: r}
	p.render(msg)
	p.mu.Unlock()
}

// render must be called with p.mu held so output of two messages never
// interleaves.
func (p *Presenter) render(msg inapp.Message) {
	fmt.Fprintln(p.out)
	p.title.Fprintf(p.out, "━━ %s ━━\n", msg.Title)
	if msg.Body != "" {
		fmt.Fprintln(p.out, msg.Body)
	}

	primary, hasPrimary := msg.PrimaryAction()
	for i, a := range msg.Actions {
		label := fmt.Sprintf("  [%d] %s", i+1, a.Title)
		if hasPrimary && a.ID == primary.ID {
			p.primary.Fprintln(p.out, label)
			continue
		}
		p.secondary.Fprintln(p.out, label)
	}
	p.hint.Fprintf(p.out, "  [%s] Dismiss\n", dismissKey)
	fmt.Fprint(p.out, "> ")
}

func (p *Presenter) reprompt(actions int) {
	switch actions {
	case 0:
		p.hint.Fprintf(p.out, "Press enter or %s to dismiss\n> ", dismissKey)
	case 1:
		p.hint.Fprintf(p.out, "Choose 1 or %s\n> ", dismissKey)
	default:
		p.hint.Fprintf(p.out, "Choose 1-%d or %s\n> ", actions, dismissKey)
	}
}

func (p *Presenter) readLoop(in io.Reader) {
	defer close(p.done)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		p.handle(strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		p.logger.Warn("Input stream failed", "err", err)
	}
}

func (p *Presenter) handle(line string) {
	p.mu.Lock()
	cur := p.active
	if cur == nil {
		p.mu.Unlock()
		return
	}

	var actionID string
	switch {
	case line == "" || strings.EqualFold(line, dismissKey):
	default:
		n, err := strconv.Atoi(line)
		if err != nil || n < 1 || n > len(cur.msg.Actions) {
			p.reprompt(len(cur.msg.Actions))
			p.mu.Unlock()
			return
		}
		actionID = cur.msg.Actions[n-1].ID
	}
	p.active = nil
	p.mu.Unlock()

	// The responder may synchronously present the next message, which takes
	// p.mu, so it is called unlocked.
	if actionID != "" {
		p.logger.Debug("Action chosen", "message_id", cur.msg.ID, "action_id", actionID)
		cur.r.OnAction(actionID)
		return
	}
	cur.r.OnDismiss()
}
