package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"askweb/internal/auth"
	"askweb/internal/history"
	"askweb/internal/progress"
	"askweb/internal/session"

	"github.com/charmbracelet/glamour"
)

// Color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// Display renders the search conversation to a terminal. It is safe for
// concurrent use; progress updates arrive from the simulator goroutine.
type Display struct {
	mu       sync.Mutex
	out      io.Writer
	width    int
	color    bool
	renderer *glamour.TermRenderer
	now      func() time.Time
}

// NewDisplay creates a display writing to out. Colors and styled markdown
// are used only when out is a terminal.
func NewDisplay(out io.Writer) *Display {
	width, tty := terminalWidth(out)

	style := glamour.WithStandardStyle("notty")
	if tty {
		style = glamour.WithAutoStyle()
	}
	renderer, _ := glamour.NewTermRenderer(
		style,
		glamour.WithWordWrap(width-4),
	)

	return &Display{
		out:      out,
		width:    width,
		color:    tty,
		renderer: renderer,
		now:      time.Now,
	}
}

func (d *Display) paint(color, s string) string {
	if !d.color {
		return s
	}
	return color + s + colorReset
}

func (d *Display) printf(format string, args ...any) {
	fmt.Fprintf(d.out, format, args...)
}

// ClearScreen clears the terminal
func (d *Display) ClearScreen() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.color {
		d.printf("\033[2J\033[H")
	}
}

// PrintWelcome displays the banner and the signed-in user.
func (d *Display) PrintWelcome(backendURL string, user *auth.User) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.printf("%s\n", d.paint(colorBold+colorCyan, "askweb - answers from the web"))
	d.printf("%s %s\n", d.paint(colorGray, "Backend:"), backendURL)
	if user != nil {
		d.printf("%s %s\n", d.paint(colorGray, "Signed in as:"), user.Email)
	} else {
		d.printf("%s\n", d.paint(colorGray, "Not signed in. Use /login <email> to start searching."))
	}
	d.printf("%s\n\n", d.paint(colorGray, "Commands: /ask | /followup <id> | /view <id> | /history | /credits | /login | /help | /exit"))
}

// PrintPrompt displays user input prompt
func (d *Display) PrintPrompt() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.printf("\n%s ", d.paint(colorBold+colorGreen, "❯"))
}

// PrintHelp lists the available commands.
func (d *Display) PrintHelp(usage string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.printf("%s\n", d.paint(colorGray, usage))
}

// PrintUserMessage echoes a submitted query.
func (d *Display) PrintUserMessage(query string, followup bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	label := "You"
	if followup {
		label = "You (follow-up)"
	}
	d.printf("\n%s\n", d.paint(colorGray, fmt.Sprintf("┌─ %s · %s", label, d.now().Format("15:04:05"))))
	d.printf("%s %s\n", d.paint(colorGray, "│"), query)
}

// PrintStep renders a progress step. It is registered as the simulator
// observer.
func (d *Display) PrintStep(step progress.Step) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch step {
	case progress.StepIdle:
		return
	case progress.StepDone:
		d.printf("%s\n", d.paint(colorDim+colorGreen, "│ ✓ done"))
	default:
		d.printf("%s\n", d.paint(colorDim+colorCyan,
			fmt.Sprintf("│ [%d/%d] %s...", int(step), int(progress.StepSummarizing), step)))
	}
}

// PrintRecord renders a completed search: summary, sources and the queries
// the backend ran. parent is shown for follow-ups whose parent is still in
// the history.
func (d *Display) PrintRecord(rec history.Record, parent *history.Record) {
	d.mu.Lock()
	defer d.mu.Unlock()

	header := fmt.Sprintf("┌─ %s · %s · %s", rec.Query, rec.Time().Format("Jan 2 15:04"), ShortID(rec.ID))
	d.printf("\n%s\n", d.paint(colorBold, header))
	if rec.IsFollowup {
		if parent != nil {
			d.printf("%s\n", d.paint(colorGray, fmt.Sprintf("│ follow-up to %q (%s)", parent.Query, ShortID(parent.ID))))
		} else if rec.ParentID != "" {
			d.printf("%s\n", d.paint(colorGray, "│ follow-up to a search no longer in history"))
		}
	}

	d.printf("%s\n", d.paint(colorGray, "│"))
	for _, line := range strings.Split(d.renderMarkdown(rec.Summary), "\n") {
		d.printf("%s %s\n", d.paint(colorGray, "│"), line)
	}

	if len(rec.Sources) > 0 {
		d.printf("%s\n", d.paint(colorGray, "│"))
		d.printf("%s\n", d.paint(colorGray, "│ Sources:"))
		for i, src := range rec.Sources {
			title := src.Title
			if title == "" {
				title = src.Link
			}
			d.printf("%s %d. %s\n", d.paint(colorGray, "│"), i+1, truncate(title, d.width-8))
			if src.Title != "" {
				d.printf("%s    %s\n", d.paint(colorGray, "│"), d.paint(colorCyan, truncate(src.Link, d.width-8)))
			}
			if snippet := SnippetText(src.Snippet); snippet != "" {
				d.printf("%s    %s\n", d.paint(colorGray, "│"), d.paint(colorDim, snippet))
			}
		}
	}

	if len(rec.QueriesUsed) > 0 {
		d.printf("%s\n", d.paint(colorGray, "│"))
		d.printf("%s\n", d.paint(colorGray, "│ Searched for: "+strings.Join(rec.QueriesUsed, "; ")))
	}
	d.printf("%s\n", d.paint(colorGray, "└"))
}

func (d *Display) renderMarkdown(md string) string {
	if strings.TrimSpace(md) == "" {
		return "(no summary)"
	}
	if d.renderer == nil {
		return md
	}
	rendered, err := d.renderer.Render(md)
	if err != nil {
		return md
	}
	return strings.Trim(rendered, "\n")
}

// PrintHistory lists records newest first, marking the active one.
func (d *Display) PrintHistory(records []history.Record, activeID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(records) == 0 {
		d.printf("%s\n", d.paint(colorCyan, "ℹ No searches yet"))
		return
	}

	d.printf("%s\n", d.paint(colorBold, fmt.Sprintf("Search history (%d)", len(records))))
	for _, rec := range records {
		marker := " "
		if rec.ID == activeID {
			marker = "*"
		}
		kind := "  "
		if rec.IsFollowup {
			kind = "↳ "
		}
		d.printf("%s %s  %s  %s%s\n",
			marker,
			d.paint(colorGray, ShortID(rec.ID)),
			d.paint(colorGray, rec.Time().Format("Jan 2 15:04")),
			kind,
			truncate(rec.Query, d.width-30))
	}
}

// PrintCredits shows the remaining balance of user.
func (d *Display) PrintCredits(user *auth.User, balance int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.printf("%s\n", d.paint(colorCyan, fmt.Sprintf("ℹ %s has %d credit%s left", user.Email, balance, plural(balance))))
}

// PrintError displays the user-facing message for err.
func (d *Display) PrintError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.printf("%s\n", d.paint(colorRed, "✗ "+session.UserMessage(err)))
}

// PrintInfo displays info message
func (d *Display) PrintInfo(msg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.printf("%s\n", d.paint(colorCyan, "ℹ "+msg))
}

// PrintWarning displays warning message
func (d *Display) PrintWarning(msg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.printf("%s\n", d.paint(colorYellow, "⚠ "+msg))
}

// PrintSuccess displays success message
func (d *Display) PrintSuccess(msg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.printf("%s\n", d.paint(colorGreen, "✓ "+msg))
}

// PrintGoodbye displays goodbye message
func (d *Display) PrintGoodbye() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.printf("\n%s\n", d.paint(colorBold+colorCyan, "Goodbye!"))
}

// ShortID is the suffix of an id users type to refer to a record. The
// leading bits of a time-ordered id are shared by records made together.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[len(id)-8:]
}

func truncate(s string, maxLen int) string {
	if maxLen < 4 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
