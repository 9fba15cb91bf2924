package actions

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"

	"github.com/m-mizutani/herder/pkg/domain/interfaces"
)

var (
	headerStyle  = color.New(color.FgWhite, color.Bold)
	dimStyle     = color.New(color.FgWhite, color.Faint)
	warningStyle = color.New(color.FgYellow, color.Bold)
	errorStyle   = color.New(color.FgRed, color.Bold)
)

// Reporter writes workflow commands when running inside GitHub Actions and
// styled lines otherwise
type Reporter struct {
	w           io.Writer
	inActions   bool
	summaryPath string
	outputsPath string
}

var _ interfaces.Reporter = (*Reporter)(nil)

// Option is a functional option for Reporter
type Option func(*Reporter)

// WithWriter sets where lines are written. Defaults to stderr.
func WithWriter(w io.Writer) Option {
	return func(r *Reporter) {
		r.w = w
	}
}

// WithinActions enables workflow commands
func WithinActions(enabled bool) Option {
	return func(r *Reporter) {
		r.inActions = enabled
	}
}

// WithSummaryFile sets the step summary file, appended to inside Actions
func WithSummaryFile(path string) Option {
	return func(r *Reporter) {
		r.summaryPath = path
	}
}

// WithOutputsFile sets the file step outputs are appended to
func WithOutputsFile(path string) Option {
	return func(r *Reporter) {
		r.outputsPath = path
	}
}

func New(opts ...Option) *Reporter {
	r := &Reporter{w: os.Stderr}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reporter) infoLine(style *color.Color, prefix string, etc ...any) {
	args := append([]any{style.Sprint(prefix)}, etc...)
	fmt.Fprintln(r.w, args...)
}

// Output records a step output as a name=value line
func (r *Reporter) Output(name, value string) error {
	if strings.Contains(name, "\n") || strings.Contains(value, "\n") {
		return goerr.New("step output must be a single line", goerr.V("name", name), goerr.V("value", value))
	}

	r.infoLine(headerStyle, "output", name+"="+value)

	if r.outputsPath == "" {
		return nil
	}

	if err := appendFile(r.outputsPath, name+"="+value+"\n"); err != nil {
		return goerr.Wrap(err, "failed to write step output", goerr.V("path", r.outputsPath), goerr.V("name", name))
	}
	return nil
}

func (r *Reporter) Notice(msg ...any)  { r.annotate("notice", headerStyle, msg) }
func (r *Reporter) Warning(msg ...any) { r.annotate("warning", warningStyle, msg) }
func (r *Reporter) Error(msg ...any)   { r.annotate("error", errorStyle, msg) }

func (r *Reporter) annotate(kind string, style *color.Color, msg []any) {
	text := strings.TrimSuffix(fmt.Sprintln(msg...), "\n")
	for _, line := range strings.Split(text, "\n") {
		if r.inActions {
			fmt.Fprintf(r.w, "::%s:: %s\n", kind, line)
		} else {
			r.infoLine(style, kind, line)
		}
	}
}

// Summary prints content and, inside Actions, appends it to the step summary
func (r *Reporter) Summary(title string, content ...any) {
	prefix := "summary"
	if title != "" {
		prefix = "summary: " + title
	}
	rendered := strings.TrimSuffix(fmt.Sprintln(content...), "\n")
	r.infoLine(headerStyle, prefix, rendered)

	if !r.inActions || r.summaryPath == "" {
		return
	}

	var b strings.Builder
	if title != "" {
		b.WriteString("## " + title + "\n")
	}
	b.WriteString(rendered + "\n")

	if err := appendFile(r.summaryPath, b.String()); err != nil {
		r.infoLine(warningStyle, "warning", "failed to write step summary:", err)
	}
}

// Group opens a collapsible log group; call the returned function to close it
func (r *Reporter) Group(title string) func() {
	if !r.inActions {
		return func() {}
	}

	fmt.Fprintf(r.w, "::group::%s\n", title)
	return func() {
		fmt.Fprintln(r.w, "::endgroup::")
	}
}

// Info prints a dimmed informational line
func (r *Reporter) Info(prefix string, etc ...any) {
	r.infoLine(dimStyle, prefix, etc...)
}

func appendFile(path, content string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
