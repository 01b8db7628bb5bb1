package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"sigma-trader/internal/models"
)

// JSON markers wrapped around machine-readable run output.
const (
	JSONStart = "__JSON_START__"
	JSONEnd   = "__JSON_END__"
)

// Output handles formatted output for the CLI.
type Output struct {
	writer   io.Writer
	jsonMode bool

	green   *color.Color
	red     *color.Color
	yellow  *color.Color
	cyan    *color.Color
	magenta *color.Color
	bold    *color.Color
	dim     *color.Color
}

// NewOutput creates a new Output instance. Color follows the terminal
// detection of fatih/color and is off in JSON mode.
func NewOutput(cmd *cobra.Command) *Output {
	jsonMode, _ := cmd.Flags().GetBool("json")
	o := &Output{
		writer:   cmd.OutOrStdout(),
		jsonMode: jsonMode,
		green:    color.New(color.FgGreen),
		red:      color.New(color.FgRed),
		yellow:   color.New(color.FgYellow),
		cyan:     color.New(color.FgCyan),
		magenta:  color.New(color.FgMagenta),
		bold:     color.New(color.Bold),
		dim:      color.New(color.Faint),
	}
	if jsonMode {
		for _, c := range []*color.Color{o.green, o.red, o.yellow, o.cyan, o.magenta, o.bold, o.dim} {
			c.DisableColor()
		}
	}
	return o
}

// IsJSON returns true if JSON output mode is enabled.
func (o *Output) IsJSON() bool {
	return o.jsonMode
}

// JSON outputs data as indented JSON.
func (o *Output) JSON(data interface{}) error {
	encoder := json.NewEncoder(o.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// MarkedJSON outputs data as JSON between the start and end markers.
func (o *Output) MarkedJSON(data interface{}) error {
	fmt.Fprintln(o.writer, JSONStart)
	if err := o.JSON(data); err != nil {
		return err
	}
	fmt.Fprintln(o.writer, JSONEnd)
	return nil
}

// Println prints a message with newline.
func (o *Output) Println(args ...interface{}) {
	fmt.Fprintln(o.writer, args...)
}

// Printf prints a formatted message.
func (o *Output) Printf(format string, args ...interface{}) {
	fmt.Fprintf(o.writer, format, args...)
}

// Success prints a success message in green.
func (o *Output) Success(format string, args ...interface{}) {
	o.green.Fprintf(o.writer, format+"\n", args...)
}

// Error prints an error message in red.
func (o *Output) Error(format string, args ...interface{}) {
	o.red.Fprintf(o.writer, format+"\n", args...)
}

// Warning prints a warning message in yellow.
func (o *Output) Warning(format string, args ...interface{}) {
	o.yellow.Fprintf(o.writer, format+"\n", args...)
}

// Info prints an info message in cyan.
func (o *Output) Info(format string, args ...interface{}) {
	o.cyan.Fprintf(o.writer, format+"\n", args...)
}

// Bold prints a bold message.
func (o *Output) Bold(format string, args ...interface{}) {
	o.bold.Fprintf(o.writer, format+"\n", args...)
}

// Dim prints a dimmed message.
func (o *Output) Dim(format string, args ...interface{}) {
	o.dim.Fprintf(o.writer, format+"\n", args...)
}

// Green returns green colored text.
func (o *Output) Green(text string) string { return o.green.Sprint(text) }

// Red returns red colored text.
func (o *Output) Red(text string) string { return o.red.Sprint(text) }

// Yellow returns yellow colored text.
func (o *Output) Yellow(text string) string { return o.yellow.Sprint(text) }

// DimText returns dimmed text.
func (o *Output) DimText(text string) string { return o.dim.Sprint(text) }

// SourceTag returns a bracketed provenance or decision-source tag.
func (o *Output) SourceTag(source string) string {
	tag := "[" + source + "]"
	switch source {
	case string(models.Live):
		return o.cyan.Sprint(tag)
	case string(models.Derived):
		return o.yellow.Sprint(tag)
	case string(models.SourceModel):
		return o.magenta.Sprint(tag)
	case string(models.SourceManual):
		return o.bold.Sprint(tag)
	case string(models.SourceDefault):
		return o.red.Sprint(tag)
	default:
		return o.dim.Sprint(tag)
	}
}

// Decision colors a risk verdict.
func (o *Output) Decision(d models.RiskDecision) string {
	if d == models.RiskApproved {
		return o.green.Sprint("APPROVED")
	}
	return o.red.Sprint("REJECTED")
}
