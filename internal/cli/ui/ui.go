package ui

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/fatih/color"
)

var (
	// Color definitions for terminal output
	successColor   = color.New(color.FgGreen, color.Bold)
	errorColor     = color.New(color.FgRed, color.Bold)
	warningColor   = color.New(color.FgYellow, color.Bold)
	infoColor      = color.New(color.FgCyan)
	emergencyColor = color.New(color.FgRed, color.Bold)
	dimColor       = color.New(color.Faint)
)

// Out is where responses are written. Status lines go to stderr.
var Out io.Writer = os.Stdout

func PrintSuccess(format string, args ...interface{}) {
	successColor.Fprintf(os.Stderr, "✓ %s\n", fmt.Sprintf(format, args...))
}

func PrintError(format string, args ...interface{}) {
	errorColor.Fprintf(os.Stderr, "✗ %s\n", fmt.Sprintf(format, args...))
}

func PrintWarning(format string, args ...interface{}) {
	warningColor.Fprintf(os.Stderr, "⚠ %s\n", fmt.Sprintf(format, args...))
}

func PrintInfo(format string, args ...interface{}) {
	infoColor.Fprintf(os.Stderr, "ℹ %s\n", fmt.Sprintf(format, args...))
}

// PrintResponse prints a model or advisory response body.
func PrintResponse(text string, emergency bool) {
	if emergency {
		emergencyColor.Fprintln(Out, "EMERGENCY ADVISORY")
	}
	fmt.Fprintln(Out, text)
}

// PrintChunk writes streamed text without a trailing newline.
func PrintChunk(text string) {
	fmt.Fprint(Out, text)
}

// PrintMetadata prints metadata keys in a stable order.
func PrintMetadata(metadata map[string]interface{}) {
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		dimColor.Fprintf(os.Stderr, "  %s: %v\n", k, metadata[k])
	}
}
