package harness

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/raine/telegram-fastkale-bot/internal/storage"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	sectionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

// Render prints a full result entry.
func Render(w io.Writer, e storage.CallLogEntry) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("▸ %s  %s /%s", e.Label, e.Method, e.Path)))
	fmt.Fprintln(w, "Status: "+statusText(e))

	if len(e.RequestHeaders) > 0 {
		fmt.Fprintln(w, sectionStyle.Render("Request headers:"))
		fmt.Fprintln(w, FormatJSON(storage.RedactHeaders(e.RequestHeaders)))
	}
	if e.RequestPayload != nil {
		fmt.Fprintln(w, sectionStyle.Render("Request payload:"))
		fmt.Fprintln(w, FormatJSON(e.RequestPayload))
	}
	fmt.Fprintln(w, sectionStyle.Render("Response:"))
	fmt.Fprintln(w, FormatJSON(e.ResponseBody))
	fmt.Fprintln(w)
}

// RenderLog prints one line per entry, newest first as given.
func RenderLog(w io.Writer, entries []storage.CallLogEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No calls recorded.")
		return
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%s  %s  %-6s /%s  %s\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"), statusText(e), e.Method, e.Path, e.Label)
	}
}

func statusText(e storage.CallLogEntry) string {
	switch {
	case e.Status == 0:
		return failStyle.Render("network error")
	case e.OK:
		return okStyle.Render(fmt.Sprintf("%d OK", e.Status))
	default:
		return failStyle.Render(fmt.Sprintf("%d FAILED", e.Status))
	}
}

// FormatJSON pretty prints v. Text bodies are printed as they are.
func FormatJSON(v any) string {
	switch t := v.(type) {
	case nil:
		return "(empty)"
	case string:
		if strings.TrimSpace(t) == "" {
			return "(empty)"
		}
		return t
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
