package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/basket/warden/internal/store"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	idStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("81"))
	faintStyle  = lipgloss.NewStyle().Faint(true)

	statusStyles = map[store.Status]lipgloss.Style{
		store.StatusSpawning: lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
		store.StatusRunning:  lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		store.StatusStopped:  lipgloss.NewStyle().Faint(true),
		store.StatusError:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

func styleStatus(status store.Status, padded string) string {
	if style, ok := statusStyles[status]; ok {
		return style.Render(padded)
	}
	return padded
}

func runListCommand(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	statusFlag := fs.String("status", "", "filter by status: spawning, running, stopped or error")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	filter, ok := parseStatusFlag(*statusFlag)
	if !ok {
		fmt.Fprintf(os.Stderr, "invalid status %q\n", *statusFlag)
		return 2
	}

	a, err := newApp(false)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer a.Close()

	recs, err := a.manager.List(ctx, filter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list failed: %v\n", err)
		return 1
	}
	if len(recs) == 0 {
		fmt.Println("No agents.")
		return 0
	}

	fmt.Println(renderAgentTable(recs))
	return 0
}

// parseStatusFlag maps the flag value to an optional store filter. The
// second return is false for unrecognized values.
func parseStatusFlag(value string) (*store.Status, bool) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return nil, true
	}
	status := store.Status(value)
	if !status.Valid() {
		return nil, false
	}
	return &status, true
}

func renderAgentTable(recs []store.AgentRecord) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-10s %-10s %-10s %-12s %s",
		"ID", "STATUS", "BACKEND", "CREATED", "REPOSITORY")))
	b.WriteString("\n")
	for _, rec := range recs {
		b.WriteString(idStyle.Render(fmt.Sprintf("%-10s ", rec.ID)))
		b.WriteString(styleStatus(rec.Status, fmt.Sprintf("%-10s ", rec.Status)))
		b.WriteString(fmt.Sprintf("%-10s ", rec.Backend))
		b.WriteString(faintStyle.Render(fmt.Sprintf("%-12s ", relativeAge(rec.CreatedAt))))
		b.WriteString(rec.RepoURL)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// relativeAge renders a short human age like "3h ago".
func relativeAge(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
