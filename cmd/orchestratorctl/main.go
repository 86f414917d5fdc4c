// Command orchestratorctl is a small operator TUI for a running
// orchestratord: it pages over a single task's detail, units, and audits
// through the daemon's own HTTP API. Grounded on cmd/goclaw/main.go's
// flag-parsing shape and internal/tui/tui.go's tick-driven model,
// generalized from an in-process StatusProvider to an HTTP-fetched one.
package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
)

func main() {
	addr := flag.String("addr", "http://127.0.0.1:8080", "orchestratord API base URL")
	token := flag.String("token", os.Getenv("TASKORC_AUTH_TOKEN"), "bearer auth token")
	taskFlag := flag.Int64("task", 0, "task id to open immediately")
	flag.Parse()

	client := newAPIClient(*addr, *token)

	m := initialModel(client, *taskFlag)
	p := tea.NewProgram(m)
	if _, err := p.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "orchestratorctl:", err)
		os.Exit(1)
	}
}
