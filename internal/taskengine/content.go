package taskengine

import (
	"fmt"
	"strings"
	"time"

	"github.com/basket/taskorc/internal/store"
)

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

func plannerContent(prd string) string {
	return fmt.Sprintf("PRD:\n%s", prd)
}

func unitGeneratorContent(process string) string {
	return fmt.Sprintf("Current process document:\n%s", process)
}

func unitExecutorContent(objective string, prevUnits []store.Unit, prd string, prdCreatedAt time.Time, chats []store.Chat) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Objective:\n%s\n\n", objective)
	fmt.Fprintf(&b, "PRD (created %s):\n%s\n\n", prdCreatedAt.UTC().Format(time.RFC3339), prd)

	if len(prevUnits) == 0 {
		b.WriteString("Previous round outputs: none.\n\n")
	} else {
		b.WriteString("Previous round outputs:\n")
		for _, u := range prevUnits {
			fmt.Fprintf(&b, "- %s: %s\n", u.Name, derefOr(u.Output, ""))
		}
		b.WriteString("\n")
	}

	if len(chats) == 0 {
		b.WriteString("Chat history: none.\n")
	} else {
		b.WriteString("Chat history:\n")
		for _, c := range chats {
			fmt.Fprintf(&b, "- %s: %s\n", c.Role, c.Message)
		}
	}
	return b.String()
}

func nextStateContent(process string, currUnits []store.Unit, chats []store.Chat) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current process document:\n%s\n\n", process)

	b.WriteString("Completed units this round:\n")
	for _, u := range currUnits {
		fmt.Fprintf(&b, "- %s: %s\n", u.Name, derefOr(u.Output, ""))
	}
	b.WriteString("\n")

	if len(chats) == 0 {
		b.WriteString("Chat history: none.\n")
	} else {
		b.WriteString("Chat history:\n")
		for _, c := range chats {
			fmt.Fprintf(&b, "- %s: %s\n", c.Role, c.Message)
		}
	}
	return b.String()
}

func waitingHandlerContent(process, notifyUser, userMessage string) string {
	return fmt.Sprintf("Process document:\n%s\n\nQuestion asked of the user:\n%s\n\nUser's reply:\n%s",
		process, notifyUser, userMessage)
}

func refactorContent(previousPRD, updateText string) string {
	return fmt.Sprintf("Previous PRD:\n%s\n\nUser's requested update:\n%s", previousPRD, updateText)
}

func resultSynthesiserContent(prd, process string, units []store.Unit) string {
	var b strings.Builder
	fmt.Fprintf(&b, "PRD:\n%s\n\nFinal process document:\n%s\n\n", prd, process)
	b.WriteString("All completed units:\n")
	for _, u := range units {
		fmt.Fprintf(&b, "- %s: %s\n", u.Name, derefOr(u.Output, ""))
	}
	return b.String()
}
