package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"

	"github.com/ShayCichocki/monica/pkg/models"
)

// printStatus prints a status line with color
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}

// printOutcome prints a completion outcome.
func printOutcome(fp models.Fingerprint, o models.Outcome) {
	suffix := ""
	if o.Replayed {
		suffix = color.New(color.FgHiBlack).Sprint(" (already handled)")
	}
	switch o.Kind {
	case models.OutcomeSuccessorCreated:
		printStatus("✓", fmt.Sprintf("%s → successor %s%s", fp, o.SuccessorID, suffix), color.FgGreen)
	case models.OutcomeNoSuccessor:
		printStatus("·", fmt.Sprintf("%s → no successor needed%s", fp, suffix), color.FgCyan)
	default:
		printStatus("✗", fmt.Sprintf("%s → failed: %s%s", fp, o.Reason, suffix), color.FgRed)
	}
}

// printSuggestion prints one suggestion record.
func printSuggestion(r models.SuggestionRecord) {
	title := r.TaskTitle
	if title == "" {
		title = r.TaskID
	}
	start := r.Window.Start.Local()
	end := r.Window.End.Local()

	responseColor := color.FgYellow
	switch r.Response {
	case models.ResponseAccepted:
		responseColor = color.FgGreen
	case models.ResponseDeclined:
		responseColor = color.FgRed
	case models.ResponseExpired:
		responseColor = color.FgHiBlack
	}

	fmt.Printf("%s  %s\n", color.New(responseColor).Sprintf("%-8s", r.Response), title)
	fmt.Printf("          %s %s-%s (%s)  score %.2f  offer #%d  task %s\n",
		start.Format("Mon Jan 2"), start.Format("15:04"), end.Format("15:04"),
		r.Window.Source, r.Score, r.Seq, r.TaskID)
}

// formatAge renders how long ago t was.
func formatAge(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
