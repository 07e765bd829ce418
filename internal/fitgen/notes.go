package fitgen

import (
	"fmt"
	"strings"

	"github.com/claude/planfit/internal/models"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// CollectNotes renders the human-readable instructions of a workout, one
// line per entry. Notes are returned alongside the file and never encoded.
func CollectNotes(w models.Workout) string {
	// A Caser is stateful, so each call gets its own.
	title := cases.Title(language.English)
	kind := func(k string) string {
		parts := strings.Split(k, "_")
		for i, p := range parts {
			parts[i] = title.String(p)
		}
		return strings.Join(parts, "_")
	}

	var lines []string
	if w.AdditionalInstructions != "" {
		lines = append(lines, "Workout Instructions: "+w.AdditionalInstructions)
	}
	for _, p := range w.Phases {
		switch p := p.(type) {
		case models.SinglePhase:
			if p.Notes != "" {
				lines = append(lines, fmt.Sprintf("%s Phase: %s", kind(p.Kind), p.Notes))
			}
		case models.IntervalSet:
			lines = append(lines, fmt.Sprintf("Interval Set (%dx):", p.Repetitions))
			for _, iv := range p.Intervals {
				if iv.Notes != "" {
					lines = append(lines, fmt.Sprintf("- %s: %s", kind(iv.Kind), iv.Notes))
				}
			}
		}
	}
	return strings.Join(lines, "\n")
}
