package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/ledgerline/ledgerline/internal/onboarding"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")).MarginBottom(1)
	stepStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

var stepTitles = map[onboarding.Step]string{
	onboarding.StepSubscription:   "Subscription",
	onboarding.StepDomain:         "Domain",
	onboarding.StepCompanyProfile: "Company profile",
	onboarding.StepPresets:        "Accounting presets",
	onboarding.StepConfirmation:   "Confirmation",
}

func renderStepHeader(s onboarding.State) string {
	return stepStyle.Render(fmt.Sprintf("Step %d of %d: %s",
		int(s.CurrentStep), onboarding.TotalSteps, stepTitles[s.CurrentStep]))
}

func renderProgressLine(p onboarding.ProgressSnapshot) string {
	line := fmt.Sprintf("%s %3d%%", progressBar(p.Percent, 20), p.Percent)
	if p.CurrentPreset != "" {
		line += " " + mutedStyle.Render(p.CurrentPreset)
	}
	return line
}

func progressBar(percent, width int) string {
	percent = min(max(percent, 0), 100)
	filled := percent * width / 100
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}

// renderProgress lists each preset's outcome under the overall bar.
func renderProgress(p onboarding.ProgressSnapshot) string {
	var b strings.Builder
	b.WriteString(renderProgressLine(p))
	keys := make([]string, 0, len(p.Results))
	for k := range p.Results {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		r := p.Results[k]
		b.WriteString("\n")
		if r.Success {
			b.WriteString(okStyle.Render("  ok   "))
			fmt.Fprintf(&b, "%s (%d records)", k, r.RecordCount)
		} else {
			b.WriteString(errorStyle.Render("  fail "))
			fmt.Fprintf(&b, "%s: %s", k, r.Error)
		}
	}
	return b.String()
}

func renderValidation(err *onboarding.ValidationError) string {
	fields := make([]string, 0, len(err.Fields))
	for f := range err.Fields {
		fields = append(fields, f)
	}
	slices.Sort(fields)

	var b strings.Builder
	b.WriteString(warnStyle.Render("Please fix the following:"))
	for _, f := range fields {
		fmt.Fprintf(&b, "\n  %s %s", f, err.Fields[f])
	}
	return b.String()
}

func renderStatus(s onboarding.Status) string {
	var b strings.Builder
	for step := onboarding.StepSubscription; step <= onboarding.StepConfirmation; step++ {
		mark := mutedStyle.Render("[ ]")
		switch {
		case slices.Contains(s.CompletedSteps, step):
			mark = okStyle.Render("[x]")
		case step == s.CurrentStep:
			mark = stepStyle.Render("[>]")
		}
		if step > onboarding.StepSubscription {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s %s", mark, stepTitles[step])
	}
	if s.IsComplete {
		b.WriteString("\n" + okStyle.Render("Onboarding complete"))
		if s.CompletedAt != nil {
			b.WriteString(mutedStyle.Render(" on " + s.CompletedAt.Format("2006-01-02")))
		}
	}
	return boxStyle.Render(b.String())
}
