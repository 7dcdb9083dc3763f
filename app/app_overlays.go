package app

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/kastheco/haven/keys"
	"github.com/kastheco/haven/ui"
	"github.com/kastheco/haven/ui/overlay"
	"github.com/kastheco/haven/worktreeinit"
)

var (
	toastInfoStyle = lipgloss.NewStyle().
			Foreground(ui.ColorBase).
			Background(ui.ColorFoam).
			Padding(0, 1)
	toastErrStyle = lipgloss.NewStyle().
			Foreground(ui.ColorBase).
			Background(ui.ColorLove).
			Padding(0, 1)

	jobCursorStyle = lipgloss.NewStyle().Foreground(ui.ColorIris).Bold(true)
	jobStepStyle   = lipgloss.NewStyle().Foreground(ui.ColorGold)
	jobReadyStyle  = lipgloss.NewStyle().Foreground(ui.ColorPine)
	jobFailedStyle = lipgloss.NewStyle().Foreground(ui.ColorLove)
	jobDimStyle    = lipgloss.NewStyle().Foreground(ui.ColorMuted)
)

func (h *home) renderJobs() string {
	jobs := h.jobs.Jobs(h.proj.ID)
	if len(jobs) == 0 {
		return overlay.Box("worktree jobs", jobDimStyle.Render("no jobs yet — press w to create a worktree"))
	}
	if h.jobCursor >= len(jobs) {
		h.jobCursor = len(jobs) - 1
	}

	var b strings.Builder
	for i, job := range jobs {
		cursor := "  "
		line := fmt.Sprintf("%s  %s", job.Branch, h.renderStep(job))
		if i == h.jobCursor {
			cursor = jobCursorStyle.Render("> ")
			line = jobCursorStyle.Render(job.Branch) + "  " + h.renderStep(job)
		}
		b.WriteString(cursor + line + "\n")
		if i == h.jobCursor {
			if job.Err != "" {
				b.WriteString(jobFailedStyle.Render("    "+job.Err) + "\n")
			}
			for _, w := range job.Warnings {
				b.WriteString(jobStepStyle.Render("    warning: "+w) + "\n")
			}
		}
	}
	b.WriteString("\n" + jobDimStyle.Render("C cancel · r retry · y copy diagnostics · o open · esc close"))
	return overlay.Box("worktree jobs", strings.TrimRight(b.String(), "\n"))
}

func (h *home) renderStep(job worktreeinit.Job) string {
	switch job.Step {
	case worktreeinit.StepReady:
		return jobReadyStyle.Render("ready")
	case worktreeinit.StepFailed:
		return jobFailedStyle.Render("failed")
	case worktreeinit.StepCancelled:
		return jobDimStyle.Render("cancelled")
	default:
		return jobStepStyle.Render(string(job.Step))
	}
}

// helpOrder fixes the listing order of bindings in the help overlay.
var helpOrder = []keys.KeyName{
	keys.KeyEnterFocus, keys.KeyExitFocus,
	keys.KeySplitRight, keys.KeySplitDown, keys.KeyClosePane,
	keys.KeyFocusNext, keys.KeyFocusPrev,
	keys.KeyGrowPane, keys.KeyShrinkPane,
	keys.KeyNewTab, keys.KeyCloseTab, keys.KeyNextTab, keys.KeyPrevTab,
	keys.KeyWorktree, keys.KeyJobs,
	keys.KeyHelp, keys.KeyQuit,
}

func (h *home) renderHelp() string {
	keyStyle := lipgloss.NewStyle().Foreground(ui.ColorFoam)
	descStyle := lipgloss.NewStyle().Foreground(ui.ColorText)

	var b strings.Builder
	for _, name := range helpOrder {
		binding, ok := keys.GlobalkeyBindings[name]
		if !ok {
			continue
		}
		help := binding.Help()
		b.WriteString(fmt.Sprintf("%s %s\n",
			keyStyle.Render(fmt.Sprintf("%10s", help.Key)),
			descStyle.Render(help.Desc)))
	}

	note := "Keys act on the focused pane. Inside a shell, every keystroke " +
		"goes to the terminal until you press ctrl+space."
	width := 46
	if h.width > 0 && h.width-10 < width {
		width = h.width - 10
	}
	b.WriteString("\n" + jobDimStyle.Render(wordwrap.String(note, width)))
	return overlay.Box("help", strings.TrimRight(b.String(), "\n"))
}
