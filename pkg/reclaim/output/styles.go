package output

import "github.com/charmbracelet/lipgloss"

// Palette, from the ANSI 256-color set.
var (
	colorAccent = lipgloss.Color("39")
	colorOK     = lipgloss.Color("42")
	colorWarn   = lipgloss.Color("214")
	colorFail   = lipgloss.Color("196")
	colorDim    = lipgloss.Color("245")
	colorText   = lipgloss.Color("255")
)

func fg(c lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(c)
}

func box(border lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(0, 1)
}

var (
	// headerBox holds the run id, mode and timing.
	headerBox = box(colorAccent).MarginBottom(1)
	// totalsBox holds the totals of a clean run, failedBox those of a run
	// with errors.
	totalsBox = box(colorDim).MarginTop(1)
	failedBox = box(colorFail).MarginTop(1)

	titleText  = fg(colorAccent).Bold(true)
	labelText  = fg(colorDim)
	valueText  = fg(colorText)
	freedText  = fg(colorAccent).Bold(true)
	columnText = fg(colorDim).Bold(true)
	dimText    = fg(colorDim)
	okText     = fg(colorOK)
	warnText   = fg(colorWarn)
	failText   = fg(colorFail)
)

// statusText colours the status column of the stage table.
var statusText = map[string]lipgloss.Style{
	"ok":       okText,
	"partial":  warnText,
	"failed":   failText,
	"panicked": failText.Bold(true),
}
