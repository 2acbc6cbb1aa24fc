package formatter

import (
	"fmt"
	"strings"
)

const (
	filledBlock = "█"
	emptyBlock  = "░"
)

// RenderProgress renders a wait bar like [████░░░░] 45%.
// The bar turns green once the wait is over and stays yellow while running.
func RenderProgress(pct float64, width int) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 1 {
		pct = 1
	}
	if width < 2 {
		width = 2
	}

	filled := int(pct * float64(width))
	if filled > width {
		filled = width
	}
	bar := strings.Repeat(filledBlock, filled) + strings.Repeat(emptyBlock, width-filled)

	style := StyleYellow
	if pct >= 1 {
		style = StyleGreen
	}
	return fmt.Sprintf("[%s] %3.0f%%", style.Render(bar), pct*100)
}

// StepDots renders the procedure position, e.g. "●●●○○○○" for step 3 of 7.
func StepDots(step, total int) string {
	if total <= 0 {
		return ""
	}
	if step < 0 {
		step = 0
	}
	if step > total {
		step = total
	}
	return StyleHeader.Render(strings.Repeat("●", step)) + StyleDim.Render(strings.Repeat("○", total-step))
}
