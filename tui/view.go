package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/bodul/loto/scan"
	"github.com/bodul/loto/ticket"
)

func (model Model) View() string {
	var b strings.Builder

	b.WriteString(model.styles.Title.Render("Lô Tô"))
	b.WriteString("  ")
	b.WriteString(model.styles.Status.Render(model.statusLine()))
	b.WriteString("\n\n")

	if model.banner {
		b.WriteString(model.styles.Banner.Render("LÔ TÔ! A row is complete!"))
		b.WriteString("\n\n")
	}

	if model.state.Scanned() {
		blocks := make([]string, 0, len(model.state.Ticket.Blocks))
		for _, block := range model.state.Ticket.Blocks {
			blocks = append(blocks, model.renderBlock(block))
		}
		b.WriteString(lipgloss.JoinVertical(lipgloss.Left, blocks...))
		b.WriteString("\n")
		fmt.Fprintf(&b, "%s\n", model.styles.Faint.Render(model.marksLine()))
	}

	if msg := scan.UserMessage(model.state.Err); msg != "" {
		b.WriteString(model.styles.Error.Render(msg))
		b.WriteString("\n")
	}
	if model.notice != "" {
		b.WriteString(model.styles.Notice.Render(model.notice))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	switch model.mode {
	case modeOpen:
		b.WriteString(model.styles.Prompt.Render("Image path: "))
		b.WriteString(model.input + "█\n")
		b.WriteString(model.styles.Faint.Render("enter open • esc back"))
	case modeConfirm:
		b.WriteString(model.styles.Prompt.Render(model.prompt + " (y/n)"))
	default:
		if model.state.Scanned() {
			b.WriteString(model.styles.Prompt.Render("Number: "))
			b.WriteString(model.input + "█\n")
		}
		b.WriteString(model.help.View(model.keys))
	}
	b.WriteString("\n")
	return b.String()
}

func (model Model) statusLine() string {
	st := model.state
	switch st.Phase {
	case scan.PhaseIdle:
		return "Open a ticket image to start."
	case scan.PhaseImageSelected:
		return fmt.Sprintf("Ready to scan %s", imageName(st))
	case scan.PhaseScanning:
		return scan.StageLabel(st.Stage)
	case scan.PhaseCompleted:
		line := fmt.Sprintf("%d block(s)", len(st.Ticket.Blocks))
		if st.TicketID != "" {
			line += " • ticket " + st.TicketID
		}
		if st.Confidence > 0 {
			line += fmt.Sprintf(" • confidence %.0f%%", st.Confidence*100)
		}
		return line
	case scan.PhaseRejected:
		return "Not a ticket."
	case scan.PhaseFailed:
		return "Scan failed."
	}
	return st.Phase.String()
}

func imageName(st scan.State) string {
	if st.Image == nil {
		return ""
	}
	if st.Image.Name != "" {
		return st.Image.Name
	}
	return st.Image.URI
}

func (model Model) marksLine() string {
	marks := model.state.Marks.Sorted()
	if len(marks) == 0 {
		return "No numbers marked."
	}
	parts := make([]string, len(marks))
	for i, n := range marks {
		parts[i] = strconv.Itoa(n)
	}
	return "Marked: " + strings.Join(parts, " ")
}

func (model Model) renderBlock(block ticket.Block) string {
	rows := block.Rows()
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, model.renderRow(row))
	}
	return model.styles.Block.Render(strings.Join(lines, "\n"))
}

func (model Model) renderRow(row ticket.Row) string {
	marks := model.state.Marks
	grid := ticket.BuildGrid(row)
	cells := make([]string, 0, len(grid)+1)
	for _, cell := range grid {
		switch {
		case !cell.Filled:
			cells = append(cells, model.styles.Empty.Render("·"))
		case marks.Has(cell.Number):
			cells = append(cells, model.styles.Marked.Render(strconv.Itoa(cell.Number)))
		default:
			cells = append(cells, model.styles.Cell.Render(strconv.Itoa(cell.Number)))
		}
	}
	if ticket.RowSatisfied(row, marks) {
		cells = append(cells, model.styles.Complete.Render(" ✓"))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cells...)
}
