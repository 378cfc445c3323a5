package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/ytlib/internal/models"
	"github.com/desertthunder/ytlib/internal/stream"
)

var styles = NewPalette("#7D56F4", "#04B575", "#FF0000", "#FFA500", "#626262")

// Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
}

func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title: NewBold(t).MarginBottom(1),
		ok:    NewBold(s),
		err:   NewBold(e),
		warn:  NewStyle(w),
		help:  NewEm(h),
	}
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}

// statusStyle picks the style a job status is rendered in.
func (p *Palette) statusStyle(s models.JobStatus) lipgloss.Style {
	switch s {
	case models.StatusCompleted:
		return p.ok
	case models.StatusFailed:
		return p.err
	case models.StatusCancelled:
		return p.help
	case models.StatusPending:
		return p.warn
	default:
		return p.title.UnsetMarginBottom()
	}
}

// stateStyle picks the style a stream connection state is rendered in.
func (p *Palette) stateStyle(s stream.State) lipgloss.Style {
	switch s {
	case stream.Connected:
		return p.ok
	case stream.Disconnected:
		return p.err
	case stream.Ended:
		return p.help
	default:
		return p.warn
	}
}

// levelStyle picks the style a log line is rendered in.
func (p *Palette) levelStyle(level string) lipgloss.Style {
	switch level {
	case "error":
		return p.err
	case "warn":
		return p.warn
	case "debug":
		return p.help
	default:
		return lipgloss.NewStyle()
	}
}
