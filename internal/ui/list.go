package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/ytlib/internal/models"
	"github.com/dustin/go-humanize"
)

var _ list.Item = jobItem{}

// jobItem wraps [models.Job] to implement [list.Item].
type jobItem struct {
	job *models.Job
}

func (i jobItem) FilterValue() string { return i.job.URL }
func (i jobItem) Title() string {
	name := i.job.Result.Title
	if name == "" {
		name = i.job.URL
	}
	return fmt.Sprintf("%s  %s", styles.statusStyle(i.job.Status).Render(i.job.Status.String()), name)
}

func (i jobItem) Description() string {
	desc := fmt.Sprintf("%s • %s • %d%%", i.job.Kind, humanize.Time(i.job.CreatedAt), i.job.Progress)
	if i.job.SubscriptionID != "" {
		desc += " • subscription"
	}
	if i.job.Error != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.job.Error)
	}
	return desc
}
