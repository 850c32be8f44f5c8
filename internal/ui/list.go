package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"

	"github.com/desertthunder/agin/internal/models"
	"github.com/desertthunder/agin/internal/shared"
)

var (
	_ list.Item = activeItem{}
	_ list.Item = downloadedItem{}
	_ list.Item = queueItem{}
)

// activeItem wraps an in-flight [models.DownloadProgress] to implement [list.Item].
type activeItem struct {
	progress models.DownloadProgress
	title    string
	bar      string
}

func (i activeItem) FilterValue() string { return i.title }
func (i activeItem) Title() string       { return i.title }
func (i activeItem) Description() string {
	label := string(i.progress.State)
	if i.progress.Progress >= 1 {
		label = "finishing"
	}
	desc := fmt.Sprintf("%s %3d%% • %s", i.bar, i.progress.Percent(), label)
	if i.progress.TotalBytes > 0 {
		desc = fmt.Sprintf("%s • %s / %s", desc,
			shared.FormatBytes(i.progress.BytesDownloaded), shared.FormatBytes(i.progress.TotalBytes))
	}
	return desc
}

// downloadedItem wraps [models.DownloadedTrack] to implement [list.Item].
type downloadedItem struct {
	track models.DownloadedTrack
}

func (i downloadedItem) FilterValue() string { return i.track.Title }
func (i downloadedItem) Title() string       { return i.track.Title }
func (i downloadedItem) Description() string {
	parts := []string{i.track.Artist}
	if i.track.Album != "" {
		parts = append(parts, i.track.Album)
	}
	parts = append(parts, shared.FormatBytes(i.track.FileSize))
	return strings.Join(parts, " • ")
}

// queueItem wraps [models.QueueItem] to implement [list.Item].
type queueItem struct {
	index   int
	item    models.QueueItem
	current bool
}

func (i queueItem) FilterValue() string { return i.item.Child.Title }
func (i queueItem) Title() string {
	title := i.item.Child.Title
	if i.item.Child.IsStarred() {
		title += " ★"
	}
	if i.current {
		return "▶ " + title
	}
	return title
}

func (i queueItem) Description() string {
	desc := i.item.Child.Artist
	if i.item.Child.Album != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.item.Child.Album)
	}
	return fmt.Sprintf("%s • %s", desc, shared.FormatDuration(i.item.Child.Duration))
}
