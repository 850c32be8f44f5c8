// package formatter exports downloaded tracks and play queues to CSV, Markdown and plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/agin/internal/models"
	"github.com/desertthunder/agin/internal/shared"
)

// Format selects an export renderer.
type Format string

const (
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
	FormatJSON     Format = "json"
)

// ParseFormat accepts csv, md, markdown, txt, text and json.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return FormatCSV, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	case "txt", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("%w: unknown export format %q", shared.ErrInvalidArgument, s)
}

// Export is a titled track listing.
type Export struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Source  string `json:"source,omitempty"`
	Summary string `json:"summary,omitempty"`
	Tracks  []Row  `json:"-"`
}

// Row is one exported track. Current marks the now-playing queue entry.
type Row struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Artist   string `json:"artist,omitempty"`
	Album    string `json:"album,omitempty"`
	Duration int    `json:"duration"`
	Size     int64  `json:"size,omitempty"`
	Path     string `json:"path,omitempty"`
	Current  bool   `json:"current,omitempty"`
}

// FromDownloads builds an export of the downloaded library.
func FromDownloads(tracks []models.DownloadedTrack, storage models.StorageInfo) *Export {
	e := &Export{
		ID:      "downloads",
		Title:   "Downloads",
		Summary: fmt.Sprintf("%d tracks, %s", storage.TrackCount, shared.FormatBytes(storage.TotalBytes)),
		Tracks:  make([]Row, len(tracks)),
	}
	for i, t := range tracks {
		e.Tracks[i] = Row{
			ID:       t.TrackID,
			Title:    t.Title,
			Artist:   t.Artist,
			Album:    t.Album,
			Duration: int(t.Duration),
			Size:     t.FileSize,
			Path:     t.FilePath,
		}
	}
	return e
}

// FromPlaylist builds an export of a catalog playlist.
func FromPlaylist(p *models.Playlist) *Export {
	e := fromChildren(p.ID, p.Name, p.Entry)
	e.Source = "Playlist"
	if p.Owner != "" {
		e.Source = "Playlist by " + p.Owner
	}
	return e
}

// FromAlbum builds an export of a catalog album.
func FromAlbum(a *models.Album) *Export {
	e := fromChildren(a.ID, a.Name, a.Song)
	e.Source = "Album"
	if a.Artist != "" {
		e.Source = "Album by " + a.Artist
	}
	return e
}

func fromChildren(id, title string, children []models.Child) *Export {
	e := &Export{ID: id, Title: title, Tracks: make([]Row, len(children))}
	total := 0
	for i, c := range children {
		e.Tracks[i] = Row{ID: c.ID, Title: c.Title, Artist: c.Artist, Album: c.Album, Duration: c.Duration}
		total += c.Duration
	}
	e.Summary = fmt.Sprintf("%d tracks, %s", len(children), shared.FormatDuration(total))
	return e
}

// FromQueue builds an export of a play queue; active marks the current entry.
func FromQueue(items []models.QueueItem, source models.QueueSource, active int) *Export {
	e := &Export{
		ID:     "queue",
		Title:  "Queue",
		Source: source.String(),
		Tracks: make([]Row, len(items)),
	}
	if source.SourceID != "" {
		e.ID = source.SourceID
	}
	if source.SourceName != "" {
		e.Title = source.SourceName
	}

	total := 0
	for i, item := range items {
		e.Tracks[i] = Row{
			ID:       item.Child.ID,
			Title:    item.Child.Title,
			Artist:   item.Child.Artist,
			Album:    item.Child.Album,
			Duration: item.Child.Duration,
			Current:  i == active,
		}
		total += item.Child.Duration
	}
	e.Summary = fmt.Sprintf("%d tracks, %s", len(items), shared.FormatDuration(total))
	return e
}

// ExportToCSV converts an Export to CSV with columns: ID, Title, Artist, Album, Duration, Size, Path
func ExportToCSV(export *Export) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Title", "Artist", "Album", "Duration", "Size", "Path"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, track := range export.Tracks {
		record := []string{
			track.ID,
			track.Title,
			track.Artist,
			track.Album,
			strconv.Itoa(track.Duration),
			strconv.FormatInt(track.Size, 10),
			track.Path,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts an Export to Markdown with an optional cover image
func ExportToMarkdown(export *Export, imageFilename string) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# %s\n\n", export.Title)

	if imageFilename != "" {
		fmt.Fprintf(&buf, "![Cover](%s)\n\n", imageFilename)
	}

	if export.Source != "" {
		fmt.Fprintf(&buf, "**Source**: %s\n", export.Source)
	}
	fmt.Fprintf(&buf, "**Tracks**: %d\n", len(export.Tracks))
	if export.Summary != "" {
		fmt.Fprintf(&buf, "**Summary**: %s\n", export.Summary)
	}
	buf.WriteString("\n## Tracks\n\n")

	for i, track := range export.Tracks {
		albumPart := ""
		if track.Album != "" {
			albumPart = fmt.Sprintf(" (%s)", track.Album)
		}
		marker := ""
		if track.Current {
			marker = " **(playing)**"
		}
		fmt.Fprintf(&buf, "%d. %s - %s%s [%s]%s\n", i+1, track.Artist, track.Title, albumPart, shared.FormatDuration(track.Duration), marker)
	}

	return buf.Bytes(), nil
}

// ExportToText converts an Export to plain text
func ExportToText(export *Export) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "%s\n", export.Title)
	if export.Source != "" {
		fmt.Fprintf(&buf, "Source: %s\n", export.Source)
	}
	fmt.Fprintf(&buf, "Tracks: %d\n\n", len(export.Tracks))

	for i, track := range export.Tracks {
		prefix := "  "
		if track.Current {
			prefix = "> "
		}
		fmt.Fprintf(&buf, "%s%d. %s - %s\n", prefix, i+1, track.Artist, track.Title)
	}

	return buf.Bytes(), nil
}

// DownloadImage downloads an image from the given URL and returns the raw bytes
func DownloadImage(url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: empty URL provided", shared.ErrMissingArgument)
	}

	client := &http.Client{Timeout: 30 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: image download returned status %d", shared.ErrServerResponse, resp.StatusCode)
	}

	imageData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	return imageData, nil
}

// ToMetadataJSON generates a JSON representation of export metadata (without tracks)
func ToMetadataJSON(export *Export) ([]byte, error) {
	return shared.MarshalJSON(struct {
		*Export
		TrackCount int `json:"track_count"`
	}{export, len(export.Tracks)}, true)
}

// ExportToJSON encodes the export with its tracks.
func ExportToJSON(export *Export) ([]byte, error) {
	return shared.MarshalJSON(struct {
		*Export
		Tracks []Row `json:"tracks"`
	}{export, export.Tracks}, true)
}

// WriteJSONExport writes the export as JSON, defaulting to {export.ID}.json.
func WriteJSONExport(export *Export, path string) (string, error) {
	if path == "" {
		path = export.ID + ".json"
	}

	data, err := ExportToJSON(export)
	if err != nil {
		return "", fmt.Errorf("failed to generate JSON: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write JSON file: %w", err)
	}
	return path, nil
}

// CSVExportResult contains the paths of files created by WriteCSVExport
type CSVExportResult struct {
	TracksFile   string
	MetadataFile string
}

// WriteCSVExport writes {base}_tracks.csv and {base}_metadata.json.
//
// The base path defaults to the export ID.
func WriteCSVExport(export *Export, baseFilepath string) (*CSVExportResult, error) {
	if baseFilepath == "" {
		baseFilepath = export.ID
	}

	csvData, err := ExportToCSV(export)
	if err != nil {
		return nil, fmt.Errorf("failed to generate CSV: %w", err)
	}

	tracksFile := baseFilepath + "_tracks.csv"
	if err := os.WriteFile(tracksFile, csvData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write CSV file: %w", err)
	}

	metadataJSON, err := ToMetadataJSON(export)
	if err != nil {
		return nil, fmt.Errorf("failed to generate metadata JSON: %w", err)
	}

	metadataFile := baseFilepath + "_metadata.json"
	if err := os.WriteFile(metadataFile, metadataJSON, 0644); err != nil {
		return nil, fmt.Errorf("failed to write metadata file: %w", err)
	}

	return &CSVExportResult{TracksFile: tracksFile, MetadataFile: metadataFile}, nil
}

// MarkdownExportResult contains information about files created by WriteMarkdownExport
type MarkdownExportResult struct {
	Directory  string
	Files      []string
	CoverImage string
}

// WriteMarkdownExport writes {dir}/README.md and, when imageURL is set and reachable, {dir}/cover.jpg.
//
// The directory defaults to the export ID. A failed cover download is logged and skipped.
func WriteMarkdownExport(export *Export, outputDir string, imageURL string) (*MarkdownExportResult, error) {
	if outputDir == "" {
		outputDir = export.ID
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	result := &MarkdownExportResult{Directory: outputDir, Files: []string{}}

	var coverImageFilename string
	if imageURL != "" {
		imageData, err := DownloadImage(imageURL)
		if err != nil {
			log.Warn("failed to download cover image", "err", err)
		} else {
			coverImageFilename = "cover.jpg"
			coverImagePath := filepath.Join(outputDir, coverImageFilename)
			if err := os.WriteFile(coverImagePath, imageData, 0644); err != nil {
				log.Warn("failed to save cover image", "err", err)
				coverImageFilename = ""
			} else {
				result.CoverImage = coverImagePath
				result.Files = append(result.Files, coverImagePath)
			}
		}
	}

	mdData, err := ExportToMarkdown(export, coverImageFilename)
	if err != nil {
		return nil, fmt.Errorf("failed to generate Markdown: %w", err)
	}

	mdFile := filepath.Join(outputDir, "README.md")
	if err := os.WriteFile(mdFile, mdData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write Markdown file: %w", err)
	}
	result.Files = append(result.Files, mdFile)

	return result, nil
}

// WriteTextExport writes a plain text listing, defaulting to {export.ID}_tracks.txt.
func WriteTextExport(export *Export, path string) (string, error) {
	if path == "" {
		path = fmt.Sprintf("%s_tracks.txt", export.ID)
	}

	textData, err := ExportToText(export)
	if err != nil {
		return "", fmt.Errorf("failed to generate text: %w", err)
	}

	if err := os.WriteFile(path, textData, 0644); err != nil {
		return "", fmt.Errorf("failed to write text file: %w", err)
	}

	return path, nil
}

// Write renders export in format to path and returns the files written.
func Write(format Format, export *Export, path, imageURL string) ([]string, error) {
	switch format {
	case FormatCSV:
		res, err := WriteCSVExport(export, path)
		if err != nil {
			return nil, err
		}
		return []string{res.TracksFile, res.MetadataFile}, nil
	case FormatMarkdown:
		res, err := WriteMarkdownExport(export, path, imageURL)
		if err != nil {
			return nil, err
		}
		return res.Files, nil
	case FormatText:
		file, err := WriteTextExport(export, path)
		if err != nil {
			return nil, err
		}
		return []string{file}, nil
	case FormatJSON:
		file, err := WriteJSONExport(export, path)
		if err != nil {
			return nil, err
		}
		return []string{file}, nil
	}
	return nil, fmt.Errorf("%w: unknown export format %q", shared.ErrInvalidArgument, format)
}
