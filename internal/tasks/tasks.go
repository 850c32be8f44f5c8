package tasks

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/agin/internal/formatter"
	"github.com/desertthunder/agin/internal/services"
	"github.com/desertthunder/agin/internal/shared"
)

// Kind names the catalog collection a [Ref] points at.
type Kind int

const (
	KindPlaylist Kind = iota
	KindAlbum
)

func (k Kind) String() string {
	switch k {
	case KindPlaylist:
		return "playlist"
	case KindAlbum:
		return "album"
	default:
		return "unknown"
	}
}

// Ref identifies one catalog collection.
type Ref struct {
	Kind Kind
	ID   string
}

// ParseRef accepts "playlist:<id>", "album:<id>" or a bare id, which is read as a playlist.
func ParseRef(s string) (Ref, error) {
	kind, id, found := strings.Cut(strings.TrimSpace(s), ":")
	if !found {
		kind, id = "playlist", kind
	}
	if id == "" {
		return Ref{}, fmt.Errorf("%w: empty collection id in %q", shared.ErrInvalidArgument, s)
	}
	switch strings.ToLower(kind) {
	case "playlist", "pl":
		return Ref{Kind: KindPlaylist, ID: id}, nil
	case "album", "al":
		return Ref{Kind: KindAlbum, ID: id}, nil
	}
	return Ref{}, fmt.Errorf("%w: unknown collection kind %q", shared.ErrInvalidArgument, kind)
}

// Exporter renders catalog collections to files.
type Exporter struct {
	catalog services.Catalog
	urls    services.URLBuilder
	logger  *log.Logger
}

// NewExporter creates an Exporter. A nil urls disables cover art in Markdown exports.
func NewExporter(catalog services.Catalog, urls services.URLBuilder, logger *log.Logger) *Exporter {
	if logger == nil {
		logger = log.Default()
	}
	return &Exporter{catalog: catalog, urls: urls, logger: logger}
}

// sendProgress sends a progress update through the channel without blocking.
func (e *Exporter) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// fetch loads the collection and returns its export with the cover art id, if any.
func (e *Exporter) fetch(ctx context.Context, ref Ref) (*formatter.Export, string, error) {
	switch ref.Kind {
	case KindPlaylist:
		p, err := e.catalog.GetPlaylist(ctx, ref.ID)
		if err != nil {
			return nil, "", err
		}
		return formatter.FromPlaylist(p), p.CoverArt, nil
	case KindAlbum:
		a, err := e.catalog.GetAlbum(ctx, ref.ID)
		if err != nil {
			return nil, "", err
		}
		return formatter.FromAlbum(a), a.CoverArt, nil
	}
	return nil, "", fmt.Errorf("%w: unknown collection kind %d", shared.ErrInvalidArgument, ref.Kind)
}
