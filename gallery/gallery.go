package gallery

import (
	"context"
	"errors"
	"imagedesk/core"
	"imagedesk/upload"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	ErrUnknownCandidate = errors.New("unknown image candidate")
	ErrNoUploader       = errors.New("gallery has no upload collaborator")
)

// Source lists the items a file storage service holds for an owner.
type Source interface {
	ListImages(ctx context.Context, owner core.Owner) ([]core.ImageInfo, error)
}

// Listing is the result of loading candidates. A failed load is not an error:
// it yields no candidates and sets Failed so a UI can show a placeholder.
type Listing struct {
	Candidates []core.ImageCandidate `json:"candidates"`
	Failed     bool                  `json:"failed"`
	Error      string                `json:"error,omitempty"`
}

// ListCandidates queries src for owner's items and keeps only images.
func ListCandidates(ctx context.Context, src Source, owner core.Owner) Listing {
	infos, err := src.ListImages(ctx, owner)
	if err != nil {
		logrus.WithError(err).WithField("owner_id", owner.OwnerID).Warn("Failed to load gallery")
		return Listing{Candidates: []core.ImageCandidate{}, Failed: true, Error: err.Error()}
	}
	candidates := make([]core.ImageCandidate, 0, len(infos))
	for _, info := range infos {
		if !core.IsImageContentType(info.ContentType) {
			continue
		}
		candidates = append(candidates, core.ImageCandidate{
			ID:           info.ID,
			DisplayName:  info.DisplayName,
			ThumbnailRef: info.ThumbnailURL,
		})
	}
	return Listing{Candidates: candidates}
}

// Gallery tracks the candidate set of one owner and the current selection.
type Gallery struct {
	mu       sync.Mutex
	owner    core.Owner
	source   Source
	uploader *upload.Uploader

	listing  Listing
	selected string
}

// New returns an empty gallery. uploader may be nil when uploads are not offered.
func New(owner core.Owner, source Source, uploader *upload.Uploader) *Gallery {
	return &Gallery{
		owner:    owner,
		source:   source,
		uploader: uploader,
		listing:  Listing{Candidates: []core.ImageCandidate{}},
	}
}

func (g *Gallery) Owner() core.Owner {
	return g.owner
}

// Refresh reloads the candidate set. A selection that disappeared is cleared.
func (g *Gallery) Refresh(ctx context.Context) Listing {
	listing := ListCandidates(ctx, g.source, g.owner)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.listing = listing
	if _, ok := g.find(g.selected); !ok {
		g.selected = ""
	}
	return g.copyListing()
}

// Listing returns the last loaded candidate set.
func (g *Gallery) Listing() Listing {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.copyListing()
}

// Select records id as the current selection.
func (g *Gallery) Select(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.find(id); !ok {
		return ErrUnknownCandidate
	}
	g.selected = id
	return nil
}

func (g *Gallery) ClearSelection() {
	g.mu.Lock()
	g.selected = ""
	g.mu.Unlock()
}

func (g *Gallery) Selected() (core.ImageCandidate, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.find(g.selected)
}

// CanEdit reports whether the Edit and Select actions are available.
func (g *Gallery) CanEdit() bool {
	_, ok := g.Selected()
	return ok
}

// UploadNew persists a file through the upload protocol, adds it to the
// candidate set and refreshes the list. If the refresh fails the appended
// candidate is kept and the listing is flagged.
func (g *Gallery) UploadNew(ctx context.Context, data []byte, fileName, contentType string) (*core.ImageCandidate, error) {
	if g.uploader == nil {
		return nil, ErrNoUploader
	}
	confirmed, err := g.uploader.Upload(ctx, g.owner, &upload.Blob{Data: data, FileName: fileName, ContentType: contentType})
	if err != nil {
		return nil, err
	}
	name := confirmed.DisplayName
	if name == "" {
		name = fileName
	}
	candidate := core.ImageCandidate{ID: confirmed.ConfirmedID, DisplayName: name}

	g.mu.Lock()
	g.listing.Candidates = append(g.listing.Candidates, candidate)
	g.mu.Unlock()

	listing := ListCandidates(ctx, g.source, g.owner)

	g.mu.Lock()
	defer g.mu.Unlock()
	if listing.Failed {
		g.listing.Failed = true
		g.listing.Error = listing.Error
	} else {
		g.listing = listing
		if c, ok := g.find(candidate.ID); ok {
			candidate = c
		}
	}
	return &candidate, nil
}

func (g *Gallery) find(id string) (core.ImageCandidate, bool) {
	if id == "" {
		return core.ImageCandidate{}, false
	}
	for _, c := range g.listing.Candidates {
		if c.ID == id {
			return c, true
		}
	}
	return core.ImageCandidate{}, false
}

func (g *Gallery) copyListing() Listing {
	out := g.listing
	out.Candidates = append([]core.ImageCandidate{}, g.listing.Candidates...)
	return out
}
