package extract

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/odyssey-erp/relnotes/internal/approval"
)

// ErrDateMismatch reports a document whose title names another day.
var ErrDateMismatch = errors.New("extract: document date mismatch")

// DirSource reads one release-notes document per day from <dir>/<YYYY-MM-DD>.txt.
type DirSource struct {
	dir string
}

// NewDirSource constructs a DirSource.
func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

// Extract parses the document for date. A missing document means no release.
func (s *DirSource) Extract(_ context.Context, date time.Time) (approval.Extraction, error) {
	want := date.Format(approval.DateLayout)
	data, err := os.ReadFile(filepath.Join(s.dir, want+".txt"))
	if errors.Is(err, fs.ErrNotExist) {
		return approval.Extraction{ReleaseDate: want}, nil
	}
	if err != nil {
		return approval.Extraction{}, err
	}
	ext := ParseDocument(string(data))
	if ext.ReleaseDate != "" && ext.ReleaseDate != want {
		return approval.Extraction{}, fmt.Errorf("%w: %s names %s", ErrDateMismatch, want, ext.ReleaseDate)
	}
	ext.ReleaseDate = want
	return ext, nil
}
