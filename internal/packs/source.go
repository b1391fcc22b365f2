package packs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"sort"

	ignore "github.com/sabhiram/go-gitignore"
	"github.com/viant/afs"
	"github.com/viant/afs/url"
)

// FileSource lists and reads the files a pack diff is computed over.
type FileSource interface {
	// List returns every file as a slash-separated path relative to the root.
	List(ctx context.Context) ([]string, error)
	// Read returns the content of a file returned by List.
	Read(ctx context.Context, rel string) ([]byte, error)
}

// defaultSkip keeps VCS metadata and autodoc state out of snapshots.
var defaultSkip = []string{".git/", ".autodoc/", ".hg/", ".svn/"}

// AFSSource is a FileSource backed by github.com/viant/afs, so the root can
// be a local directory or any URL afs understands (file://, mem://, s3://, gs://).
type AFSSource struct {
	fs   afs.Service
	root string
	skip *ignore.GitIgnore
}

// NewAFSSource creates a source rooted at root. Paths matching exclude
// (gitignore syntax) are never listed.
func NewAFSSource(root string, exclude []string) *AFSSource {
	lines := append(append([]string(nil), defaultSkip...), exclude...)
	return &AFSSource{
		fs:   afs.New(),
		root: root,
		skip: ignore.CompileIgnoreLines(lines...),
	}
}

// List walks the root and returns relative file paths, sorted.
func (s *AFSSource) List(ctx context.Context) ([]string, error) {
	var files []string
	visitor := func(ctx context.Context, baseURL, parent string, info os.FileInfo, reader io.Reader) (bool, error) {
		if info.IsDir() {
			return true, nil
		}
		rel := NormalizePath(path.Join(parent, info.Name()))
		if s.skip.MatchesPath(rel) {
			return true, nil
		}
		files = append(files, rel)
		return true, nil
	}
	if err := s.fs.Walk(ctx, s.root, visitor); err != nil {
		return nil, fmt.Errorf("walk %s: %w", s.root, err)
	}
	sort.Strings(files)
	return files, nil
}

// Read downloads one file relative to the root.
func (s *AFSSource) Read(ctx context.Context, rel string) ([]byte, error) {
	data, err := s.fs.DownloadWithURL(ctx, url.Join(s.root, rel))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rel, err)
	}
	return data, nil
}
