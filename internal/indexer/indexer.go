package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/karrick/godirwalk"
	"github.com/rs/zerolog/log"
	"github.com/seanblong/faqrag/pkg/models"
)

// MinChunkLength is the rune count a trimmed paragraph must exceed to be stored.
const MinChunkLength = 50

// ErrCorpusDir is returned when the corpus directory is missing or not a directory.
var ErrCorpusDir = errors.New("corpus directory not found")

// ChunkStore is the part of the vector store the indexer writes to.
type ChunkStore interface {
	Count(ctx context.Context) (int, error)
	Upsert(ctx context.Context, chunks []models.Chunk) error
}

// DirLister lists the files directly under a directory
type DirLister interface {
	List(dir string) ([]string, error)
}

// FileReader defines the interface for reading files
type FileReader interface {
	ReadFile(filename string) ([]byte, error)
}

// DefaultDirLister implements DirLister using godirwalk
type DefaultDirLister struct{}

// List returns the paths of non-directory entries in dir, sorted by name.
func (d *DefaultDirLister) List(dir string) ([]string, error) {
	fi, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorpusDir, err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrCorpusDir, dir)
	}

	dirents, err := godirwalk.ReadDirents(dir, nil)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(dirents))
	for _, de := range dirents {
		if de.IsDir() {
			continue
		}
		paths = append(paths, filepath.Join(dir, de.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// DefaultFileReader implements FileReader using os
type DefaultFileReader struct{}

func (d *DefaultFileReader) ReadFile(filename string) ([]byte, error) {
	return os.ReadFile(filename)
}

// Indexer loads a corpus directory into the vector store.
type Indexer struct {
	Store      ChunkStore
	Lister     DirLister
	FileReader FileReader
}

// New creates a new Indexer instance.
func New(s ChunkStore) *Indexer {
	return &Indexer{
		Store:      s,
		Lister:     &DefaultDirLister{},
		FileReader: &DefaultFileReader{},
	}
}

// NewWithDependencies creates a new Indexer instance with custom dependencies for testing
func NewWithDependencies(s ChunkStore, lister DirLister, fileReader FileReader) *Indexer {
	return &Indexer{
		Store:      s,
		Lister:     lister,
		FileReader: fileReader,
	}
}

// Ingest chunks every .md and .txt file directly under dir and upserts the
// chunks in one batch. It does nothing when the store already holds chunks,
// so it is safe to call on every start. Ingest must finish before the store
// is queried concurrently.
func (ix *Indexer) Ingest(ctx context.Context, dir string) error {
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("%w: empty path", ErrCorpusDir)
	}
	paths, err := ix.Lister.List(dir)
	if err != nil {
		return fmt.Errorf("list %s: %w", dir, err)
	}

	n, err := ix.Store.Count(ctx)
	if err != nil {
		return fmt.Errorf("count chunks: %w", err)
	}
	if n > 0 {
		log.Info().Int("chunks", n).Msg("collection already populated, skipping ingest")
		return nil
	}

	log.Info().Str("dir", dir).Msg("ingesting corpus")
	start := time.Now()

	var chunks []models.Chunk
	files := 0
	for _, p := range paths {
		if !accepted(p) {
			log.Debug().Str("path", p).Msg("skipping unsupported file")
			continue
		}
		b, err := ix.FileReader.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}
		if !utf8.Valid(b) {
			return fmt.Errorf("read %s: content is not valid UTF-8", p)
		}
		doc := models.Document{Path: p, Content: string(b)}
		chunks = append(chunks, Chunk(doc)...)
		files++
	}

	if len(chunks) == 0 {
		log.Info().Int("files", files).Msg("no chunks to ingest")
		return nil
	}
	if err := ix.Store.Upsert(ctx, chunks); err != nil {
		return fmt.Errorf("store chunks: %w", err)
	}
	log.Info().Int("files", files).Int("chunks", len(chunks)).Dur("dur", time.Since(start)).Msg("ingested corpus")
	return nil
}

// Chunk splits doc into paragraphs on blank lines. Paragraphs of
// MinChunkLength runes or fewer after trimming are dropped; the survivors keep
// their paragraph position so ids do not shift when neighbours are dropped.
func Chunk(doc models.Document) []models.Chunk {
	source := filepath.Base(doc.Path)
	content := strings.ReplaceAll(doc.Content, "\r\n", "\n")

	var out []models.Chunk
	for i, part := range strings.Split(content, "\n\n") {
		text := strings.TrimSpace(part)
		if utf8.RuneCountInString(text) <= MinChunkLength {
			continue
		}
		out = append(out, models.Chunk{
			ID:     chunkID(source, i),
			Text:   text,
			Source: source,
			Index:  i,
		})
	}
	return out
}

// accepted reports whether the file at path is part of the corpus.
func accepted(path string) bool {
	switch filepath.Ext(path) {
	case ".md", ".txt":
		return true
	}
	return false
}

func chunkID(source string, i int) string {
	return source + "_" + strconv.Itoa(i)
}
