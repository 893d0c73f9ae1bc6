package index

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"policy-audit/internal/config"
	"policy-audit/internal/embedding"
	"policy-audit/internal/models"
	"policy-audit/internal/parser"
)

const compress = false

// Indexer maintains versioned vector indexes over clause chunks. Each build
// produces a fresh chromem collection published by an atomic pointer swap:
// readers snapshot the current version and finish against it even if a
// rebuild completes mid-query.
type Indexer struct {
	db       *chromem.DB
	embedder embedding.Embedder
	cfg      *config.RAGConfig

	mu      sync.Mutex // serializes builds
	seq     int
	current atomic.Pointer[Version]
}

// Version is one immutable, fully built index generation.
type Version struct {
	Num        int
	BuiltAt    time.Time
	collection *chromem.Collection
	chunks     map[string]models.Chunk
}

// Stats is a point-in-time summary of the current version.
type Stats struct {
	Exists    bool      `json:"exists"`
	Count     int       `json:"count"`
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates an indexer. With an empty IndexDir the store is in-memory;
// otherwise chromem persists collections under that directory.
func New(cfg *config.RAGConfig, embedder embedding.Embedder) (*Indexer, error) {
	var db *chromem.DB
	var err error
	if cfg.IndexDir == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(cfg.IndexDir, compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create vector database: %w", err)
		}
	}
	return &Indexer{db: db, embedder: embedder, cfg: cfg}, nil
}

// Ingest parses, cleans, chunks, tags and embeds the given source files.
// A chunk whose embedding fails (after one retry) is logged and skipped;
// a file that cannot be parsed is likewise skipped. Identity is a content
// hash, so ingesting identical bytes twice yields identical chunk sets.
func (ix *Indexer) Ingest(ctx context.Context, files []string) ([]models.Chunk, error) {
	var chunks []models.Chunk
	seen := make(map[string]bool)
	for _, f := range files {
		text, err := parser.Parse(f)
		if err != nil {
			log.Warn().Err(err).Str("file", f).Msg("skipping unparsable source")
			continue
		}
		cleaned := parser.Clean(text)
		law := parser.DetectLaw(cleaned, f)

		var pieces []string
		if ix.cfg.ChunkMode == "words" {
			pieces = parser.ChunkWords(cleaned, ix.cfg.ChunkWords, ix.cfg.ChunkOverlap)
		} else {
			pieces = parser.ChunkParagraphs(cleaned, ix.cfg.MaxChars)
		}

		source := filepath.Base(f)
		for i, piece := range pieces {
			article := parser.DetectArticle(piece, strconv.Itoa(i))
			id := models.ChunkID(source, law, article, piece)
			if seen[id] {
				continue
			}
			vec, err := embedding.EmbedWithRetry(ctx, ix.embedder, piece)
			if err != nil {
				log.Warn().Err(err).Str("chunk", id).Msg("embedding failed, skipping chunk")
				continue
			}
			seen[id] = true
			chunks = append(chunks, models.Chunk{
				ID:        id,
				SourceDoc: source,
				Law:       law,
				Article:   article,
				Text:      piece,
				Embedding: vec,
			})
		}
	}
	return chunks, nil
}

// Build creates a new index version from the chunks and atomically makes it
// the current one. An empty chunk set produces a valid empty version.
func (ix *Indexer) Build(ctx context.Context, chunks []models.Chunk) (*Version, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.seq++
	name := fmt.Sprintf("clauses_v%d", ix.seq)
	coll, err := ix.db.GetOrCreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection %s: %w", name, err)
	}

	byID := make(map[string]models.Chunk, len(chunks))
	docs := make([]chromem.Document, 0, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
		docs = append(docs, chromem.Document{
			ID:      c.ID,
			Content: c.Text,
			Metadata: map[string]string{
				"source":  c.SourceDoc,
				"law":     c.Law,
				"article": c.Article,
			},
			Embedding: c.Embedding,
		})
	}
	if len(docs) > 0 {
		if err := coll.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
			return nil, fmt.Errorf("failed to add documents: %w", err)
		}
	}

	v := &Version{
		Num:        ix.seq,
		BuiltAt:    time.Now().UTC(),
		collection: coll,
		chunks:     byID,
	}
	ix.current.Store(v)
	log.Info().Int("version", v.Num).Int("chunks", len(byID)).Msg("index version published")
	return v, nil
}

// Current returns the published version, or nil before the first build.
// Callers keep querying the returned version even across rebuilds.
func (ix *Indexer) Current() *Version {
	return ix.current.Load()
}

// Stats reports on the current version without blocking builds.
func (ix *Indexer) Stats() Stats {
	v := ix.current.Load()
	if v == nil {
		return Stats{}
	}
	return Stats{Exists: true, Count: len(v.chunks), Version: v.Num, UpdatedAt: v.BuiltAt}
}

// Count returns the number of chunks in this version.
func (v *Version) Count() int {
	if v == nil {
		return 0
	}
	return len(v.chunks)
}

// Query returns up to n nearest chunks by inner product, best first.
// Querying an empty (or nil) version returns no results and no error.
func (v *Version) Query(ctx context.Context, vec []float32, n int) ([]models.RetrievedClause, error) {
	if v == nil || len(v.chunks) == 0 || n <= 0 {
		return nil, nil
	}
	if n > len(v.chunks) {
		n = len(v.chunks)
	}
	results, err := v.collection.QueryEmbedding(ctx, vec, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}
	out := make([]models.RetrievedClause, 0, len(results))
	for i, r := range results {
		chunk, ok := v.chunks[r.ID]
		if !ok {
			continue
		}
		out = append(out, models.RetrievedClause{
			Chunk: chunk,
			Score: float64(r.Similarity),
			Rank:  i,
		})
	}
	return out, nil
}
