package service

import (
	"context"
	"log"
	"strings"

	"github.com/tieubaoca/memory-be/database"
	"github.com/tieubaoca/memory-be/types"
	"github.com/tieubaoca/memory-be/utils"
)

const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 200
	embedBatchSize      = 64
)

// IndexerService splits documents into chunks, embeds them, and loads them
// into the run's vector index. A chunk whose embedding fails is skipped, not
// fatal: the rest of the corpus stays searchable.
type IndexerService struct {
	embedder     Embedder
	chunkSize    int
	chunkOverlap int
}

func NewIndexerService(embedder Embedder) *IndexerService {
	return &IndexerService{
		embedder:     embedder,
		chunkSize:    defaultChunkSize,
		chunkOverlap: defaultChunkOverlap,
	}
}

// Index chunks and embeds docs into index, returning the number of chunks
// actually indexed.
func (s *IndexerService) Index(ctx context.Context, index database.VectorIndex, docs []types.Document) (int, error) {
	var chunks []types.Chunk
	for _, doc := range docs {
		chunks = append(chunks, s.ChunkDocument(doc)...)
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	indexed := 0
	for i := 0; i < len(chunks); i += embedBatchSize {
		end := i + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[i:end]
		texts := make([]string, len(batch))
		for j, c := range batch {
			texts[j] = c.Text
		}

		vectors, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			// Retry one by one so a single poisoned chunk cannot sink
			// the whole batch.
			log.Printf("batch embedding failed (%v), retrying chunks individually", err)
			var keptChunks []types.Chunk
			vectors = nil
			for _, c := range batch {
				vec, embErr := s.embedder.Embed(ctx, c.Text)
				if embErr != nil {
					log.Printf("skipping chunk of %q: %v", c.ParentTitle, embErr)
					continue
				}
				keptChunks = append(keptChunks, c)
				vectors = append(vectors, vec)
			}
			batch = keptChunks
		}
		if len(batch) == 0 {
			continue
		}
		if err := index.Add(ctx, batch, vectors); err != nil {
			return indexed, err
		}
		indexed += len(batch)
	}
	return indexed, nil
}

// ChunkDocument splits one document into retrieval-sized chunks. Markdown
// content is split on headers first so each chunk keeps its section path;
// everything else goes straight through the recursive splitter.
func (s *IndexerService) ChunkDocument(doc types.Document) []types.Chunk {
	content := utils.CleanText(doc.Content)
	if content == "" {
		return nil
	}

	base := types.Chunk{
		ParentSourceID:   doc.SourceID,
		ParentSourceType: doc.SourceType,
		ParentTitle:      doc.Title,
		ParentURL:        doc.URL,
		RetrievedAt:      doc.RetrievedAt,
	}

	var chunks []types.Chunk
	if utils.IsMarkdown(doc.Title, doc.MimeType, content) {
		for _, section := range splitMarkdownByHeaders(content) {
			for _, text := range recursiveSplit(section.body, s.chunkSize, s.chunkOverlap) {
				chunk := base
				chunk.Text = text
				chunk.HeaderPath = section.headerPath
				chunks = append(chunks, chunk)
			}
		}
		return chunks
	}

	for _, text := range recursiveSplit(content, s.chunkSize, s.chunkOverlap) {
		chunk := base
		chunk.Text = text
		chunks = append(chunks, chunk)
	}
	return chunks
}

type markdownSection struct {
	headerPath []string
	body       string
}

// splitMarkdownByHeaders walks ATX headings (#..######) and groups the text
// under each into a section tagged with the heading path from the root.
func splitMarkdownByHeaders(content string) []markdownSection {
	lines := strings.Split(content, "\n")
	var sections []markdownSection
	var path []string
	var body []string

	flush := func() {
		text := strings.TrimSpace(strings.Join(body, "\n"))
		if text != "" {
			sections = append(sections, markdownSection{
				headerPath: append([]string(nil), path...),
				body:       text,
			})
		}
		body = body[:0]
	}

	for _, line := range lines {
		level, title := parseHeading(line)
		if level == 0 {
			body = append(body, line)
			continue
		}
		flush()
		if level <= len(path) {
			path = path[:level-1]
		}
		path = append(path, title)
	}
	flush()

	if len(sections) == 0 {
		return []markdownSection{{body: strings.TrimSpace(content)}}
	}
	return sections
}

func parseHeading(line string) (level int, title string) {
	trimmed := strings.TrimSpace(line)
	for level < len(trimmed) && trimmed[level] == '#' {
		level++
	}
	if level == 0 || level > 6 {
		return 0, ""
	}
	rest := trimmed[level:]
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
		return 0, ""
	}
	return level, strings.TrimSpace(rest)
}

var splitSeparators = []string{"\n\n", "\n", ". ", " "}

// recursiveSplit breaks text into pieces at most chunkSize runes long,
// preferring paragraph breaks, then lines, sentences, and words. Adjacent
// chunks overlap so sentences straddling a boundary stay retrievable.
// Chunk text is kept verbatim: concatenating the chunks in order, dropping
// the duplicated overlap at each boundary, reproduces the input.
func recursiveSplit(text string, chunkSize, overlap int) []string {
	runes := []rune(text)
	if len(runes) <= chunkSize {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil
		}
		return []string{trimmed}
	}

	pieces := splitBySeparator(text, 0, chunkSize)

	var chunks []string
	var current []rune
	for _, piece := range pieces {
		pr := []rune(piece)
		if len(current)+len(pr) > chunkSize && len(current) > 0 {
			if chunk := string(current); strings.TrimSpace(chunk) != "" {
				chunks = append(chunks, chunk)
			}
			if overlap > 0 && len(current) > overlap {
				current = append([]rune(nil), current[len(current)-overlap:]...)
			} else {
				current = current[:0]
			}
		}
		current = append(current, pr...)
	}
	if chunk := string(current); strings.TrimSpace(chunk) != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}

// splitBySeparator returns pieces no longer than chunkSize, recursing to the
// next finer separator when one piece is still too large. The last resort is
// a hard cut at chunkSize runes.
func splitBySeparator(text string, sepIdx, chunkSize int) []string {
	if sepIdx >= len(splitSeparators) {
		return hardCut(text, chunkSize)
	}
	sep := splitSeparators[sepIdx]
	parts := strings.SplitAfter(text, sep)

	var out []string
	for _, part := range parts {
		if len([]rune(part)) <= chunkSize {
			out = append(out, part)
			continue
		}
		out = append(out, splitBySeparator(part, sepIdx+1, chunkSize)...)
	}
	return out
}

func hardCut(text string, chunkSize int) []string {
	runes := []rune(text)
	var out []string
	for len(runes) > chunkSize {
		out = append(out, string(runes[:chunkSize]))
		runes = runes[chunkSize:]
	}
	if len(runes) > 0 {
		out = append(out, string(runes))
	}
	return out
}
