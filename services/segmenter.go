package services

import (
	"iter"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/medtour/chatbot-service/models"
)

// Separators in the order the splitter tries them: paragraph, line, word,
// then a hard cut between characters.
var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// Segmenter splits document text into overlapping chunks.
type Segmenter struct {
	chunkSize int
	overlap   int
	splitter  textsplitter.RecursiveCharacter
}

// NewSegmenter validates the chunking parameters and builds a segmenter.
func NewSegmenter(chunkSize, overlap int) (*Segmenter, error) {
	if chunkSize <= 0 {
		return nil, models.ConfigError("segmenter", "chunk size must be positive, got %d", chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, models.ConfigError("segmenter", "overlap must be in [0, %d), got %d", chunkSize, overlap)
	}
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(overlap),
		textsplitter.WithSeparators(defaultSeparators),
	)
	return &Segmenter{chunkSize: chunkSize, overlap: overlap, splitter: splitter}, nil
}

func (s *Segmenter) ChunkSize() int { return s.chunkSize }
func (s *Segmenter) Overlap() int   { return s.overlap }

// SplitText splits a single text. Blank text yields no chunks.
func (s *Segmenter) SplitText(text string) ([]string, error) {
	chunks, err := s.splitter.SplitText(text)
	if err != nil {
		return nil, err
	}
	out := chunks[:0]
	for _, c := range chunks {
		if c != "" {
			out = append(out, c)
		}
	}
	return out, nil
}

// Segment yields the chunks of doc page by page. Pages are only split as
// the consumer advances, and ranging over the sequence again produces the
// same chunks. SequenceIndex counts from 0 within the document; callers
// that combine documents renumber it. Iteration stops after the first
// error.
func (s *Segmenter) Segment(doc models.Document) iter.Seq2[models.Chunk, error] {
	return func(yield func(models.Chunk, error) bool) {
		seq := 0
		for _, page := range doc.Pages {
			texts, err := s.SplitText(page.Text)
			if err != nil {
				yield(models.Chunk{}, err)
				return
			}
			for _, text := range texts {
				chunk := models.Chunk{
					Text:          text,
					Source:        doc.Name,
					Page:          page.Number,
					SequenceIndex: seq,
				}
				seq++
				if !yield(chunk, nil) {
					return
				}
			}
		}
	}
}
