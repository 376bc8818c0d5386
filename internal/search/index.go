// Package search provides full-text search over completed reviews.
package search

import (
	"fmt"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/parcom/reviewd/internal/review"
)

// Result is one search hit.
type Result struct {
	ID         string  `json:"id"`
	Score      float64 `json:"score"`
	Category   string  `json:"category"`
	Language   string  `json:"language"`
	Confidence int     `json:"confidence"`
	Timestamp  string  `json:"timestamp"`
}

// Index is a full-text index over review results and code snippets.
type Index struct {
	index bleve.Index
}

// New opens or creates the index at path. An empty path builds an in-memory
// index, used by tests and when persistence is disabled.
func New(path string) (*Index, error) {
	if path == "" {
		index, err := bleve.NewMemOnly(buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory search index: %w", err)
		}
		return &Index{index: index}, nil
	}

	index, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		index, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create search index: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to open search index: %w", err)
	}
	return &Index{index: index}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()

	categoryField := bleve.NewTextFieldMapping()
	categoryField.Analyzer = keyword.Name
	categoryField.Store = true
	docMapping.AddFieldMappingsAt("category", categoryField)

	languageField := bleve.NewTextFieldMapping()
	languageField.Analyzer = keyword.Name
	languageField.Store = true
	docMapping.AddFieldMappingsAt("language", languageField)

	timestampField := bleve.NewTextFieldMapping()
	timestampField.Analyzer = keyword.Name
	timestampField.Store = true
	docMapping.AddFieldMappingsAt("timestamp", timestampField)

	confidenceField := bleve.NewNumericFieldMapping()
	confidenceField.Store = true
	docMapping.AddFieldMappingsAt("confidence", confidenceField)

	codeField := bleve.NewTextFieldMapping()
	codeField.Analyzer = standard.Name
	codeField.Store = false
	docMapping.AddFieldMappingsAt("code", codeField)

	resultField := bleve.NewTextFieldMapping()
	resultField.Analyzer = standard.Name
	resultField.Store = false
	docMapping.AddFieldMappingsAt("result", resultField)

	indexMapping.DefaultMapping = docMapping
	return indexMapping
}

// Add indexes one completed review.
func (i *Index) Add(r review.Review) error {
	doc := map[string]interface{}{
		"category":   string(r.Category),
		"language":   r.Language,
		"timestamp":  r.Timestamp.Format(time.RFC3339),
		"confidence": r.Confidence,
		"code":       r.Code,
		"result":     r.Result,
	}
	if err := i.index.Index(r.ID, doc); err != nil {
		return fmt.Errorf("failed to index review %s: %w", r.ID, err)
	}
	return nil
}

// Search returns the top k reviews matching query.
func (i *Index) Search(query string, k int) ([]Result, error) {
	q := bleve.NewMatchQuery(query)
	req := bleve.NewSearchRequest(q)
	req.Size = k
	req.Fields = []string{"category", "language", "confidence", "timestamp"}

	res, err := i.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	results := make([]Result, 0, len(res.Hits))
	for _, hit := range res.Hits {
		r := Result{ID: hit.ID, Score: hit.Score}
		if v, ok := hit.Fields["category"].(string); ok {
			r.Category = v
		}
		if v, ok := hit.Fields["language"].(string); ok {
			r.Language = v
		}
		if v, ok := hit.Fields["timestamp"].(string); ok {
			r.Timestamp = v
		}
		if v, ok := hit.Fields["confidence"].(float64); ok {
			r.Confidence = int(v)
		}
		results = append(results, r)
	}
	return results, nil
}

// Close releases the index.
func (i *Index) Close() error {
	return i.index.Close()
}
