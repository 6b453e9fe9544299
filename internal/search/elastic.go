// Package search wraps the Elasticsearch side of the dual write. Writes here
// are best-effort; the relational store remains authoritative.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"complaint-pipeline/internal/fault"
	"complaint-pipeline/internal/models"
)

// Client indexes and queries complaint documents.
type Client struct {
	es    *elasticsearch.Client
	index string
}

// Document is the shape stored in the search index, keyed by complaint id.
type Document struct {
	Type     string `json:"type"`
	Content  string `json:"content"`
	Category string `json:"category"`
}

// Hit is one search result.
type Hit struct {
	ComplaintID int64    `json:"complaint_id"`
	Score       float64  `json:"score"`
	Document    Document `json:"document"`
}

// NewClient connects to the Elasticsearch cluster.
func NewClient(addresses []string, username, password, index string) (*Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: addresses,
		Username:  username,
		Password:  password,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch client: %w", err)
	}
	return &Client{es: es, index: index}, nil
}

// IndexComplaint writes the document for a complaint record. Indexing by id
// makes the write idempotent: re-indexing overwrites the same document.
func (c *Client) IndexComplaint(ctx context.Context, rec models.ComplaintRecord) error {
	doc := Document{
		Type:     string(rec.Type),
		Content:  rec.SearchText(),
		Category: rec.Category,
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      c.index,
		DocumentID: strconv.FormatInt(rec.ID, 10),
		Body:       strings.NewReader(string(body)),
	}
	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("%w: %v", fault.ErrIndexWrite, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("%w: %s", fault.ErrIndexWrite, res.Status())
	}
	return nil
}

// Search runs a free-text multi_match over content and category.
func (c *Client) Search(ctx context.Context, query string, size int) ([]Hit, error) {
	if size <= 0 {
		size = 20
	}
	body := map[string]any{
		"size": size,
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  query,
				"fields": []string{"content", "category"},
			},
		},
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(strings.NewReader(string(encoded))),
		c.es.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search: %s", res.Status())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				ID     string   `json:"_id"`
				Score  float64  `json:"_score"`
				Source Document `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	hits := make([]Hit, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		id, err := strconv.ParseInt(h.ID, 10, 64)
		if err != nil {
			continue
		}
		hits = append(hits, Hit{ComplaintID: id, Score: h.Score, Document: h.Source})
	}
	return hits, nil
}
