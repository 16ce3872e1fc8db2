// Package corpus holds the pre-labelled document table the retriever reads
// from, along with loaders for the artifact formats it is shipped in.
package corpus

import "fmt"

// Document is one record of the clustered corpus.
type Document struct {
	Text       string `json:"text" yaml:"text"`
	TopicIndex int    `json:"topic" yaml:"topic"`
}

// Store is an ordered, read-only sequence of documents. Order is the order
// of the artifact it was loaded from.
type Store struct {
	docs []Document
}

// NewStore copies docs into a new Store.
func NewStore(docs []Document) *Store {
	return &Store{docs: append([]Document(nil), docs...)}
}

// ByTopic returns up to limit documents tagged with index, in store order.
// A non-positive limit returns every match.
func (s *Store) ByTopic(index, limit int) []Document {
	var out []Document
	for _, d := range s.docs {
		if d.TopicIndex != index {
			continue
		}
		out = append(out, d)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// All returns a copy of every document in store order.
func (s *Store) All() []Document {
	return append([]Document(nil), s.docs...)
}

// Len is the total number of documents.
func (s *Store) Len() int {
	return len(s.docs)
}

// CountByTopic returns a count per topic index for k topics.
func (s *Store) CountByTopic(k int) []int {
	counts := make([]int, k)
	for _, d := range s.docs {
		if d.TopicIndex >= 0 && d.TopicIndex < k {
			counts[d.TopicIndex]++
		}
	}
	return counts
}

// Validate rejects documents with blank text or a topic outside [0, k).
func (s *Store) Validate(k int) error {
	for i, d := range s.docs {
		if d.TopicIndex < 0 || d.TopicIndex >= k {
			return fmt.Errorf("document %d: topic index %d out of range [0, %d)", i, d.TopicIndex, k)
		}
		if d.Text == "" {
			return fmt.Errorf("document %d: empty text", i)
		}
	}
	return nil
}
