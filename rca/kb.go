package rca

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/teranos/rpawatch/errors"
)

// knowledgeBaseFile is the on-disk shape of an exported knowledge base
type knowledgeBaseFile struct {
	Records []*Record `yaml:"records"`
}

// LoadKnowledgeBase reads entries from a YAML file with a top-level
// "records" list. Every entry is validated.
func LoadKnowledgeBase(path string) ([]*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read knowledge base %s", path)
	}
	return ParseKnowledgeBase(data)
}

// ParseKnowledgeBase decodes YAML knowledge base content
func ParseKnowledgeBase(data []byte) ([]*Record, error) {
	var f knowledgeBaseFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "failed to parse knowledge base")
	}

	seen := make(map[string]struct{}, len(f.Records))
	for i, r := range f.Records {
		if err := r.Validate(); err != nil {
			return nil, errors.Wrapf(errors.ErrInvalidRequest, "record %d: %v", i, err)
		}
		if _, dup := seen[r.RCAID]; dup {
			return nil, errors.Wrapf(errors.ErrConflict, "duplicate rca_id %s", r.RCAID)
		}
		seen[r.RCAID] = struct{}{}
	}
	return f.Records, nil
}

// Import upserts every entry and returns how many were stored
func (s *Store) Import(recs []*Record) (int, error) {
	for i, r := range recs {
		if err := s.Upsert(r); err != nil {
			return i, err
		}
	}
	return len(recs), nil
}
