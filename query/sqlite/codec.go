package sqlite

import (
	"encoding/json"
	"fmt"

	"github.com/loomkit/loom/query"
)

func decodeRecord(rec query.Record) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(rec, &doc); err != nil {
		return nil, fmt.Errorf("sqlite: decode record: %w", err)
	}

	return doc, nil
}

func encodeRecord(doc map[string]any) (query.Record, error) {
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("sqlite: encode record: %w", err)
	}

	return query.Record(out), nil
}
