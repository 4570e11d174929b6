package store

import (
	"fmt"

	"github.com/learnchat/learnchat/internal/model"
)

// SessionExport groups one session's answer history for the export command.
type SessionExport struct {
	SessionID string                 `json:"session_id"`
	Responses []model.ResponseRecord `json:"responses"`
	Generated []model.GeneratedItem  `json:"generated_items,omitempty"`
}

// ExportResponses builds the full answer history grouped by session,
// oldest response first within each session.
func (s *Store) ExportResponses() ([]SessionExport, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, item_id, selected, correct, is_correct, latency_ms, created_at
		 FROM responses ORDER BY session_id, created_at, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query responses: %w", err)
	}
	defer rows.Close()
	records, err := scanResponses(rows)
	if err != nil {
		return nil, fmt.Errorf("scan responses: %w", err)
	}

	bySession := make(map[string]*SessionExport)
	var order []string
	for _, rec := range records {
		exp, ok := bySession[rec.SessionID]
		if !ok {
			exp = &SessionExport{SessionID: rec.SessionID}
			bySession[rec.SessionID] = exp
			order = append(order, rec.SessionID)
		}
		exp.Responses = append(exp.Responses, rec)
	}

	// LIMIT -1 means no limit in sqlite.
	generated, err := s.RecentGeneratedItems(-1)
	if err != nil {
		return nil, fmt.Errorf("list generated items: %w", err)
	}
	for _, it := range generated {
		if exp, ok := bySession[it.SessionID]; ok {
			exp.Generated = append(exp.Generated, it)
		} else {
			exp = &SessionExport{SessionID: it.SessionID, Generated: []model.GeneratedItem{it}}
			bySession[it.SessionID] = exp
			order = append(order, it.SessionID)
		}
	}

	exports := make([]SessionExport, 0, len(order))
	for _, id := range order {
		exports = append(exports, *bySession[id])
	}
	return exports, nil
}
