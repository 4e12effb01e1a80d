package ledger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"bilancio/internal/core"

	"github.com/google/uuid"
)

// exportRow is the wire shape of one exported transaction. The export
// is deterministic: live transactions only, ordered by posted date and
// insertion sequence, one JSON object per line.
type exportRow struct {
	ID         uuid.UUID       `json:"id"`
	Cents      int64           `json:"cents"`
	Posted     string          `json:"posted"`
	CategoryID uuid.UUID       `json:"category_id"`
	Memo       string          `json:"memo"`
	Source     core.SourceKind `json:"source"`
	TemplateID uuid.UUID       `json:"template_id,omitempty"`
	DedupKey   string          `json:"dedup_key"`
}

// Export writes the live ledger as JSON lines. Export followed by
// ImportSnapshot reproduces an identical set of live transactions.
func (s *Store) Export(w io.Writer) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for txn := range s.Query(Filter{}) {
		row := exportRow{
			ID:         txn.ID,
			Cents:      txn.Amount.Cents,
			Posted:     txn.Posted.UTC().Format(time.RFC3339),
			CategoryID: txn.CategoryID,
			Memo:       txn.Memo,
			Source:     txn.Source,
			TemplateID: txn.TemplateID,
			DedupKey:   txn.DedupKey,
		}
		if err := enc.Encode(row); err != nil {
			return fmt.Errorf("encode transaction %s: %w", txn.ID, err)
		}
	}
	return bw.Flush()
}

// ImportSnapshot reads an Export stream into an empty store. Original
// ids, amounts, categories, dates and dedup keys are preserved.
func (s *Store) ImportSnapshot(r io.Reader) error {
	if len(s.History()) > 0 {
		return fmt.Errorf("import snapshot: store not empty")
	}

	dec := json.NewDecoder(r)
	for {
		var row exportRow
		if err := dec.Decode(&row); err == io.EOF {
			return nil
		} else if err != nil {
			return fmt.Errorf("decode export row: %w", err)
		}
		posted, err := time.Parse(time.RFC3339, row.Posted)
		if err != nil {
			return fmt.Errorf("parse posted date %q: %w", row.Posted, err)
		}
		txn := core.Transaction{
			ID:         row.ID,
			Amount:     core.Money{Cents: row.Cents},
			Posted:     posted,
			CategoryID: row.CategoryID,
			Memo:       row.Memo,
			Source:     row.Source,
			TemplateID: row.TemplateID,
			DedupKey:   row.DedupKey,
		}
		if _, err := s.Post(txn); err != nil {
			return fmt.Errorf("restore transaction %s: %w", row.ID, err)
		}
	}
}
