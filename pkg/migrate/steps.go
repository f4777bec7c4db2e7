package migrate

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// DefaultSteps returns the built-in upgrade chain.
//
//	v1: ledger entries {amount, last_height, last_hash}
//	v2: ledger entries {cumulative, last_applied}, bundle gains anchor and journal
//	v3: ledger entries gain streak, records, by_kind and trail; bundle gains
//	    the reorg phase. Per-kind totals cannot be derived from v2 data, so
//	    this step recomputes.
//	v4: journal entries gain the participants each record was applied to,
//	    taken as the payload participants that have a ledger entry.
func DefaultSteps() []Step {
	return []Step{
		{From: 1, To: 2, Name: "fold-last-applied", Transform: foldLastApplied},
		{From: 2, To: 3, Name: "per-kind-totals", Recompute: true, Transform: addKindTotals},
		{From: 3, To: 4, Name: "journal-applied", Transform: addJournalApplied},
	}
}

var (
	errLedgerShape  = errors.New("ledger must be an object")
	errJournalShape = errors.New("journal must be an array")
)

func foldLastApplied(doc []byte) ([]byte, error) {
	l := gjson.GetBytes(doc, "ledger")
	if l.Exists() && !l.IsObject() {
		return nil, errLedgerShape
	}

	out := doc
	var err error
	l.ForEach(func(key, v gjson.Result) bool {
		base := "ledger." + escapeKey(key.String())
		cumulative := "0"
		if a := v.Get("amount"); a.Exists() {
			cumulative = a.String()
		}
		if out, err = sjson.SetBytes(out, base+".cumulative", cumulative); err != nil {
			return false
		}
		last := map[string]any{
			"height": v.Get("last_height").Uint(),
			"hash":   v.Get("last_hash").String(),
		}
		if out, err = sjson.SetBytes(out, base+".last_applied", last); err != nil {
			return false
		}
		for _, old := range []string{"amount", "last_height", "last_hash"} {
			if out, err = sjson.DeleteBytes(out, base+"."+old); err != nil {
				return false
			}
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("rewrite ledger entries: %w", err)
	}

	if !l.Exists() {
		if out, err = sjson.SetRawBytes(out, "ledger", []byte("{}")); err != nil {
			return nil, err
		}
	}
	if !gjson.GetBytes(out, "anchor").Exists() {
		if out, err = sjson.SetRawBytes(out, "anchor", []byte(`{"height":0,"hash":""}`)); err != nil {
			return nil, err
		}
	}
	if out, err = sjson.SetRawBytes(out, "journal", []byte("[]")); err != nil {
		return nil, err
	}
	return sjson.SetBytes(out, "schema_version", 2)
}

func addKindTotals(doc []byte) ([]byte, error) {
	l := gjson.GetBytes(doc, "ledger")
	if l.Exists() && !l.IsObject() {
		return nil, errLedgerShape
	}

	out := doc
	var err error
	l.ForEach(func(key, v gjson.Result) bool {
		base := "ledger." + escapeKey(key.String())
		for _, field := range []string{"streak", "records"} {
			if v.Get(field).Exists() {
				continue
			}
			if out, err = sjson.SetBytes(out, base+"."+field, 0); err != nil {
				return false
			}
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("rewrite ledger entries: %w", err)
	}

	if out, err = sjson.SetBytes(out, "phase", "following"); err != nil {
		return nil, err
	}
	for _, k := range []string{"reorg_target", "reorg_tip"} {
		if out, err = sjson.SetRawBytes(out, k, []byte(`{"height":0,"hash":""}`)); err != nil {
			return nil, err
		}
	}
	return sjson.SetBytes(out, "schema_version", 3)
}

func addJournalApplied(doc []byte) ([]byte, error) {
	l := gjson.GetBytes(doc, "ledger")
	if l.Exists() && !l.IsObject() {
		return nil, errLedgerShape
	}
	j := gjson.GetBytes(doc, "journal")
	if j.Exists() && !j.IsArray() {
		return nil, errJournalShape
	}
	tracked := l.Map()

	out := doc
	var err error
	for i, rec := range j.Array() {
		applied := []string{}
		for _, p := range rec.Get("payload.rewards.#.participant").Array() {
			name := p.String()
			if _, ok := tracked[name]; ok && !slices.Contains(applied, name) {
				applied = append(applied, name)
			}
		}
		slices.Sort(applied)
		if out, err = sjson.SetBytes(out, fmt.Sprintf("journal.%d.applied", i), applied); err != nil {
			return nil, fmt.Errorf("rewrite journal entry %d: %w", i, err)
		}
	}
	if !j.Exists() {
		if out, err = sjson.SetRawBytes(out, "journal", []byte("[]")); err != nil {
			return nil, err
		}
	}
	return sjson.SetBytes(out, "schema_version", 4)
}

// escapeKey escapes gjson/sjson path metacharacters in a participant ID.
func escapeKey(k string) string {
	var b strings.Builder
	for _, r := range k {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\', ':', '!', '=', '<', '>', '%':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
