// Package store persists audit records and answers queries over them.
//
// Every Store is a record.Sink, so it can be handed to the assembler
// directly. Queries return records newest first; records with equal
// timestamps come back in reverse insertion order.
//
// # Drivers
//
//   - memory: in-process, lost on exit
//   - jsonl: one JSON object per line, appended to a file
//   - sqlite: table biz_log_records in a SQLite database (modernc.org/sqlite)
//   - multi: fans writes out to several stores and queries the first
package store

import (
	"context"
	"sort"
	"time"

	"github.com/getmockd/bizlog/pkg/record"
)

// Store is a queryable record sink. Implementations are safe for concurrent
// use.
type Store interface {
	record.Sink

	// Query returns the records matching f, newest first.
	Query(ctx context.Context, f Filter) ([]record.Record, error)

	// Close releases any resources held by the store.
	Close() error
}

// Filter selects records. Zero-valued fields do not constrain the result.
type Filter struct {
	BizNo    string
	Type     string
	SubType  string
	Operator string
	// Fail filters by outcome when set.
	Fail *bool
	// Since is inclusive, Until is exclusive.
	Since time.Time
	Until time.Time
	// Where is an expr-lang boolean expression over the record. Variables:
	// id, bizNo, category (the record type), subType, action, operator,
	// extra, fail, createdAt.
	Where string

	Limit  int
	Offset int
}

func (f Filter) matches(r record.Record) bool {
	if f.BizNo != "" && r.BizNo != f.BizNo {
		return false
	}
	if f.Type != "" && r.Type != f.Type {
		return false
	}
	if f.SubType != "" && r.SubType != f.SubType {
		return false
	}
	if f.Operator != "" && r.Operator != f.Operator {
		return false
	}
	if f.Fail != nil && r.Fail != *f.Fail {
		return false
	}
	if !f.Since.IsZero() && r.CreatedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !r.CreatedAt.Before(f.Until) {
		return false
	}
	return true
}

// sequenced is a record with its insertion order.
type sequenced struct {
	seq int64
	rec record.Record
}

// apply filters recs, orders them newest first and paginates.
func apply(recs []sequenced, f Filter) ([]record.Record, error) {
	pred, err := compileWhere(f.Where)
	if err != nil {
		return nil, err
	}

	matched := make([]sequenced, 0, len(recs))
	for _, s := range recs {
		if !f.matches(s.rec) {
			continue
		}
		if pred != nil {
			ok, err := pred.match(s.rec)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		matched = append(matched, s)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.rec.CreatedAt.Equal(b.rec.CreatedAt) {
			return a.rec.CreatedAt.After(b.rec.CreatedAt)
		}
		return a.seq > b.seq
	})

	out := make([]record.Record, 0, len(matched))
	for _, s := range paginate(matched, f.Offset, f.Limit) {
		out = append(out, s.rec)
	}
	return out, nil
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
