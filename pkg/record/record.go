// Package record defines the audit record produced for each logged
// invocation and the sink that persists batches of them.
package record

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Record is one business audit log entry. Records are values; they are not
// modified after construction.
type Record struct {
	ID string `json:"id"`
	// BizNo identifies the business object the action applied to.
	BizNo string `json:"bizNo"`
	// Type is the business category, for example "ORDER".
	Type    string `json:"type"`
	SubType string `json:"subType,omitempty"`
	// Action is the rendered human-readable message.
	Action    string    `json:"action"`
	Operator  string    `json:"operator,omitempty"`
	Extra     string    `json:"extra,omitempty"`
	Fail      bool      `json:"fail"`
	CreatedAt time.Time `json:"createdAt"`
}

// New returns a record with a fresh ID.
func New(bizNo, typ, subType, action, operator, extra string, fail bool, at time.Time) Record {
	return Record{
		ID:        uuid.NewString(),
		BizNo:     bizNo,
		Type:      typ,
		SubType:   subType,
		Action:    action,
		Operator:  operator,
		Extra:     extra,
		Fail:      fail,
		CreatedAt: at,
	}
}

// Sink receives the records of one outermost invocation, in completion
// order. bizNo and typ are taken from the last record of the batch.
type Sink interface {
	Flush(ctx context.Context, bizNo, typ string, records []Record) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, bizNo, typ string, records []Record) error

// Flush implements Sink.
func (f SinkFunc) Flush(ctx context.Context, bizNo, typ string, records []Record) error {
	return f(ctx, bizNo, typ, records)
}

// Discard is a Sink that drops every batch.
var Discard Sink = SinkFunc(func(context.Context, string, string, []Record) error { return nil })
