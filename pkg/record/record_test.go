package record

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	a := New("MT-1", "ORDER", "UPDATE", "updated", "alice", "{}", false, at)
	b := New("MT-1", "ORDER", "UPDATE", "updated", "alice", "{}", false, at)

	_, err := uuid.Parse(a.ID)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)

	b.ID = a.ID
	assert.Equal(t, a, b)
	assert.Equal(t, at, a.CreatedAt)
}

func TestSinkFunc(t *testing.T) {
	var gotBizNo, gotType string
	var got []Record
	sink := SinkFunc(func(_ context.Context, bizNo, typ string, recs []Record) error {
		gotBizNo, gotType, got = bizNo, typ, recs
		return nil
	})
	recs := []Record{{BizNo: "MT-1", Type: "ORDER"}}
	require.NoError(t, sink.Flush(context.Background(), "MT-1", "ORDER", recs))
	assert.Equal(t, "MT-1", gotBizNo)
	assert.Equal(t, "ORDER", gotType)
	assert.Equal(t, recs, got)

	assert.NoError(t, Discard.Flush(context.Background(), "", "", recs))
}
