package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lending-harvest/internal/model"
)

// fakeTx records inserts in memory and reports duplicates by natural key.
type fakeTx struct {
	seen    map[string]bool
	kinds   []model.RecordKind
	failOn  string
	failErr error
}

func newFakeTx() *fakeTx {
	return &fakeTx{seen: map[string]bool{}}
}

func (f *fakeTx) insert(r model.Record) (bool, error) {
	if f.failOn != "" && r.Name == f.failOn {
		return false, f.failErr
	}
	f.kinds = append(f.kinds, r.Kind)
	key := r.NaturalKey()
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	return true, nil
}

func (f *fakeTx) InsertPlatformIfAbsent(_ context.Context, r model.Record) (bool, error) {
	return f.insert(r)
}

func (f *fakeTx) InsertBankIfAbsent(_ context.Context, r model.Record) (bool, error) {
	return f.insert(r)
}

func TestSaveRecords(t *testing.T) {
	march := period(t, "2024-03")

	tests := []struct {
		name      string
		recs      []model.Record
		wantSaved int
		wantKinds []model.RecordKind
	}{
		{
			name:      "empty",
			recs:      nil,
			wantSaved: 0,
		},
		{
			name: "defaults kind and classification",
			recs: []model.Record{
				{Name: "花呗", Period: march, Issued: model.Float(1)},
				{Name: "花呗", Period: march, Product: model.ProductJointLending, Usage: model.UsageConsumer, Issued: model.Float(2)},
			},
			wantSaved: 1,
			wantKinds: []model.RecordKind{model.KindPlatform, model.KindPlatform},
		},
		{
			name: "banks routed by kind",
			recs: []model.Record{
				{Kind: model.KindBank, Name: "招商银行", Period: march},
				{Kind: model.KindPlatform, Name: "招商银行", Period: march},
			},
			wantSaved: 2,
			wantKinds: []model.RecordKind{model.KindBank, model.KindPlatform},
		},
		{
			name: "skips records without name or period",
			recs: []model.Record{
				{Period: march},
				{Name: "借呗"},
				{Name: "借呗", Period: march},
			},
			wantSaved: 1,
			wantKinds: []model.RecordKind{model.KindPlatform},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := newFakeTx()
			saved, err := SaveRecords(context.Background(), tx, tt.recs)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSaved, saved)
			assert.Equal(t, tt.wantKinds, tx.kinds)
		})
	}
}

func TestSaveRecords_StopsOnError(t *testing.T) {
	march := period(t, "2024-03")
	boom := errors.New("disk full")
	tx := newFakeTx()
	tx.failOn, tx.failErr = "借呗", boom

	saved, err := SaveRecords(context.Background(), tx, []model.Record{
		{Name: "花呗", Period: march},
		{Name: "借呗", Period: march},
		{Name: "微粒贷", Period: march},
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, saved)
	assert.Contains(t, err.Error(), "platform|借呗|2024-03")
	assert.Len(t, tx.kinds, 1)
}
