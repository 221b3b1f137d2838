package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ariesdb/pkg/primitives"
	"ariesdb/pkg/transaction"
)

func TestSerializeDeserializeRoundTripsUpdatePage(t *testing.T) {
	rec := &Record{
		Kind:    UpdatePage,
		LSN:     42,
		TxnID:   7,
		PrevLSN: 10,
		PartNum: 1,
		PageNum: 3,
		Offset:  100,
		Before:  []byte("old"),
		After:   []byte("new!"),
	}

	data, err := Serialize(rec)
	require.NoError(t, err)

	got, err := Deserialize(data)
	require.NoError(t, err)

	assert.Equal(t, rec.Kind, got.Kind)
	assert.Equal(t, rec.LSN, got.LSN)
	assert.Equal(t, rec.TxnID, got.TxnID)
	assert.Equal(t, rec.PrevLSN, got.PrevLSN)
	assert.Equal(t, rec.PartNum, got.PartNum)
	assert.Equal(t, rec.PageNum, got.PageNum)
	assert.Equal(t, rec.Offset, got.Offset)
	assert.Equal(t, rec.Before, got.Before)
	assert.Equal(t, rec.After, got.After)
}

func TestSerializeDeserializeRoundTripsCheckpointSnapshot(t *testing.T) {
	rec := &Record{
		Kind:  EndCheckpoint,
		TxnID: primitives.NoTxn,
		DPT: map[primitives.PageID]primitives.LSN{
			{Part: 1, Page: 1}: 5,
			{Part: 2, Page: 9}: 11,
		},
		TxnTable: map[int64]TxnTableSnapshotEntry{
			3: {Status: transaction.Running, LastLSN: 20},
			4: {Status: transaction.Committing, LastLSN: 30},
		},
	}

	data, err := Serialize(rec)
	require.NoError(t, err)

	got, err := Deserialize(data)
	require.NoError(t, err)

	assert.Equal(t, rec.DPT, got.DPT)
	assert.Equal(t, rec.TxnTable, got.TxnTable)
}

func TestSerializeEncodesSelfDescribingSize(t *testing.T) {
	rec := &Record{Kind: CommitTxn, TxnID: 1, LSN: 99}
	data, err := Serialize(rec)
	require.NoError(t, err)

	got, err := Deserialize(data)
	require.NoError(t, err)
	assert.Equal(t, CommitTxn, got.Kind)

	// Appending trailing garbage must not confuse Deserialize, since the
	// size prefix bounds exactly how much of data belongs to this record.
	padded := append(append([]byte{}, data...), []byte("garbage-after-record")...)
	got2, err := Deserialize(padded)
	require.NoError(t, err)
	assert.Equal(t, CommitTxn, got2.Kind)
	assert.Equal(t, rec.LSN, got2.LSN)
}

func TestDeserializeRejectsTruncatedData(t *testing.T) {
	rec := &Record{Kind: CommitTxn, TxnID: 1, LSN: 99}
	data, err := Serialize(rec)
	require.NoError(t, err)

	_, err = Deserialize(data[:len(data)-5])
	assert.Error(t, err)
}
