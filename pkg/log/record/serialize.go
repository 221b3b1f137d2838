package record

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"ariesdb/pkg/primitives"
	"ariesdb/pkg/transaction"
)

// Serialize encodes rec into the wire format:
//
//	[Size:4][Kind:1][LSN:8][TxnID:8][PrevLSN:8][UndoNextLSN:8]
//	[PartNum:8][PageNum:8][Offset:4]
//	[BeforeLen:4][Before...][AfterLen:4][After...]
//	[DPTCount:4][PartNum:8,PageNum:8,RecLSN:8]*
//	[TxnCount:4][TxnID:8,Status:1,LastLSN:8]*
//	[LastCheckpointLSN:8]
//
// Size is the total length of the record including the 4-byte size
// field itself, following the teacher's checkpoint-record framing.
func Serialize(rec *Record) ([]byte, error) {
	var buf bytes.Buffer

	fields := []any{
		uint8(rec.Kind),
		uint64(rec.LSN),
		uint64(rec.TxnID),
		uint64(rec.PrevLSN),
		uint64(rec.UndoNextLSN),
		uint64(rec.PartNum),
		uint64(rec.PageNum),
		uint32(rec.Offset),
	}
	for _, v := range fields {
		if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
			return nil, fmt.Errorf("write record header: %w", err)
		}
	}

	if err := writeBlob(&buf, rec.Before); err != nil {
		return nil, fmt.Errorf("write before image: %w", err)
	}
	if err := writeBlob(&buf, rec.After); err != nil {
		return nil, fmt.Errorf("write after image: %w", err)
	}

	if err := binary.Write(&buf, binary.BigEndian, uint32(len(rec.DPT))); err != nil {
		return nil, fmt.Errorf("write dpt count: %w", err)
	}
	for id, lsn := range rec.DPT {
		if err := binary.Write(&buf, binary.BigEndian, uint64(id.Part)); err != nil {
			return nil, fmt.Errorf("write dpt part: %w", err)
		}
		if err := binary.Write(&buf, binary.BigEndian, uint64(id.Page)); err != nil {
			return nil, fmt.Errorf("write dpt page: %w", err)
		}
		if err := binary.Write(&buf, binary.BigEndian, uint64(lsn)); err != nil {
			return nil, fmt.Errorf("write dpt recLSN: %w", err)
		}
	}

	if err := binary.Write(&buf, binary.BigEndian, uint32(len(rec.TxnTable))); err != nil {
		return nil, fmt.Errorf("write txn table count: %w", err)
	}
	for txn, entry := range rec.TxnTable {
		if err := binary.Write(&buf, binary.BigEndian, uint64(txn)); err != nil {
			return nil, fmt.Errorf("write txn table id: %w", err)
		}
		if err := binary.Write(&buf, binary.BigEndian, uint8(entry.Status)); err != nil {
			return nil, fmt.Errorf("write txn table status: %w", err)
		}
		if err := binary.Write(&buf, binary.BigEndian, uint64(entry.LastLSN)); err != nil {
			return nil, fmt.Errorf("write txn table lastLSN: %w", err)
		}
	}

	if err := binary.Write(&buf, binary.BigEndian, uint64(rec.LastCheckpointLSN)); err != nil {
		return nil, fmt.Errorf("write last checkpoint lsn: %w", err)
	}

	data := buf.Bytes()
	result := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(result, uint32(len(result)))
	copy(result[4:], data)
	return result, nil
}

func writeBlob(buf *bytes.Buffer, blob []byte) error {
	if err := binary.Write(buf, binary.BigEndian, uint32(len(blob))); err != nil {
		return err
	}
	_, err := buf.Write(blob)
	return err
}

// Deserialize decodes a record previously produced by Serialize. data
// must contain at least the record's declared size.
func Deserialize(data []byte) (*Record, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("record data too short")
	}
	size := binary.BigEndian.Uint32(data[0:4])
	if uint32(len(data)) < size {
		return nil, fmt.Errorf("record truncated: want %d, have %d", size, len(data))
	}

	r := bytes.NewReader(data[4:size])
	rec := &Record{}

	var kind uint8
	var lsn, txnID, prevLSN, undoNextLSN, partNum, pageNum uint64
	var offset uint32
	for _, dst := range []any{&kind, &lsn, &txnID, &prevLSN, &undoNextLSN, &partNum, &pageNum, &offset} {
		if err := binary.Read(r, binary.BigEndian, dst); err != nil {
			return nil, fmt.Errorf("read record header: %w", err)
		}
	}
	rec.Kind = Kind(kind)
	rec.LSN = primitives.LSN(lsn)
	rec.TxnID = int64(txnID)
	rec.PrevLSN = primitives.LSN(prevLSN)
	rec.UndoNextLSN = primitives.LSN(undoNextLSN)
	rec.PartNum = primitives.PartNum(partNum)
	rec.PageNum = primitives.PageNum(pageNum)
	rec.Offset = int(offset)

	before, err := readBlob(r)
	if err != nil {
		return nil, fmt.Errorf("read before image: %w", err)
	}
	rec.Before = before

	after, err := readBlob(r)
	if err != nil {
		return nil, fmt.Errorf("read after image: %w", err)
	}
	rec.After = after

	var dptCount uint32
	if err := binary.Read(r, binary.BigEndian, &dptCount); err != nil {
		return nil, fmt.Errorf("read dpt count: %w", err)
	}
	if dptCount > 0 {
		rec.DPT = make(map[primitives.PageID]primitives.LSN, dptCount)
	}
	for i := uint32(0); i < dptCount; i++ {
		var part, page, recLSN uint64
		if err := binary.Read(r, binary.BigEndian, &part); err != nil {
			return nil, fmt.Errorf("read dpt part: %w", err)
		}
		if err := binary.Read(r, binary.BigEndian, &page); err != nil {
			return nil, fmt.Errorf("read dpt page: %w", err)
		}
		if err := binary.Read(r, binary.BigEndian, &recLSN); err != nil {
			return nil, fmt.Errorf("read dpt recLSN: %w", err)
		}
		rec.DPT[primitives.PageID{Part: primitives.PartNum(part), Page: primitives.PageNum(page)}] = primitives.LSN(recLSN)
	}

	var txnCount uint32
	if err := binary.Read(r, binary.BigEndian, &txnCount); err != nil {
		return nil, fmt.Errorf("read txn table count: %w", err)
	}
	if txnCount > 0 {
		rec.TxnTable = make(map[int64]TxnTableSnapshotEntry, txnCount)
	}
	for i := uint32(0); i < txnCount; i++ {
		var txn uint64
		var status uint8
		var lastLSN uint64
		if err := binary.Read(r, binary.BigEndian, &txn); err != nil {
			return nil, fmt.Errorf("read txn table id: %w", err)
		}
		if err := binary.Read(r, binary.BigEndian, &status); err != nil {
			return nil, fmt.Errorf("read txn table status: %w", err)
		}
		if err := binary.Read(r, binary.BigEndian, &lastLSN); err != nil {
			return nil, fmt.Errorf("read txn table lastLSN: %w", err)
		}
		rec.TxnTable[int64(txn)] = TxnTableSnapshotEntry{
			Status:  transaction.Status(status),
			LastLSN: primitives.LSN(lastLSN),
		}
	}

	var lastCkpt uint64
	if err := binary.Read(r, binary.BigEndian, &lastCkpt); err != nil {
		return nil, fmt.Errorf("read last checkpoint lsn: %w", err)
	}
	rec.LastCheckpointLSN = primitives.LSN(lastCkpt)

	return rec, nil
}

func readBlob(r *bytes.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}
