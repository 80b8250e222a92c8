// Package rdb implements the binary point-in-time snapshot format
// (C5): SAVE/BGSAVE write it, startup loads it. The layout follows the
// teacher's length-prefixed opcode stream with a trailing CRC64
// checksum, extended here to walk every logical database instead of
// just database 0, and to cover all five value types.
package rdb

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc64"
	"io"
	"os"
	"time"

	"github.com/alicekv/alicedb/internal/storage"
)

const (
	Version     = 1
	MagicString = "ALICE"

	opEOF        = 0xFF
	opSelectDB   = 0xFE
	opExpireMS   = 0xFC
	opResizeDB   = 0xFB
	opAux        = 0xFA

	typeString = 0
	typeList   = 1
	typeSet    = 2
	typeHash   = 3
	typeZSet   = 4
)

// Save writes snap to path via a temp-file-then-rename so a reader
// never observes a half-written snapshot.
func Save(path string, snap *storage.Snapshot) error {
	tempPath := path + ".tmp"
	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("create rdb temp file: %w", err)
	}

	bw := bufio.NewWriter(file)
	if err := EncodeSnapshot(bw, snap); err != nil {
		file.Close()
		os.Remove(tempPath)
		return err
	}
	if err := bw.Flush(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("flush rdb: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("sync rdb: %w", err)
	}
	file.Close()
	return os.Rename(tempPath, path)
}

// EncodeSnapshot writes snap in the on-disk record format to w,
// trailing it with a CRC64 checksum. Shared by Save (writing to a temp
// file) and the replication package (writing the full-resync body
// straight onto a slave's socket, spec.md §4.7).
func EncodeSnapshot(w io.Writer, snap *storage.Snapshot) error {
	hasher := crc64.New(crc64.MakeTable(crc64.ECMA))
	mw := io.MultiWriter(w, hasher)

	writeHeader(mw, snap.RunID)
	for _, db := range snap.Databases {
		if len(db.Entries) == 0 {
			continue
		}
		mw.Write([]byte{opSelectDB})
		writeLength(mw, db.Index)
		mw.Write([]byte{opResizeDB})
		writeLength(mw, len(db.Entries))
		for _, e := range db.Entries {
			if err := writeEntry(mw, e); err != nil {
				return err
			}
		}
	}
	mw.Write([]byte{opEOF})
	return binary.Write(w, binary.LittleEndian, hasher.Sum64())
}

func writeHeader(w io.Writer, runID string) {
	w.Write([]byte(MagicString))
	fmt.Fprintf(w, "%04d", Version)
	w.Write([]byte{opAux})
	writeString(w, "run-id")
	writeString(w, runID)
	w.Write([]byte{opAux})
	writeString(w, "ctime")
	writeString(w, fmt.Sprintf("%d", time.Now().Unix()))
}

func writeEntry(w io.Writer, e storage.SnapshotEntry) error {
	if e.ExpireAtMS > 0 {
		w.Write([]byte{opExpireMS})
		binary.Write(w, binary.LittleEndian, e.ExpireAtMS)
	}
	v := e.Value
	switch v.Type {
	case storage.StringType:
		w.Write([]byte{typeString})
		writeString(w, e.Key)
		writeString(w, v.Data.(string))
	case storage.ListType:
		items := v.Data.(*storage.List).ToSlice()
		w.Write([]byte{typeList})
		writeString(w, e.Key)
		writeLength(w, len(items))
		for _, it := range items {
			writeString(w, it)
		}
	case storage.SetType:
		members := v.Data.(*storage.Set).GetMembers()
		w.Write([]byte{typeSet})
		writeString(w, e.Key)
		writeLength(w, len(members))
		for _, m := range members {
			writeString(w, m)
		}
	case storage.HashType:
		h := v.Data.(*storage.Hash)
		fields := h.Keys()
		w.Write([]byte{typeHash})
		writeString(w, e.Key)
		writeLength(w, len(fields))
		for _, f := range fields {
			val, _ := h.Get(f)
			writeString(w, f)
			writeString(w, val)
		}
	case storage.ZSetType:
		members := v.Data.(*storage.ZSet).GetAll()
		w.Write([]byte{typeZSet})
		writeString(w, e.Key)
		writeLength(w, len(members))
		for _, m := range members {
			writeString(w, m.Member)
			binary.Write(w, binary.LittleEndian, m.Score)
		}
	default:
		return fmt.Errorf("rdb: unknown value type %d for key %q", v.Type, e.Key)
	}
	return nil
}

func writeString(w io.Writer, s string) {
	writeLength(w, len(s))
	w.Write([]byte(s))
}

func writeLength(w io.Writer, n int) {
	switch {
	case n < 64:
		w.Write([]byte{byte(n)})
	case n < 16384:
		w.Write([]byte{byte(0x40 | (n >> 8)), byte(n & 0xFF)})
	default:
		w.Write([]byte{0x80})
		binary.Write(w, binary.BigEndian, uint32(n))
	}
}
