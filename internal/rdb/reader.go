package rdb

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc64"
	"io"
	"os"

	"github.com/alicekv/alicedb/internal/storage"
)

// Load reads a snapshot file written by Save back into a
// storage.Snapshot. A missing file is not an error: first startup has
// nothing to load.
func Load(path string) (*storage.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open rdb file: %w", err)
	}
	defer f.Close()

	return DecodeSnapshot(bufio.NewReader(f))
}

// DecodeSnapshot parses the record stream EncodeSnapshot produces.
// Used both by Load (reading a file) and by the replication package's
// slave side (reading a full-resync body straight off the master's
// socket, spec.md §4.7).
func DecodeSnapshot(r io.Reader) (*storage.Snapshot, error) {
	magic := make([]byte, len(MagicString))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("read rdb magic: %w", err)
	}
	if string(magic) != MagicString {
		return nil, fmt.Errorf("rdb: bad magic %q", magic)
	}
	version := make([]byte, 4)
	if _, err := io.ReadFull(r, version); err != nil {
		return nil, fmt.Errorf("read rdb version: %w", err)
	}

	hasher := crc64.New(crc64.MakeTable(crc64.ECMA))
	hasher.Write(magic)
	hasher.Write(version)
	tee := io.TeeReader(r, hasher)

	snap := &storage.Snapshot{}
	var cur *storage.DatabaseSnapshot

	for {
		opByte := make([]byte, 1)
		if _, err := io.ReadFull(tee, opByte); err != nil {
			return nil, fmt.Errorf("read rdb opcode: %w", err)
		}
		switch opByte[0] {
		case opEOF:
			goto done
		case opAux:
			if _, err := readString(tee); err != nil {
				return nil, err
			}
			if _, err := readString(tee); err != nil {
				return nil, err
			}
		case opSelectDB:
			idx, err := readLength(tee)
			if err != nil {
				return nil, err
			}
			cur = &storage.DatabaseSnapshot{Index: idx}
			snap.Databases = append(snap.Databases, cur)
		case opResizeDB:
			if _, err := readLength(tee); err != nil {
				return nil, err
			}
		case opExpireMS:
			var ms int64
			if err := binary.Read(tee, binary.LittleEndian, &ms); err != nil {
				return nil, err
			}
			entry, err := readValue(tee)
			if err != nil {
				return nil, err
			}
			entry.ExpireAtMS = ms
			cur.Entries = append(cur.Entries, entry)
		case typeString, typeList, typeSet, typeHash, typeZSet:
			entry, err := readValueTyped(tee, opByte[0])
			if err != nil {
				return nil, err
			}
			cur.Entries = append(cur.Entries, entry)
		default:
			return nil, fmt.Errorf("rdb: unknown opcode 0x%02x", opByte[0])
		}
	}
done:
	var want uint64
	if err := binary.Read(r, binary.LittleEndian, &want); err != nil {
		return nil, fmt.Errorf("read rdb checksum: %w", err)
	}
	if got := hasher.Sum64(); got != want {
		return nil, fmt.Errorf("rdb: checksum mismatch (want %x, got %x)", want, got)
	}
	return snap, nil
}

// readValue reads a type byte followed by the value, for the
// expiry-prefixed path (opExpireMS already consumed).
func readValue(r io.Reader) (storage.SnapshotEntry, error) {
	typeByte := make([]byte, 1)
	if _, err := io.ReadFull(r, typeByte); err != nil {
		return storage.SnapshotEntry{}, err
	}
	return readValueTyped(r, typeByte[0])
}

func readValueTyped(r io.Reader, typ byte) (storage.SnapshotEntry, error) {
	key, err := readString(r)
	if err != nil {
		return storage.SnapshotEntry{}, err
	}
	switch typ {
	case typeString:
		s, err := readString(r)
		if err != nil {
			return storage.SnapshotEntry{}, err
		}
		return storage.SnapshotEntry{Key: key, Value: &storage.Value{Type: storage.StringType, Data: s}}, nil
	case typeList:
		n, err := readLength(r)
		if err != nil {
			return storage.SnapshotEntry{}, err
		}
		list := storage.NewList()
		for i := 0; i < n; i++ {
			item, err := readString(r)
			if err != nil {
				return storage.SnapshotEntry{}, err
			}
			list.PushBack(item)
		}
		return storage.SnapshotEntry{Key: key, Value: &storage.Value{Type: storage.ListType, Data: list}}, nil
	case typeSet:
		n, err := readLength(r)
		if err != nil {
			return storage.SnapshotEntry{}, err
		}
		set := storage.NewSet()
		for i := 0; i < n; i++ {
			m, err := readString(r)
			if err != nil {
				return storage.SnapshotEntry{}, err
			}
			set.Add(m)
		}
		return storage.SnapshotEntry{Key: key, Value: &storage.Value{Type: storage.SetType, Data: set}}, nil
	case typeHash:
		n, err := readLength(r)
		if err != nil {
			return storage.SnapshotEntry{}, err
		}
		h := storage.NewHash()
		for i := 0; i < n; i++ {
			f, err := readString(r)
			if err != nil {
				return storage.SnapshotEntry{}, err
			}
			v, err := readString(r)
			if err != nil {
				return storage.SnapshotEntry{}, err
			}
			h.Set(f, v)
		}
		return storage.SnapshotEntry{Key: key, Value: &storage.Value{Type: storage.HashType, Data: h}}, nil
	case typeZSet:
		n, err := readLength(r)
		if err != nil {
			return storage.SnapshotEntry{}, err
		}
		z := storage.NewZSet()
		for i := 0; i < n; i++ {
			m, err := readString(r)
			if err != nil {
				return storage.SnapshotEntry{}, err
			}
			var score float64
			if err := binary.Read(r, binary.LittleEndian, &score); err != nil {
				return storage.SnapshotEntry{}, err
			}
			z.Add(m, score)
		}
		return storage.SnapshotEntry{Key: key, Value: &storage.Value{Type: storage.ZSetType, Data: z}}, nil
	default:
		return storage.SnapshotEntry{}, fmt.Errorf("rdb: unknown value type %d", typ)
	}
}

func readString(r io.Reader) (string, error) {
	n, err := readLength(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", err
		}
	}
	return string(buf), nil
}

func readLength(r io.Reader) (int, error) {
	first := make([]byte, 1)
	if _, err := io.ReadFull(r, first); err != nil {
		return 0, err
	}
	switch first[0] & 0xC0 {
	case 0x00:
		return int(first[0]), nil
	case 0x40:
		second := make([]byte, 1)
		if _, err := io.ReadFull(r, second); err != nil {
			return 0, err
		}
		return int(first[0]&0x3F)<<8 | int(second[0]), nil
	default:
		var n uint32
		if err := binary.Read(r, binary.BigEndian, &n); err != nil {
			return 0, err
		}
		return int(n), nil
	}
}
