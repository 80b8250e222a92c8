package engine

import (
	"sort"
	"strconv"
	"strings"

	"github.com/alicekv/alicedb/internal/protocol"
	"github.com/alicekv/alicedb/internal/storage"
)

// sortElem carries one input element through the BY/GET pattern
// substitution pipeline: value is what gets returned (or projected
// from) once the sort is done, cmpKey is what it actually sorts by.
type sortElem struct {
	value  string
	cmpKey string
}

// substitutePattern implements the "foo_*_bar" key template used by
// BY and GET: the first '*' in pattern is replaced with elem, and a
// trailing "->field" addresses a hash field instead of a string.
func substitutePattern(pattern, elem string) (key, field string, ok bool) {
	star := strings.IndexByte(pattern, '*')
	if star < 0 {
		return "", "", false
	}
	key = pattern[:star] + elem + pattern[star+1:]
	if idx := strings.Index(key, "->"); idx >= 0 {
		field, key = key[idx+2:], key[:idx]
	}
	return key, field, true
}

// lookupPattern resolves a BY/GET pattern against elem, returning the
// referenced string (or nil if the key is absent or the wrong type, in
// which case the wire reply for that slot is a nil bulk string).
func lookupPattern(db *storage.Database, pattern, elem string) *string {
	key, field, ok := substitutePattern(pattern, elem)
	if !ok {
		return nil
	}
	if field != "" {
		v, found, err := db.HGet(key, field)
		if err != nil || !found {
			return nil
		}
		return &v
	}
	v, found, err := db.Get(key)
	if err != nil || !found {
		return nil
	}
	return &v
}

// cmdSort implements SORT: gather the list/set at key, optionally
// reorder it by an external BY pattern, sort numerically or
// lexically, clip to a LIMIT window, optionally project through GET
// patterns, and optionally persist the result with STORE.
func cmdSort(e *Engine, c *Conn, argv []string) []byte {
	db := e.store.DB(c.DB)
	key := argv[1]

	t, exists := db.TypeOf(key)
	if exists && t != storage.ListType && t != storage.SetType {
		return protocol.EncodeError(storage.ErrWrongType.Error())
	}

	var elems []string
	if exists {
		var err error
		if t == storage.ListType {
			elems, err = db.LRange(key, 0, -1)
		} else {
			elems, err = db.SMembers(key)
		}
		if err != nil {
			return protocol.EncodeError(err.Error())
		}
	}

	var byPattern, storeDest string
	var getPatterns []string
	alpha, desc, haveLimit, getVal := false, false, false, false
	offset, count := 0, 0

	for i := 2; i < len(argv); i++ {
		switch strings.ToUpper(argv[i]) {
		case "ASC":
			desc = false
		case "DESC":
			desc = true
		case "ALPHA":
			alpha = true
		case "BY":
			if i+1 >= len(argv) {
				return protocol.EncodeError(errSyntax.Error())
			}
			i++
			byPattern = argv[i]
		case "LIMIT":
			if i+2 >= len(argv) {
				return protocol.EncodeError(errSyntax.Error())
			}
			o, err := strconv.Atoi(argv[i+1])
			if err != nil {
				return protocol.EncodeError(storage.ErrNotInteger.Error())
			}
			n, err := strconv.Atoi(argv[i+2])
			if err != nil {
				return protocol.EncodeError(storage.ErrNotInteger.Error())
			}
			offset, count, haveLimit = o, n, true
			i += 2
		case "GET":
			if i+1 >= len(argv) {
				return protocol.EncodeError(errSyntax.Error())
			}
			i++
			if argv[i] == "#" {
				getVal = true
			} else {
				getPatterns = append(getPatterns, argv[i])
			}
		case "STORE":
			if i+1 >= len(argv) {
				return protocol.EncodeError(errSyntax.Error())
			}
			i++
			storeDest = argv[i]
		default:
			return protocol.EncodeError(errSyntax.Error())
		}
	}

	working := make([]sortElem, len(elems))
	for i, v := range elems {
		working[i] = sortElem{value: v, cmpKey: v}
	}

	skipSort := false
	if byPattern != "" {
		if !strings.Contains(byPattern, "*") {
			skipSort = true
		} else {
			for i := range working {
				if v := lookupPattern(db, byPattern, working[i].value); v != nil {
					working[i].cmpKey = *v
				} else {
					working[i].cmpKey = working[i].value
				}
			}
		}
	}

	if !skipSort {
		if !alpha {
			scores := make([]float64, len(working))
			for i, w := range working {
				f, err := strconv.ParseFloat(w.cmpKey, 64)
				if err != nil {
					return protocol.EncodeError("ERR One or more scores can't be converted into double")
				}
				scores[i] = f
			}
			idx := make([]int, len(working))
			for i := range idx {
				idx[i] = i
			}
			sort.SliceStable(idx, func(a, b int) bool {
				if desc {
					return scores[idx[a]] > scores[idx[b]]
				}
				return scores[idx[a]] < scores[idx[b]]
			})
			sorted := make([]sortElem, len(working))
			for i, j := range idx {
				sorted[i] = working[j]
			}
			working = sorted
		} else {
			sort.SliceStable(working, func(a, b int) bool {
				if desc {
					return working[a].cmpKey > working[b].cmpKey
				}
				return working[a].cmpKey < working[b].cmpKey
			})
		}
	}

	if haveLimit {
		if offset < 0 || count <= 0 || offset >= len(working) {
			working = nil
		} else {
			end := offset + count
			if end > len(working) {
				end = len(working)
			}
			working = working[offset:end]
		}
	}

	type outSlot struct {
		value *string
	}
	var out []outSlot
	if len(getPatterns) == 0 && !getVal {
		for _, w := range working {
			v := w.value
			out = append(out, outSlot{value: &v})
		}
	} else {
		for _, w := range working {
			if getVal {
				v := w.value
				out = append(out, outSlot{value: &v})
			}
			for _, p := range getPatterns {
				out = append(out, outSlot{value: lookupPattern(db, p, w.value)})
			}
		}
	}

	if storeDest != "" {
		plain := make([]string, len(out))
		for i, o := range out {
			if o.value != nil {
				plain[i] = *o.value
			}
		}
		if len(plain) == 0 {
			db.Delete(storeDest)
			return protocol.EncodeInteger(0)
		}
		db.Delete(storeDest)
		n, err := db.RPush(storeDest, plain...)
		if err != nil {
			return protocol.EncodeError(err.Error())
		}
		return protocol.EncodeInteger(int64(n))
	}

	if len(out) == 0 {
		return protocol.EncodeNilArray()
	}
	ptrs := make([]*string, len(out))
	for i, o := range out {
		ptrs[i] = o.value
	}
	return protocol.EncodeArrayPtr(ptrs)
}
