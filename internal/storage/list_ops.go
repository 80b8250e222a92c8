package storage

// getList returns the *List at key, creating it on demand when
// create is true. ErrWrongType if key holds a different type.
func (d *Database) getList(key string, create bool) (*List, error) {
	v, ok := d.Lookup(key)
	if !ok {
		if !create {
			return nil, nil
		}
		l := NewList()
		d.data[key] = &Value{Type: ListType, Data: l}
		d.touch(key)
		return l, nil
	}
	if v.Type != ListType {
		return nil, ErrWrongType
	}
	v = d.cloneForWrite(key, v)
	return v.Data.(*List), nil
}

func (d *Database) saveList(key string, l *List) {
	d.storeOrDelete(key, &Value{Type: ListType, Data: l}, l.Len() == 0)
}

// LPush pushes values onto the head of the list at key, creating it
// if absent. Returns the new length.
func (d *Database) LPush(key string, values ...string) (int, error) {
	l, err := d.getList(key, true)
	if err != nil {
		return 0, err
	}
	for _, v := range values {
		l.PushFront(v)
	}
	d.saveList(key, l)
	return l.Length, nil
}

// RPush is LPush at the tail.
func (d *Database) RPush(key string, values ...string) (int, error) {
	l, err := d.getList(key, true)
	if err != nil {
		return 0, err
	}
	for _, v := range values {
		l.PushBack(v)
	}
	d.saveList(key, l)
	return l.Length, nil
}

// LPop removes and returns up to count elements from the head.
func (d *Database) LPop(key string, count int) ([]string, error) {
	l, err := d.getList(key, false)
	if err != nil || l == nil {
		return nil, err
	}
	out := make([]string, 0, count)
	for i := 0; i < count; i++ {
		v, ok := l.PopFront()
		if !ok {
			break
		}
		out = append(out, v)
	}
	d.saveList(key, l)
	return out, nil
}

// RPop is LPop at the tail.
func (d *Database) RPop(key string, count int) ([]string, error) {
	l, err := d.getList(key, false)
	if err != nil || l == nil {
		return nil, err
	}
	out := make([]string, 0, count)
	for i := 0; i < count; i++ {
		v, ok := l.PopBack()
		if !ok {
			break
		}
		out = append(out, v)
	}
	d.saveList(key, l)
	return out, nil
}

// LLen returns the length of the list at key, 0 if absent.
func (d *Database) LLen(key string) (int, error) {
	l, err := d.getList(key, false)
	if err != nil || l == nil {
		return 0, err
	}
	return l.Len(), nil
}

// LRange returns the elements in [start, stop] (inclusive, negative
// indices count from the tail).
func (d *Database) LRange(key string, start, stop int) ([]string, error) {
	l, err := d.getList(key, false)
	if err != nil || l == nil {
		return []string{}, err
	}
	return l.Range(start, stop), nil
}

// LIndex returns the element at index, or ("", false, nil) if out of range.
func (d *Database) LIndex(key string, index int) (string, bool, error) {
	l, err := d.getList(key, false)
	if err != nil || l == nil {
		return "", false, err
	}
	v, ok := l.GetAt(index)
	return v, ok, nil
}

// LSet replaces the element at index. Returns ErrIndexOutOfRange if
// index is invalid, ErrNoSuchKey if the key is absent.
func (d *Database) LSet(key string, index int, value string) error {
	l, err := d.getList(key, false)
	if err != nil {
		return err
	}
	if l == nil {
		return ErrNoSuchKey
	}
	if !l.SetAt(index, value) {
		return ErrIndexOutOfRange
	}
	return nil
}

// LTrim keeps only the elements in [start, stop].
func (d *Database) LTrim(key string, start, stop int) error {
	l, err := d.getList(key, false)
	if err != nil || l == nil {
		return err
	}
	l.Trim(start, stop)
	d.saveList(key, l)
	return nil
}

// LRem removes up to count occurrences of value. count > 0 scans
// head-to-tail, count < 0 scans tail-to-head, count == 0 removes all.
// Returns the number removed.
func (d *Database) LRem(key string, count int, value string) (int, error) {
	l, err := d.getList(key, false)
	if err != nil || l == nil {
		return 0, err
	}
	removed := 0
	fromHead := count >= 0
	limit := count
	if limit < 0 {
		limit = -limit
	}
	for {
		if limit > 0 && removed >= limit {
			break
		}
		node := l.FindNode(value, fromHead)
		if node == nil {
			break
		}
		l.RemoveNode(node)
		removed++
	}
	d.saveList(key, l)
	return removed, nil
}

// LInsert inserts value before or after the first occurrence of pivot.
// Returns the new length, 0 if pivot not found, -1 if key absent.
func (d *Database) LInsert(key string, before bool, pivot, value string) (int, error) {
	l, err := d.getList(key, false)
	if err != nil {
		return 0, err
	}
	if l == nil {
		return -1, nil
	}
	node := l.FindNode(pivot, true)
	if node == nil {
		return 0, nil
	}
	if before {
		l.InsertBefore(node, value)
	} else {
		l.InsertAfter(node, value)
	}
	d.saveList(key, l)
	return l.Length, nil
}

// RPopLPush atomically pops the tail of src and pushes it onto the
// head of dst, returning the moved value. Used directly by RPOPLPUSH
// and as the non-blocking fast path for BRPOPLPUSH.
func (d *Database) RPopLPush(src, dst string) (string, bool, error) {
	srcList, err := d.getList(src, false)
	if err != nil || srcList == nil {
		return "", false, err
	}
	v, ok := srcList.PopBack()
	if !ok {
		return "", false, nil
	}
	d.saveList(src, srcList)
	dstList, err := d.getList(dst, true)
	if err != nil {
		// put it back; dst holds the wrong type
		srcList.PushBack(v)
		d.saveList(src, srcList)
		return "", false, err
	}
	dstList.PushFront(v)
	d.saveList(dst, dstList)
	return v, true, nil
}
