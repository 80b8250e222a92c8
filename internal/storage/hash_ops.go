package storage

func (d *Database) getHash(key string, create bool) (*Hash, error) {
	v, ok := d.Lookup(key)
	if !ok {
		if !create {
			return nil, nil
		}
		h := NewHash()
		d.data[key] = &Value{Type: HashType, Data: h}
		d.touch(key)
		return h, nil
	}
	if v.Type != HashType {
		return nil, ErrWrongType
	}
	v = d.cloneForWrite(key, v)
	return v.Data.(*Hash), nil
}

func (d *Database) saveHash(key string, h *Hash) {
	d.storeOrDelete(key, &Value{Type: HashType, Data: h}, h.Len() == 0)
}

// HSet sets one or more field/value pairs, returning the count of
// fields that were newly created.
func (d *Database) HSet(key string, pairs map[string]string) (int, error) {
	h, err := d.getHash(key, true)
	if err != nil {
		return 0, err
	}
	created := 0
	for field, value := range pairs {
		if h.Set(field, value) {
			created++
		}
	}
	d.saveHash(key, h)
	return created, nil
}

// HGet returns the value of field.
func (d *Database) HGet(key, field string) (string, bool, error) {
	h, err := d.getHash(key, false)
	if err != nil || h == nil {
		return "", false, err
	}
	v, ok := h.Get(field)
	return v, ok, nil
}

// HMGet returns the value of each requested field, nil for misses.
func (d *Database) HMGet(key string, fields []string) ([]*string, error) {
	h, err := d.getHash(key, false)
	if err != nil {
		return nil, err
	}
	out := make([]*string, len(fields))
	if h == nil {
		return out, nil
	}
	for i, f := range fields {
		if v, ok := h.Get(f); ok {
			vv := v
			out[i] = &vv
		}
	}
	return out, nil
}

// HDel removes the given fields, returning the count removed.
func (d *Database) HDel(key string, fields []string) (int, error) {
	h, err := d.getHash(key, false)
	if err != nil || h == nil {
		return 0, err
	}
	removed := 0
	for _, f := range fields {
		if h.Delete(f) {
			removed++
		}
	}
	d.saveHash(key, h)
	return removed, nil
}

// HExists reports whether field exists in the hash at key.
func (d *Database) HExists(key, field string) (bool, error) {
	h, err := d.getHash(key, false)
	if err != nil || h == nil {
		return false, err
	}
	return h.Exists(field), nil
}

// HLen returns the number of fields in the hash at key.
func (d *Database) HLen(key string) (int, error) {
	h, err := d.getHash(key, false)
	if err != nil || h == nil {
		return 0, err
	}
	return h.Len(), nil
}

// HKeys returns all field names.
func (d *Database) HKeys(key string) ([]string, error) {
	h, err := d.getHash(key, false)
	if err != nil || h == nil {
		return []string{}, err
	}
	return h.Keys(), nil
}

// HVals returns all values.
func (d *Database) HVals(key string) ([]string, error) {
	h, err := d.getHash(key, false)
	if err != nil || h == nil {
		return []string{}, err
	}
	return h.Values(), nil
}

// HGetAll returns the flattened field/value pairs.
func (d *Database) HGetAll(key string) ([]string, error) {
	h, err := d.getHash(key, false)
	if err != nil || h == nil {
		return []string{}, err
	}
	return h.GetAll(), nil
}

// HSetNX sets field only if it does not already exist.
func (d *Database) HSetNX(key, field, value string) (bool, error) {
	h, err := d.getHash(key, true)
	if err != nil {
		return false, err
	}
	set := h.SetNX(field, value)
	d.saveHash(key, h)
	return set, nil
}

// HIncrBy adds delta to the integer stored in field.
func (d *Database) HIncrBy(key, field string, delta int64) (int64, error) {
	h, err := d.getHash(key, true)
	if err != nil {
		return 0, err
	}
	next, err := h.IncrBy(field, delta)
	if err != nil {
		return 0, err
	}
	d.saveHash(key, h)
	return next, nil
}

// HIncrByFloat adds delta to the float stored in field.
func (d *Database) HIncrByFloat(key, field string, delta float64) (float64, error) {
	h, err := d.getHash(key, true)
	if err != nil {
		return 0, err
	}
	next, err := h.IncrByFloat(field, delta)
	if err != nil {
		return 0, err
	}
	d.saveHash(key, h)
	return next, nil
}
