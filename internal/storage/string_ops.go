package storage

// Get returns the string stored at key. ErrWrongType if key holds a
// different type.
func (d *Database) Get(key string) (string, bool, error) {
	v, ok := d.Lookup(key)
	if !ok {
		return "", false, nil
	}
	if v.Type != StringType {
		return "", false, ErrWrongType
	}
	return v.Data.(string), true, nil
}

// Set stores value as a plain string at key, replacing whatever was
// there and clearing any prior expiry (spec.md §4.2, SET without
// KEEPTTL). keepTTL preserves an existing expiry instead.
func (d *Database) Set(key, value string, keepTTL bool) {
	var deadline int64
	hadDeadline := false
	if keepTTL {
		deadline, hadDeadline = d.expires[key]
	}
	d.data[key] = &Value{Type: StringType, Data: value}
	d.touch(key)
	if hadDeadline {
		d.expires[key] = deadline
	} else {
		delete(d.expires, key)
	}
}

// SetNX sets key only if it does not already exist. Returns true if set.
func (d *Database) SetNX(key, value string) bool {
	if d.Exists(key) {
		return false
	}
	d.Set(key, value, false)
	return true
}

// SetXX sets key only if it already exists. Returns true if set.
func (d *Database) SetXX(key, value string) bool {
	if !d.Exists(key) {
		return false
	}
	d.Set(key, value, false)
	return true
}

// Append appends suffix to the string at key, creating it if absent.
// Returns the new length.
func (d *Database) Append(key, suffix string) (int, error) {
	s, _, err := d.Get(key)
	if err != nil {
		return 0, err
	}
	s += suffix
	d.data[key] = &Value{Type: StringType, Data: s}
	d.touch(key)
	return len(s), nil
}

// StrLen returns the length of the string at key, 0 if absent.
func (d *Database) StrLen(key string) (int, error) {
	s, ok, err := d.Get(key)
	if err != nil || !ok {
		return 0, err
	}
	return len(s), nil
}

// IncrBy adds delta to the integer stored at key, creating it at 0
// first if absent.
func (d *Database) IncrBy(key string, delta int64) (int64, error) {
	s, _, err := d.Get(key)
	if err != nil {
		return 0, err
	}
	cur, err := parseStoredInt(s)
	if err != nil {
		return 0, err
	}
	next := cur + delta
	d.Set(key, formatInt(next), true)
	return next, nil
}

// IncrByFloat adds delta to the float stored at key, creating it at 0
// first if absent.
func (d *Database) IncrByFloat(key string, delta float64) (float64, error) {
	s, _, err := d.Get(key)
	if err != nil {
		return 0, err
	}
	cur, err := parseStoredFloat(s)
	if err != nil {
		return 0, err
	}
	next := cur + delta
	d.Set(key, formatFloat(next), true)
	return next, nil
}

// GetSet atomically sets key to value and returns the previous
// string, or ("", false, nil) if it had none.
func (d *Database) GetSet(key, value string) (string, bool, error) {
	old, existed, err := d.Get(key)
	if err != nil {
		return "", false, err
	}
	d.Set(key, value, false)
	return old, existed, nil
}

// MGet returns the string for each key, or nil for keys that are
// absent or hold a non-string value.
func (d *Database) MGet(keys []string) []*string {
	out := make([]*string, len(keys))
	for i, k := range keys {
		v, ok := d.Lookup(k)
		if !ok || v.Type != StringType {
			continue
		}
		s := v.Data.(string)
		out[i] = &s
	}
	return out
}
