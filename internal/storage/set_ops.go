package storage

func (d *Database) getSet(key string, create bool) (*Set, error) {
	v, ok := d.Lookup(key)
	if !ok {
		if !create {
			return nil, nil
		}
		s := NewSet()
		d.data[key] = &Value{Type: SetType, Data: s}
		d.touch(key)
		return s, nil
	}
	if v.Type != SetType {
		return nil, ErrWrongType
	}
	v = d.cloneForWrite(key, v)
	return v.Data.(*Set), nil
}

func (d *Database) saveSet(key string, s *Set) {
	d.storeOrDelete(key, &Value{Type: SetType, Data: s}, s.Len() == 0)
}

// SAdd adds members to the set at key, returning the count added.
func (d *Database) SAdd(key string, members []string) (int, error) {
	s, err := d.getSet(key, true)
	if err != nil {
		return 0, err
	}
	added := 0
	for _, m := range members {
		if s.Add(m) {
			added++
		}
	}
	d.saveSet(key, s)
	return added, nil
}

// SRem removes members from the set at key, returning the count removed.
func (d *Database) SRem(key string, members []string) (int, error) {
	s, err := d.getSet(key, false)
	if err != nil || s == nil {
		return 0, err
	}
	removed := 0
	for _, m := range members {
		if s.Remove(m) {
			removed++
		}
	}
	d.saveSet(key, s)
	return removed, nil
}

// SIsMember reports whether member is in the set at key.
func (d *Database) SIsMember(key, member string) (bool, error) {
	s, err := d.getSet(key, false)
	if err != nil || s == nil {
		return false, err
	}
	return s.IsMember(member), nil
}

// SMembers returns all members of the set at key.
func (d *Database) SMembers(key string) ([]string, error) {
	s, err := d.getSet(key, false)
	if err != nil || s == nil {
		return []string{}, err
	}
	return s.GetMembers(), nil
}

// SCard returns the number of members in the set at key.
func (d *Database) SCard(key string) (int, error) {
	s, err := d.getSet(key, false)
	if err != nil || s == nil {
		return 0, err
	}
	return s.Len(), nil
}

// SPop removes and returns up to count random members.
func (d *Database) SPop(key string, count int) ([]string, error) {
	s, err := d.getSet(key, false)
	if err != nil || s == nil {
		return nil, err
	}
	out := make([]string, 0, count)
	for i := 0; i < count; i++ {
		v, ok := s.Pop()
		if !ok {
			break
		}
		out = append(out, v)
	}
	d.saveSet(key, s)
	return out, nil
}

// SRandMember returns up to count members without removing them.
func (d *Database) SRandMember(key string, count int) ([]string, error) {
	s, err := d.getSet(key, false)
	if err != nil || s == nil {
		return nil, err
	}
	return s.RandomMembers(count), nil
}

// setOperands resolves each key to a *Set, treating absent keys as
// empty sets and rejecting non-set keys with ErrWrongType.
func (d *Database) setOperands(keys []string) ([]*Set, error) {
	sets := make([]*Set, 0, len(keys))
	for _, k := range keys {
		s, err := d.getSet(k, false)
		if err != nil {
			return nil, err
		}
		if s == nil {
			s = NewSet()
		}
		sets = append(sets, s)
	}
	return sets, nil
}

// SUnion returns the union of the sets at keys.
func (d *Database) SUnion(keys []string) ([]string, error) {
	sets, err := d.setOperands(keys)
	if err != nil {
		return nil, err
	}
	result := NewSet()
	for _, s := range sets {
		result = result.Union(s)
	}
	return result.GetMembers(), nil
}

// SInter returns the intersection of the sets at keys.
func (d *Database) SInter(keys []string) ([]string, error) {
	sets, err := d.setOperands(keys)
	if err != nil {
		return nil, err
	}
	if len(sets) == 0 {
		return []string{}, nil
	}
	result := sets[0]
	for _, s := range sets[1:] {
		result = result.Intersect(s)
	}
	return result.GetMembers(), nil
}

// SDiff returns the members in the first set not present in the rest.
func (d *Database) SDiff(keys []string) ([]string, error) {
	sets, err := d.setOperands(keys)
	if err != nil {
		return nil, err
	}
	if len(sets) == 0 {
		return []string{}, nil
	}
	result := sets[0]
	for _, s := range sets[1:] {
		result = result.Diff(s)
	}
	return result.GetMembers(), nil
}

// StoreSetResult writes members into dest as a Set value, deleting
// dest if the result is empty (SUNIONSTORE/SINTERSTORE/SDIFFSTORE).
func (d *Database) StoreSetResult(dest string, members []string) int {
	s := NewSet()
	for _, m := range members {
		s.Add(m)
	}
	d.saveSet(dest, s)
	return s.Len()
}
