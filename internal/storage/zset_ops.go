package storage

func (d *Database) getZSet(key string, create bool) (*ZSet, error) {
	v, ok := d.Lookup(key)
	if !ok {
		if !create {
			return nil, nil
		}
		z := NewZSet()
		d.data[key] = &Value{Type: ZSetType, Data: z}
		d.touch(key)
		return z, nil
	}
	if v.Type != ZSetType {
		return nil, ErrWrongType
	}
	v = d.cloneForWrite(key, v)
	return v.Data.(*ZSet), nil
}

func (d *Database) saveZSet(key string, z *ZSet) {
	d.storeOrDelete(key, &Value{Type: ZSetType, Data: z}, z.Len() == 0)
}

// ZAdd adds or updates members with the given scores, returning the
// count of members newly added (not counting score updates).
func (d *Database) ZAdd(key string, scores map[string]float64) (int, error) {
	z, err := d.getZSet(key, true)
	if err != nil {
		return 0, err
	}
	added := 0
	for member, score := range scores {
		if z.Add(member, score) {
			added++
		}
	}
	d.saveZSet(key, z)
	return added, nil
}

// ZScore returns the score of member.
func (d *Database) ZScore(key, member string) (float64, bool, error) {
	z, err := d.getZSet(key, false)
	if err != nil || z == nil {
		return 0, false, err
	}
	s := z.Score(member)
	if s == nil {
		return 0, false, nil
	}
	return *s, true, nil
}

// ZRem removes members, returning the count removed.
func (d *Database) ZRem(key string, members []string) (int, error) {
	z, err := d.getZSet(key, false)
	if err != nil || z == nil {
		return 0, err
	}
	removed := 0
	for _, m := range members {
		if z.Remove(m) {
			removed++
		}
	}
	d.saveZSet(key, z)
	return removed, nil
}

// ZCard returns the number of members.
func (d *Database) ZCard(key string) (int, error) {
	z, err := d.getZSet(key, false)
	if err != nil || z == nil {
		return 0, err
	}
	return z.Len(), nil
}

// ZRank returns the 0-based ascending rank of member, or -1 if absent.
func (d *Database) ZRank(key, member string) (int, error) {
	z, err := d.getZSet(key, false)
	if err != nil || z == nil {
		return -1, err
	}
	return z.Rank(member), nil
}

// ZRevRank returns the 0-based descending rank of member, or -1 if absent.
func (d *Database) ZRevRank(key, member string) (int, error) {
	z, err := d.getZSet(key, false)
	if err != nil || z == nil {
		return -1, err
	}
	return z.RevRank(member), nil
}

// ZRange returns members by rank range [start, stop].
func (d *Database) ZRange(key string, start, stop int, reverse bool) ([]ZSetMember, error) {
	z, err := d.getZSet(key, false)
	if err != nil || z == nil {
		return nil, err
	}
	n := z.Len()
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if start >= n || stop < start {
		return nil, nil
	}
	if reverse {
		return z.RevRangeByRank(start, stop), nil
	}
	return z.RangeByRank(start, stop), nil
}

// ZRangeByScore returns members with scores in [min, max].
func (d *Database) ZRangeByScore(key string, min, max float64, offset, count int, reverse bool) ([]ZSetMember, error) {
	z, err := d.getZSet(key, false)
	if err != nil || z == nil {
		return nil, err
	}
	if reverse {
		return z.RevRange(min, max, offset, count), nil
	}
	return z.Range(min, max, offset, count), nil
}

// ZCount returns the number of members with scores in [min, max].
func (d *Database) ZCount(key string, min, max float64) (int, error) {
	z, err := d.getZSet(key, false)
	if err != nil || z == nil {
		return 0, err
	}
	return z.Count(min, max), nil
}

// ZIncrBy adds delta to member's score, creating it if absent.
func (d *Database) ZIncrBy(key, member string, delta float64) (float64, error) {
	z, err := d.getZSet(key, true)
	if err != nil {
		return 0, err
	}
	next := z.IncrBy(member, delta)
	d.saveZSet(key, z)
	return next, nil
}

// ZRemRangeByRank removes members in rank range [start, stop].
func (d *Database) ZRemRangeByRank(key string, start, stop int) (int, error) {
	z, err := d.getZSet(key, false)
	if err != nil || z == nil {
		return 0, err
	}
	n := z.RemoveRangeByRank(start, stop)
	d.saveZSet(key, z)
	return n, nil
}

// ZRemRangeByScore removes members with scores in [min, max].
func (d *Database) ZRemRangeByScore(key string, min, max float64) (int, error) {
	z, err := d.getZSet(key, false)
	if err != nil || z == nil {
		return 0, err
	}
	n := z.RemoveRangeByScore(min, max)
	d.saveZSet(key, z)
	return n, nil
}

// ZPopMin removes and returns the count lowest-scored members.
func (d *Database) ZPopMin(key string, count int) ([]ZSetMember, error) {
	z, err := d.getZSet(key, false)
	if err != nil || z == nil {
		return nil, err
	}
	out := make([]ZSetMember, 0, count)
	for i := 0; i < count; i++ {
		m := z.PopMin()
		if m == nil {
			break
		}
		out = append(out, *m)
	}
	d.saveZSet(key, z)
	return out, nil
}

// ZPopMax removes and returns the count highest-scored members.
func (d *Database) ZPopMax(key string, count int) ([]ZSetMember, error) {
	z, err := d.getZSet(key, false)
	if err != nil || z == nil {
		return nil, err
	}
	out := make([]ZSetMember, 0, count)
	for i := 0; i < count; i++ {
		m := z.PopMax()
		if m == nil {
			break
		}
		out = append(out, *m)
	}
	d.saveZSet(key, z)
	return out, nil
}
