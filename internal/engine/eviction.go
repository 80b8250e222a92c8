package engine

// maybeEvict implements spec.md §4.8: sample resident memory; if
// below the configured ceiling, do nothing, otherwise run one
// eviction according to the configured policy. Invoked from Tick and,
// through checkOOM, before every write command Execute runs inline.
func (e *Engine) maybeEvict() {
	if e.maxMemory == 0 || e.memProbe == nil {
		return
	}
	used, err := e.memProbe.ResidentBytes()
	if err != nil || used < e.maxMemory {
		return
	}
	if e.evictionPolicy == EvictionNone {
		return
	}
	for i := 0; i < e.store.NumDatabases(); i++ {
		if e.evictOneFrom(i) {
			return
		}
	}
}

func (e *Engine) evictOneFrom(dbIndex int) bool {
	db := e.store.DB(dbIndex)
	var victim string
	found := false

	switch e.evictionPolicy {
	case EvictionAllKeysLRU:
		victim, found = oldestOf(db.SampleKeys(e.evictionSample), db)
	case EvictionVolatileLRU:
		victim, found = oldestOf(db.ExpiringKeys(e.evictionSample), db)
	case EvictionAllKeysRandom:
		sample := db.SampleKeys(1)
		if len(sample) > 0 {
			victim, found = sample[0], true
		}
	case EvictionVolatileRandom:
		sample := db.ExpiringKeys(1)
		if len(sample) > 0 {
			victim, found = sample[0], true
		}
	case EvictionVolatileTTL:
		victim, found = lowestTTLOf(db.ExpiringKeys(e.evictionSample), db)
	}

	if !found {
		return false
	}
	db.Delete(victim)
	e.propagate(dbIndex, []string{"DEL", victim})
	e.touchWatchers(dbIndex, victim)
	return true
}

func oldestOf(keys []string, db interface {
	LastAccess(string) int64
}) (string, bool) {
	if len(keys) == 0 {
		return "", false
	}
	best := keys[0]
	bestAccess := db.LastAccess(best)
	for _, k := range keys[1:] {
		if a := db.LastAccess(k); a < bestAccess {
			best, bestAccess = k, a
		}
	}
	return best, true
}

func lowestTTLOf(keys []string, db interface {
	TTLMillis(string) int64
}) (string, bool) {
	if len(keys) == 0 {
		return "", false
	}
	best := keys[0]
	bestTTL := db.TTLMillis(best)
	for _, k := range keys[1:] {
		if t := db.TTLMillis(k); t >= 0 && (bestTTL < 0 || t < bestTTL) {
			best, bestTTL = k, t
		}
	}
	return best, true
}

// checkOOM enforces the NO-eviction write refusal (spec.md §4.8/§7).
// Execute calls this before running any write command inline.
func (e *Engine) checkOOM() error {
	if e.maxMemory == 0 || e.memProbe == nil {
		return nil
	}
	used, err := e.memProbe.ResidentBytes()
	if err != nil || used < e.maxMemory {
		return nil
	}
	if e.evictionPolicy == EvictionNone {
		return errOOM
	}
	e.maybeEvict()
	return nil
}
