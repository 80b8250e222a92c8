package storage

// ValueType tags the variant held by a Value.
type ValueType int

const (
	StringType ValueType = iota
	ListType
	SetType
	HashType
	ZSetType
)

func (t ValueType) String() string {
	switch t {
	case StringType:
		return "string"
	case ListType:
		return "list"
	case SetType:
		return "set"
	case HashType:
		return "hash"
	case ZSetType:
		return "zset"
	default:
		return "none"
	}
}

// Value is the tagged variant stored under a key. Data holds one of
// string, *List, *Set, *Hash or *ZSet depending on Type.
type Value struct {
	Type ValueType
	Data interface{}

	// shared marks a Value captured by Store.Snapshot: the container it
	// wraps must not be mutated in place until a writer clones it via
	// Database.cloneForWrite (spec.md §9).
	shared bool
}
