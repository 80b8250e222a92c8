package storage

import "strconv"

// Shared numeric parsing/formatting for INCR-family commands across
// strings, hashes and sorted sets. Kept in one place so the wire-level
// error text (ErrNotInteger / ErrNotFloat) stays consistent everywhere
// a stored string is reinterpreted as a number.

func formatInt(v int64) string { return strconv.FormatInt(v, 10) }

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatScore renders a ZSet score the way ZSCORE/ZRANGE WITHSCORES
// reply with it on the wire.
func FormatScore(v float64) string { return formatFloat(v) }

func parseStoredInt(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, ErrNotInteger
	}
	return v, nil
}

func parseStoredFloat(raw string) (float64, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, ErrNotFloat
	}
	return v, nil
}

func hashFieldInt(raw string) (int64, error)     { return parseStoredInt(raw) }
func hashFieldFloat(raw string) (float64, error) { return parseStoredFloat(raw) }
