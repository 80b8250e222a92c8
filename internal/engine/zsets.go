package engine

import (
	"math"
	"strconv"
	"strings"

	"github.com/alicekv/alicedb/internal/protocol"
	"github.com/alicekv/alicedb/internal/storage"
)

func init() {
	register("ZADD", 4, flagWrite, cmdZAdd)
	register("ZSCORE", 3, flagReadOnly, cmdZScore)
	register("ZINCRBY", 4, flagWrite, cmdZIncrBy)
	register("ZCARD", 2, flagReadOnly, cmdZCard)
	register("ZCOUNT", 4, flagReadOnly, cmdZCount)
	register("ZRANK", 3, flagReadOnly, cmdZRank)
	register("ZREVRANK", 3, flagReadOnly, cmdZRevRank)
	register("ZREM", 3, flagWrite, cmdZRem)
	register("ZRANGE", 4, flagReadOnly, cmdZRange)
	register("ZREVRANGE", 4, flagReadOnly, cmdZRevRange)
	register("ZRANGEBYSCORE", 4, flagReadOnly, cmdZRangeByScore)
	register("ZREVRANGEBYSCORE", 4, flagReadOnly, cmdZRevRangeByScore)
	register("ZREMRANGEBYRANK", 4, flagWrite, cmdZRemRangeByRank)
	register("ZREMRANGEBYSCORE", 4, flagWrite, cmdZRemRangeByScore)
	register("ZPOPMIN", 2, flagWrite, cmdZPopMin)
	register("ZPOPMAX", 2, flagWrite, cmdZPopMax)
}

func cmdZAdd(e *Engine, c *Conn, argv []string) []byte {
	rest := argv[2:]
	if len(rest)%2 != 0 {
		return protocol.EncodeError(errSyntax.Error())
	}
	scores := make(map[string]float64, len(rest)/2)
	for i := 0; i < len(rest); i += 2 {
		score, err := strconv.ParseFloat(rest[i], 64)
		if err != nil {
			return protocol.EncodeError(storage.ErrNotFloat.Error())
		}
		scores[rest[i+1]] = score
	}
	n, err := e.store.DB(c.DB).ZAdd(argv[1], scores)
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	return protocol.EncodeInteger(int64(n))
}

func cmdZScore(e *Engine, c *Conn, argv []string) []byte {
	score, ok, err := e.store.DB(c.DB).ZScore(argv[1], argv[2])
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	if !ok {
		return protocol.EncodeNullBulkString()
	}
	return protocol.EncodeBulkString(storage.FormatScore(score))
}

func cmdZIncrBy(e *Engine, c *Conn, argv []string) []byte {
	delta, err := strconv.ParseFloat(argv[2], 64)
	if err != nil {
		return protocol.EncodeError(storage.ErrNotFloat.Error())
	}
	next, err := e.store.DB(c.DB).ZIncrBy(argv[1], argv[3], delta)
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	return protocol.EncodeBulkString(storage.FormatScore(next))
}

func cmdZCard(e *Engine, c *Conn, argv []string) []byte {
	n, err := e.store.DB(c.DB).ZCard(argv[1])
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	return protocol.EncodeInteger(int64(n))
}

func parseScoreBound(s string) (float64, error) {
	s = strings.TrimPrefix(s, "(")
	if s == "-inf" {
		return math.Inf(-1), nil
	}
	if s == "+inf" || s == "inf" {
		return math.Inf(1), nil
	}
	return strconv.ParseFloat(s, 64)
}

func cmdZCount(e *Engine, c *Conn, argv []string) []byte {
	min, err := parseScoreBound(argv[2])
	if err != nil {
		return protocol.EncodeError(storage.ErrNotFloat.Error())
	}
	max, err := parseScoreBound(argv[3])
	if err != nil {
		return protocol.EncodeError(storage.ErrNotFloat.Error())
	}
	n, err := e.store.DB(c.DB).ZCount(argv[1], min, max)
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	return protocol.EncodeInteger(int64(n))
}

func cmdZRank(e *Engine, c *Conn, argv []string) []byte {
	rank, err := e.store.DB(c.DB).ZRank(argv[1], argv[2])
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	if rank < 0 {
		return protocol.EncodeNullBulkString()
	}
	return protocol.EncodeInteger(int64(rank))
}

func cmdZRevRank(e *Engine, c *Conn, argv []string) []byte {
	rank, err := e.store.DB(c.DB).ZRevRank(argv[1], argv[2])
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	if rank < 0 {
		return protocol.EncodeNullBulkString()
	}
	return protocol.EncodeInteger(int64(rank))
}

func cmdZRem(e *Engine, c *Conn, argv []string) []byte {
	n, err := e.store.DB(c.DB).ZRem(argv[1], argv[2:])
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	return protocol.EncodeInteger(int64(n))
}

func encodeZMembers(members []storage.ZSetMember, withScores bool) []byte {
	if !withScores {
		out := make([]string, len(members))
		for i, m := range members {
			out[i] = m.Member
		}
		return protocol.EncodeArray(out)
	}
	out := make([]string, 0, len(members)*2)
	for _, m := range members {
		out = append(out, m.Member, storage.FormatScore(m.Score))
	}
	return protocol.EncodeArray(out)
}

func rangeByRank(e *Engine, c *Conn, argv []string, reverse bool) []byte {
	start, err := strconv.Atoi(argv[2])
	if err != nil {
		return protocol.EncodeError(storage.ErrNotInteger.Error())
	}
	stop, err := strconv.Atoi(argv[3])
	if err != nil {
		return protocol.EncodeError(storage.ErrNotInteger.Error())
	}
	withScores := len(argv) >= 5 && strings.EqualFold(argv[4], "WITHSCORES")
	members, err := e.store.DB(c.DB).ZRange(argv[1], start, stop, reverse)
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	return encodeZMembers(members, withScores)
}

func cmdZRange(e *Engine, c *Conn, argv []string) []byte {
	return rangeByRank(e, c, argv, false)
}

func cmdZRevRange(e *Engine, c *Conn, argv []string) []byte {
	return rangeByRank(e, c, argv, true)
}

func rangeByScore(e *Engine, c *Conn, argv []string, reverse bool) []byte {
	lo, hi := argv[2], argv[3]
	if reverse {
		lo, hi = argv[3], argv[2]
	}
	min, err := parseScoreBound(lo)
	if err != nil {
		return protocol.EncodeError(storage.ErrNotFloat.Error())
	}
	max, err := parseScoreBound(hi)
	if err != nil {
		return protocol.EncodeError(storage.ErrNotFloat.Error())
	}
	withScores := false
	offset, count := 0, -1
	for i := 4; i < len(argv); i++ {
		switch strings.ToUpper(argv[i]) {
		case "WITHSCORES":
			withScores = true
		case "LIMIT":
			if i+2 >= len(argv) {
				return protocol.EncodeError(errSyntax.Error())
			}
			offset, err = strconv.Atoi(argv[i+1])
			if err != nil {
				return protocol.EncodeError(storage.ErrNotInteger.Error())
			}
			count, err = strconv.Atoi(argv[i+2])
			if err != nil {
				return protocol.EncodeError(storage.ErrNotInteger.Error())
			}
			i += 2
		default:
			return protocol.EncodeError(errSyntax.Error())
		}
	}
	members, err := e.store.DB(c.DB).ZRangeByScore(argv[1], min, max, offset, count, reverse)
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	return encodeZMembers(members, withScores)
}

func cmdZRangeByScore(e *Engine, c *Conn, argv []string) []byte {
	return rangeByScore(e, c, argv, false)
}

func cmdZRevRangeByScore(e *Engine, c *Conn, argv []string) []byte {
	return rangeByScore(e, c, argv, true)
}

func cmdZRemRangeByRank(e *Engine, c *Conn, argv []string) []byte {
	start, err := strconv.Atoi(argv[2])
	if err != nil {
		return protocol.EncodeError(storage.ErrNotInteger.Error())
	}
	stop, err := strconv.Atoi(argv[3])
	if err != nil {
		return protocol.EncodeError(storage.ErrNotInteger.Error())
	}
	n, err := e.store.DB(c.DB).ZRemRangeByRank(argv[1], start, stop)
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	return protocol.EncodeInteger(int64(n))
}

func cmdZRemRangeByScore(e *Engine, c *Conn, argv []string) []byte {
	min, err := parseScoreBound(argv[2])
	if err != nil {
		return protocol.EncodeError(storage.ErrNotFloat.Error())
	}
	max, err := parseScoreBound(argv[3])
	if err != nil {
		return protocol.EncodeError(storage.ErrNotFloat.Error())
	}
	n, err := e.store.DB(c.DB).ZRemRangeByScore(argv[1], min, max)
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	return protocol.EncodeInteger(int64(n))
}

func popCountZ(argv []string) (int, error) {
	if len(argv) < 3 {
		return 1, nil
	}
	return strconv.Atoi(argv[2])
}

func cmdZPopMin(e *Engine, c *Conn, argv []string) []byte {
	count, err := popCountZ(argv)
	if err != nil {
		return protocol.EncodeError(storage.ErrNotInteger.Error())
	}
	members, err := e.store.DB(c.DB).ZPopMin(argv[1], count)
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	return encodeZMembers(members, true)
}

func cmdZPopMax(e *Engine, c *Conn, argv []string) []byte {
	count, err := popCountZ(argv)
	if err != nil {
		return protocol.EncodeError(storage.ErrNotInteger.Error())
	}
	members, err := e.store.DB(c.DB).ZPopMax(argv[1], count)
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	return encodeZMembers(members, true)
}
