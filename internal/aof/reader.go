package aof

import (
	"fmt"
	"io"
	"os"

	"github.com/alicekv/alicedb/internal/protocol"
)

// LoadAll reads every command from path using the same RESP parser the
// server applies to live connections, so AOF replay and command
// dispatch never disagree on wire grammar. A missing file is not an
// error: it means this is a fresh startup.
func LoadAll(path string) ([][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read aof file: %w", err)
	}

	var commands [][]string
	buf := data
	for len(buf) > 0 {
		consumed, argv, err := protocol.ParseRequest(buf)
		if err == protocol.ErrNeedMore {
			return commands, io.ErrUnexpectedEOF
		}
		if err != nil {
			return commands, fmt.Errorf("corrupt aof at command %d: %w", len(commands), err)
		}
		commands = append(commands, argv)
		buf = buf[consumed:]
	}
	return commands, nil
}
