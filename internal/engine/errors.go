package engine

import "fmt"

func errUnknownCommand(name string) error {
	return fmt.Errorf("ERR unknown command '%s'", name)
}

func errWrongArity(name string) error {
	return fmt.Errorf("ERR wrong number of arguments for '%s' command", name)
}

var (
	errSyntax  = fmt.Errorf("ERR syntax error")
	errOOM     = fmt.Errorf("OOM command not allowed when used memory > 'maxmemory'")
	errNotInTx = fmt.Errorf("ERR EXEC without MULTI")
	errNestedTx = fmt.Errorf("ERR MULTI calls can not be nested")
	errNoTxToDiscard = fmt.Errorf("ERR DISCARD without MULTI")
	errReadOnlyReplica = fmt.Errorf("READONLY You can't write against a read only replica")
)
