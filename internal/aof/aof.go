// Package aof implements the append-only durability log (C6): every
// write command is re-serialized to disk after it executes, replayed
// in full on startup, and periodically compacted by rewriting it down
// to the minimal set of commands that reconstruct current state.
package aof

import (
	"bufio"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/alicekv/alicedb/internal/protocol"
)

// SyncPolicy controls how aggressively the writer fsyncs to disk.
type SyncPolicy int

const (
	// SyncAlways fsyncs after every command: no data loss, lowest throughput.
	SyncAlways SyncPolicy = iota
	// SyncEverySecond fsyncs on a 1s ticker, the default trade-off.
	SyncEverySecond
	// SyncNo leaves flushing to the OS page cache.
	SyncNo
)

// Config holds append log configuration (spec.md §6 appendfsync).
type Config struct {
	Enabled    bool
	Filepath   string
	SyncPolicy SyncPolicy
	BufferSize int
}

func DefaultConfig() Config {
	return Config{
		Enabled:    true,
		Filepath:   "appendonly.aof",
		SyncPolicy: SyncEverySecond,
		BufferSize: 4096,
	}
}

// Writer appends commands to the log and can rewrite it in place.
// Safe for concurrent Feed/FeedRaw calls, though the engine's single
// dispatch goroutine is the only caller in practice.
type Writer struct {
	config Config
	file   *os.File
	writer *bufio.Writer
	mu     sync.Mutex

	rewriteMu     sync.Mutex
	rewriteBuffer *[][]string
	isRewriting   bool

	totalWrites int64
	totalBytes  int64
	lastSync    time.Time

	syncTicker *time.Ticker
	stopChan   chan struct{}
	closed     bool
}

// NewWriter opens (or creates) the log file in append mode. A disabled
// config returns a no-op writer so callers never need a nil check.
func NewWriter(config Config) (*Writer, error) {
	if !config.Enabled {
		return &Writer{config: config, closed: true}, nil
	}
	file, err := os.OpenFile(config.Filepath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open aof file: %w", err)
	}
	bufSize := config.BufferSize
	if bufSize <= 0 {
		bufSize = 4096
	}
	initialBuffer := make([][]string, 0, 1024)
	w := &Writer{
		config:        config,
		file:          file,
		writer:        bufio.NewWriterSize(file, bufSize),
		rewriteBuffer: &initialBuffer,
		lastSync:      time.Now(),
		stopChan:      make(chan struct{}),
	}
	if config.SyncPolicy == SyncEverySecond {
		w.syncTicker = time.NewTicker(time.Second)
		go w.backgroundSync()
	}
	return w, nil
}

func (w *Writer) backgroundSync() {
	for {
		select {
		case <-w.syncTicker.C:
			w.mu.Lock()
			if !w.closed && w.file != nil {
				w.writer.Flush()
				w.file.Sync()
				w.lastSync = time.Now()
			}
			w.mu.Unlock()
		case <-w.stopChan:
			return
		}
	}
}

// Feed appends one command, matching the aofFeeder interface the
// engine propagates every write through.
func (w *Writer) Feed(argv []string) {
	w.feed(protocol.EncodeCommand(argv), argv)
}

// FeedRaw appends an already-encoded frame (the synthetic SELECT the
// engine emits on a database switch).
func (w *Writer) FeedRaw(wire []byte) {
	w.feed(wire, nil)
}

func (w *Writer) feed(wire []byte, argv []string) {
	if !w.config.Enabled || w.closed {
		return
	}
	w.mu.Lock()
	n, err := w.writer.Write(wire)
	if err == nil {
		w.totalWrites++
		w.totalBytes += int64(n)
		switch w.config.SyncPolicy {
		case SyncAlways:
			w.writer.Flush()
			w.file.Sync()
			w.lastSync = time.Now()
		}
	}
	w.mu.Unlock()

	if argv == nil {
		return
	}
	w.rewriteMu.Lock()
	if w.isRewriting {
		argsCopy := make([]string, len(argv))
		copy(argsCopy, argv)
		*w.rewriteBuffer = append(*w.rewriteBuffer, argsCopy)
	}
	w.rewriteMu.Unlock()
}

// Sync forces a flush and fsync, used on graceful shutdown.
func (w *Writer) Sync() error {
	if !w.config.Enabled || w.closed {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.writer.Flush(); err != nil {
		return err
	}
	w.lastSync = time.Now()
	return w.file.Sync()
}

func (w *Writer) Close() error {
	if !w.config.Enabled || w.closed {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	if w.syncTicker != nil {
		w.syncTicker.Stop()
		close(w.stopChan)
	}
	if err := w.writer.Flush(); err != nil {
		return err
	}
	if err := w.file.Sync(); err != nil {
		return err
	}
	return w.file.Close()
}

// Stats reports counters surfaced by INFO's persistence section.
type Stats struct {
	TotalWrites int64
	TotalBytes  int64
	LastSync    time.Time
	Enabled     bool
}

func (w *Writer) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Stats{TotalWrites: w.totalWrites, TotalBytes: w.totalBytes, LastSync: w.lastSync, Enabled: w.config.Enabled}
}

// Rewrite compacts the log to snapshotCmds (a SELECT before each
// non-empty database, then one write per live key plus one expiry
// command per key with a TTL, produced by the caller from a
// storage.Snapshot), using
// the same buffer-then-splice hybrid as the teacher: new commands fed
// in during the rewrite are buffered and appended after the snapshot
// so nothing written mid-rewrite is lost.
func (w *Writer) Rewrite(snapshotCmds [][]string) error {
	if !w.config.Enabled {
		return nil
	}
	newBuffer := make([][]string, 0, 1024)
	w.rewriteMu.Lock()
	w.isRewriting = true
	w.rewriteBuffer = &newBuffer
	w.rewriteMu.Unlock()

	tempPath := w.config.Filepath + ".rewrite.tmp"
	tempFile, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		w.abortRewrite()
		return fmt.Errorf("create rewrite temp file: %w", err)
	}
	tempWriter := bufio.NewWriterSize(tempFile, w.config.BufferSize)
	for _, argv := range snapshotCmds {
		if _, err := tempWriter.Write(protocol.EncodeCommand(argv)); err != nil {
			tempFile.Close()
			os.Remove(tempPath)
			w.abortRewrite()
			return fmt.Errorf("write rewrite snapshot: %w", err)
		}
	}

	w.rewriteMu.Lock()
	buffered := *w.rewriteBuffer
	finalBuffer := make([][]string, 0, 1024)
	w.rewriteBuffer = &finalBuffer
	w.rewriteMu.Unlock()

	for _, argv := range buffered {
		if _, err := tempWriter.Write(protocol.EncodeCommand(argv)); err != nil {
			tempFile.Close()
			os.Remove(tempPath)
			w.abortRewrite()
			return fmt.Errorf("write rewrite buffer: %w", err)
		}
	}
	if err := tempWriter.Flush(); err != nil {
		tempFile.Close()
		os.Remove(tempPath)
		w.abortRewrite()
		return err
	}
	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		os.Remove(tempPath)
		w.abortRewrite()
		return err
	}
	tempFile.Close()

	w.mu.Lock()
	w.rewriteMu.Lock()
	w.isRewriting = false
	if w.writer != nil {
		w.writer.Flush()
	}
	if w.file != nil {
		w.file.Close()
	}
	if err := os.Rename(tempPath, w.config.Filepath); err != nil {
		w.rewriteMu.Unlock()
		w.mu.Unlock()
		return fmt.Errorf("replace aof file: %w", err)
	}
	file, err := os.OpenFile(w.config.Filepath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		w.rewriteMu.Unlock()
		w.mu.Unlock()
		return fmt.Errorf("reopen aof file: %w", err)
	}
	w.file = file
	w.writer = bufio.NewWriterSize(file, w.config.BufferSize)
	w.totalBytes = 0
	w.rewriteMu.Unlock()
	w.mu.Unlock()
	return nil
}

func (w *Writer) abortRewrite() {
	w.rewriteMu.Lock()
	w.isRewriting = false
	w.rewriteMu.Unlock()
}
