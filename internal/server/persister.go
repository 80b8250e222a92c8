package server

import (
	"github.com/alicekv/alicedb/internal/rdb"
	"github.com/alicekv/alicedb/internal/storage"
)

// filePersister implements engine's persister interface (C5) by
// writing the store's copy-on-write Snapshot to an RDB file. BGSave
// runs the same encode-and-rename path on its own goroutine over the
// already-copied Snapshot rather than an actual fork(2) (spec.md §9's
// substitution note): a structural deep copy plays the role a forked
// child's private page table would in the original design.
type filePersister struct {
	path     string
	snapshot func() *storage.Snapshot
}

func newFilePersister(path string, snapshot func() *storage.Snapshot) *filePersister {
	return &filePersister{path: path, snapshot: snapshot}
}

func (p *filePersister) Save() error {
	return rdb.Save(p.path, p.snapshot())
}

func (p *filePersister) BGSave(done func(error)) {
	snap := p.snapshot()
	go func() {
		err := rdb.Save(p.path, snap)
		done(err)
	}()
}
