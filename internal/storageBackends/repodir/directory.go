package repodir

import (
	"fmt"

	"github.com/hashicorp/go-memdb"
)

const (
	repositoriesTable = "repositories"
	idIndex           = "id"
)

type entry[R any] struct {
	Key        string
	Repository R
}

// memdb refuses empty index values, so names are stored with a prefix.
func keyOf(name string) string {
	return "repository:" + name
}

// Directory maps repository names to per-repository state. Lookups run on
// lock-free memdb read transactions; creation is serialized by the memdb
// write transaction, which is held only for the lookup-or-insert.
type Directory[R any] struct {
	memDB         *memdb.MemDB
	newRepository func(name string) R
}

func New[R any](newRepository func(name string) R) (*Directory[R], error) {
	schema := &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			repositoriesTable: {
				Name: repositoriesTable,
				Indexes: map[string]*memdb.IndexSchema{
					idIndex: {
						Name:    idIndex,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "Key"},
					},
				},
			},
		},
	}

	memDB, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, fmt.Errorf("creating repository directory: %w", err)
	}

	return &Directory[R]{
		memDB:         memDB,
		newRepository: newRepository,
	}, nil
}

// Get never creates a repository.
func (d *Directory[R]) Get(name string) (R, bool) {
	txn := d.memDB.Txn(false)
	defer txn.Abort()

	return lookup[R](txn, name)
}

// GetOrCreate always succeeds and is idempotent.
func (d *Directory[R]) GetOrCreate(name string) R {
	repository, ok := d.Get(name)
	if ok {
		return repository
	}

	txn := d.memDB.Txn(true)
	defer txn.Abort()

	// another writer may have inserted it since the read above
	repository, ok = lookup[R](txn, name)
	if ok {
		return repository
	}

	repository = d.newRepository(name)
	err := txn.Insert(repositoriesTable, &entry[R]{
		Key:        keyOf(name),
		Repository: repository,
	})
	if err != nil {
		panic(fmt.Errorf("inserting repository %q: %w", name, err))
	}

	txn.Commit()
	return repository
}

// GetOrLoad is Get for backends whose repositories outlive the process:
// when the name is not indexed yet, exists is asked whether the backing
// store already has it and, if so, the repository is indexed.
func (d *Directory[R]) GetOrLoad(name string, exists func(name string) (bool, error)) (R, bool, error) {
	repository, ok := d.Get(name)
	if ok {
		return repository, true, nil
	}

	found, err := exists(name)
	if err != nil {
		var zero R
		return zero, false, fmt.Errorf("looking up repository %q: %w", name, err)
	}
	if !found {
		var zero R
		return zero, false, nil
	}

	return d.GetOrCreate(name), true, nil
}

func lookup[R any](txn *memdb.Txn, name string) (R, bool) {
	var zero R

	raw, err := txn.First(repositoriesTable, idIndex, keyOf(name))
	if err != nil {
		panic(fmt.Errorf("looking up repository %q: %w", name, err))
	}
	if raw == nil {
		return zero, false
	}

	return raw.(*entry[R]).Repository, true
}
