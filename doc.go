// Package tcconsole exposes the read-side console of a transaction
// coordinator: paged queries over the global locks and global sessions the
// coordinator persists in a scan-capable key-value store.
//
// # Opening a console
//
// The store is selected by DSN. Every backend implements the same cursor
// contract (a start sentinel of "0", match patterns, weakly consistent
// batches), so queries behave the same regardless of where the data lives.
//
//	cfg := tcconsole.Config{
//	    Store:      "redis://localhost:6379/0",
//	    XIDAddress: "10.0.0.1:8091",
//	}
//	console, err := tcconsole.New(ctx, cfg)
//	if err != nil { log.Fatal(err) }
//	defer console.Close(context.Background())
//
//	page, err := console.Locks(ctx, api.GlobalLockParam{PageNum: 1, PageSize: 20})
//
// Supported DSNs:
//
//	mem://[?fixture=/path/to/seed.yaml]
//	redis://[:password@]host:port/db and rediss:// for TLS
//	pebble:///abs/path/to/db[?readonly=1]
//	s3://host[:port]/bucket[/prefix][?insecure=1&path-style=1]
//
// # Paging
//
// Page numbers are resolved by walking the keyspace from its origin and
// counting unique keys, so page N costs a traversal of at least N pages.
// Every enumerated result also carries NextCursor; passing it back as Cursor
// continues the traversal where the previous page stopped. The Total of an
// enumerated page always re-scans the whole matching keyspace.
//
// Filters the key-value layout cannot answer (table name, branch id,
// application id, transaction name, time windows) return an empty successful
// page rather than an error.
//
// # Errors
//
// Failures carry a code matched with errors.Is: ErrInvalidParameter for bad
// caller input, ErrStoreUnavailable for any failed store round-trip. Records
// that cannot be decoded are skipped and logged at debug level.
package tcconsole
