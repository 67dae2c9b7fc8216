package hashdb

import (
	"fmt"
	"sync"

	"github.com/gostonefire/hashdb/internal/storage"
)

// Cursor - Sequential scan over all keys of an open DB, in bucket order and then chain order within a bucket.
// It is bound to the session it was created in and fails with InvalidState once that session is closed.
//
// Keys that are not removed during the scan are returned exactly once, also when they or their neighbours are
// overwritten or removed while the scan is in progress. Keys added during the scan may or may not be returned.
type Cursor struct {
	mu      sync.Mutex
	db      *DB
	session uint64
	pos     storage.Position
}

// NewCursor - Returns a new Cursor positioned before the first key, independent of the DB's own cursor
func (D *DB) NewCursor() (cursor *Cursor, err error) {
	if err = D.rlock("new cursor"); err != nil {
		return
	}
	defer D.mu.RUnlock()
	defer func() { D.setErr(err) }()

	if err = D.checkOpen("new cursor"); err != nil {
		return
	}
	cursor = &Cursor{db: D, session: D.session}

	return
}

// Next - Returns the next key of the scan
//
// It returns:
//   - key is the next key, nil when ok is false
//   - ok is false at the end of the scan, which is not an error
//   - err is InvalidState if the session of the cursor is closed, otherwise standard error of type *Error
func (C *Cursor) Next() (key []byte, ok bool, err error) {
	C.mu.Lock()
	defer C.mu.Unlock()

	db := C.db
	if err = db.rlock("iterate"); err != nil {
		return
	}
	defer db.mu.RUnlock()
	defer func() { db.setErr(err) }()

	if db.storage == nil || db.session != C.session {
		err = newError("iterate", InvalidState, fmt.Errorf("cursor belongs to a closed session"))
		return
	}

	key, ok, sErr := db.storage.Next(&C.pos)
	err = toError("iterate", sErr)

	return
}

// Reset - Moves the cursor back before the first key
func (C *Cursor) Reset() {
	C.mu.Lock()
	C.pos = storage.Position{}
	C.mu.Unlock()
}

// IterInit - Resets the DB's own cursor to before the first key
func (D *DB) IterInit() (err error) {
	cursor, err := D.NewCursor()
	if err != nil {
		return
	}

	D.iterMu.Lock()
	D.cursor = cursor
	D.iterMu.Unlock()

	return
}

// IterNext - Returns the next key of the DB's own cursor, pair it with Get to fetch the value.
// A scan starts from the first key after each Open even without a call to IterInit.
//
// It returns:
//   - key is the next key, nil when ok is false
//   - ok is false at the end of the scan, which is not an error
//   - err is standard error of type *Error
func (D *DB) IterNext() (key []byte, ok bool, err error) {
	D.iterMu.Lock()
	cursor := D.cursor
	D.iterMu.Unlock()

	if cursor == nil {
		err = newError("iterate", InvalidState, fmt.Errorf("not open"))
		D.setErr(err)
		return
	}

	return cursor.Next()
}

// ForEach - Calls fn with every key and value of the DB, stopping at the first error returned by fn.
// The DB is not locked while fn runs, so fn may read and write the DB with the guarantees of Cursor.
// A key removed between being scanned and being read is skipped.
//
// It returns:
//   - err is the error returned by fn as is, or standard error of type *Error
func (D *DB) ForEach(fn func(key, value []byte) error) (err error) {
	cursor, err := D.NewCursor()
	if err != nil {
		return
	}

	for {
		key, ok, nErr := cursor.Next()
		if nErr != nil || !ok {
			return nErr
		}

		value, found, gErr := D.Get(key)
		if gErr != nil {
			return gErr
		}
		if !found {
			continue
		}

		if err = fn(key, value); err != nil {
			return
		}
	}
}
