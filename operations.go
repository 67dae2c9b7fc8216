package hashdb

import (
	"fmt"

	"github.com/gostonefire/hashdb/internal/conf"
	"github.com/gostonefire/hashdb/internal/storage"
)

// Get - Returns the value stored under key. The record cache is consulted first and filled on a miss.
//   - key is the key to look up, it must not be empty
//
// It returns:
//   - value is a copy of the stored value, nil if not found
//   - found is false when the key doesn't exist, which is not an error
//   - err is standard error of type *Error
func (D *DB) Get(key []byte) (value []byte, found bool, err error) {
	if err = D.rlock("get"); err != nil {
		return
	}
	defer D.mu.RUnlock()
	defer func() { D.setErr(err) }()

	if err = D.checkOpen("get"); err != nil {
		return
	}
	if err = checkKey("get", key); err != nil {
		return
	}

	if value, found = D.cache.Get(key); found {
		return
	}

	value, found, sErr := D.storage.Get(key)
	if sErr != nil {
		err = toError("get", sErr)
		return
	}
	if found {
		D.cache.Put(key, value)
	}

	return
}

// Put - Stores value under key, replacing any existing value
//   - key is the key, it must not be empty
//   - value is the value, it may be empty
//
// It returns:
//   - err is standard error of type *Error, ReadOnly if the DB was opened for reading
func (D *DB) Put(key, value []byte) (err error) {
	_, err = D.put("put", key, value, storage.PutOverwrite)
	return
}

// PutKeep - Stores value under key only if the key doesn't exist
//
// It returns:
//   - stored is false if the key already existed, which is not an error
//   - err is standard error of type *Error
func (D *DB) PutKeep(key, value []byte) (stored bool, err error) {
	return D.put("put keep", key, value, storage.PutKeep)
}

// PutCat - Appends value to the value stored under key, or stores it if the key doesn't exist
func (D *DB) PutCat(key, value []byte) (err error) {
	_, err = D.put("put cat", key, value, storage.PutConcat)
	return
}

// put - Common implementation of the put variants, the storage file is written before the record cache
func (D *DB) put(op string, key, value []byte, mode storage.PutMode) (stored bool, err error) {
	if err = D.lock(op); err != nil {
		return
	}
	defer D.mu.Unlock()
	defer func() { D.setErr(err) }()

	if err = D.checkOpen(op); err != nil {
		return
	}
	if err = checkKey(op, key); err != nil {
		return
	}
	if int64(len(value)) > conf.MaxValueLength {
		err = newError(op, InvalidArgument, fmt.Errorf("value length %d exceeds %d", len(value), int64(conf.MaxValueLength)))
		return
	}

	stored, sErr := D.storage.Put(key, value, mode)
	if sErr != nil {
		// The record may or may not have been changed, the cache must not answer for it
		D.cache.Remove(key)
		err = toError(op, sErr)
		return
	}

	switch {
	case !stored:
	case mode == storage.PutConcat:
		D.cache.Remove(key)
	default:
		D.cache.Put(key, value)
	}

	return
}

// Remove - Removes the record of key and hands its space over for reuse
//   - key is the key to remove, it must not be empty
//
// It returns:
//   - removed is false when the key doesn't exist, which is not an error
//   - err is standard error of type *Error
func (D *DB) Remove(key []byte) (removed bool, err error) {
	if err = D.lock("remove"); err != nil {
		return
	}
	defer D.mu.Unlock()
	defer func() { D.setErr(err) }()

	if err = D.checkOpen("remove"); err != nil {
		return
	}
	if err = checkKey("remove", key); err != nil {
		return
	}

	D.cache.Remove(key)

	removed, sErr := D.storage.Remove(key)
	err = toError("remove", sErr)

	return
}

// checkKey - Returns InvalidArgument for keys that can't be stored
func checkKey(op string, key []byte) error {
	if len(key) == 0 {
		return newError(op, InvalidArgument, fmt.Errorf("empty key"))
	}
	if int64(len(key)) > conf.MaxKeyLength {
		return newError(op, InvalidArgument, fmt.Errorf("key length %d exceeds %d", len(key), int64(conf.MaxKeyLength)))
	}
	return nil
}
