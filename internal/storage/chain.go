package storage

import (
	"fmt"

	"github.com/gostonefire/hashdb/internal/model"
)

// chainRecords - Is used to iterate over the records of a bucket chain one by one.
type chainRecords struct {
	getRecordFunc func(int64) (model.Record, error)
	address       int64
}

// newChainRecords - Returns a pointer to a new chainRecords struct starting at the chain head
func newChainRecords(getRecordFunc func(int64) (model.Record, error), headAddress int64) *chainRecords {
	return &chainRecords{
		getRecordFunc: getRecordFunc,
		address:       headAddress,
	}
}

// hasNext - Returns true if there are more records to be fetched from a call to next.
func (C *chainRecords) hasNext() bool {
	return C.address != 0
}

// next - Returns the next record in the chain.
func (C *chainRecords) next() (record model.Record, err error) {
	if C.address == 0 {
		err = fmt.Errorf("chain exhausted")
		return
	}

	record, err = C.getRecordFunc(C.address)
	if err != nil {
		err = fmt.Errorf("error while retrieving record from chain: %w", err)
		return
	}

	C.address = record.Next

	return
}
