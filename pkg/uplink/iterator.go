package uplink

import (
	"iter"

	"github.com/eniz1806/VaultUplink/internal/native"
)

// Iterator walks a paginated listing:
//
//	for it.Next() {
//		use(it.Item())
//	}
//	if err := it.Err(); err != nil { ... }
//
// All bundles the Err check into the sequence. The library-side iterator
// is released as soon as Next returns false, or on Close.
type Iterator[T any] struct {
	op   string
	next func() bool
	item func() T
	err  func() *native.Error
	free func()

	cur  T
	done bool
	fail error
}

type (
	BucketIterator = Iterator[Bucket]
	ObjectIterator = Iterator[Object]
	UploadIterator = Iterator[UploadInfo]
	PartIterator   = Iterator[Part]
)

// Next advances to the next item. It returns false once the listing is
// exhausted or failed; Err tells which.
func (it *Iterator[T]) Next() bool {
	if it.done {
		return false
	}
	if it.next() {
		it.cur = it.item()
		return true
	}
	var zero T
	it.cur = zero
	it.fail = fromNative(it.op, it.err())
	it.Close()
	return false
}

// Item returns the item Next moved to. It is a copy owned by the caller.
func (it *Iterator[T]) Item() T {
	return it.cur
}

// Err returns the error that ended the listing, or nil.
func (it *Iterator[T]) Err() error {
	return it.fail
}

// Close releases the iterator early. It is safe to call more than once.
func (it *Iterator[T]) Close() {
	if it.free != nil {
		it.free()
		it.free = nil
	}
	it.done = true
}

// All yields every item with a nil error. A failed listing ends with one
// final (zero, err) pair.
func (it *Iterator[T]) All() iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		defer it.Close()
		for it.Next() {
			if !yield(it.Item(), nil) {
				return
			}
		}
		if err := it.Err(); err != nil {
			var zero T
			yield(zero, err)
		}
	}
}

// Collect drains the iterator into a slice.
func (it *Iterator[T]) Collect() ([]T, error) {
	var items []T
	for item, err := range it.All() {
		if err != nil {
			return items, err
		}
		items = append(items, item)
	}
	return items, nil
}
