package native

import "context"

// pageFunc fetches the page after the iterator's cursor and reports whether
// more pages follow.
type pageFunc[T any] func(ctx context.Context) (items []T, more bool, err error)

// iterator walks a paginated listing one item at a time. Before the first
// next it is positioned before the first item; once next returns false it
// stays exhausted.
type iterator[T any] struct {
	fetch   pageFunc[T]
	items   []T
	pos     int
	more    bool
	started bool
	err     error
}

func newIterator[T any](fetch pageFunc[T]) *iterator[T] {
	return &iterator[T]{fetch: fetch, pos: -1}
}

// failedIterator is returned when the listing could not start at all.
func failedIterator[T any](err error) *iterator[T] {
	return &iterator[T]{pos: -1, started: true, err: err}
}

func (it *iterator[T]) next(ctx context.Context) bool {
	if it.err != nil {
		return false
	}
	it.pos++
	for it.pos >= len(it.items) {
		if it.started && !it.more {
			it.items, it.pos = nil, 0
			return false
		}
		items, more, err := it.fetch(ctx)
		it.started = true
		if err != nil {
			it.err = err
			it.items = nil
			return false
		}
		it.items, it.pos, it.more = items, 0, more
	}
	return true
}

// item returns the current element, or nil when next has not returned true.
func (it *iterator[T]) item() *T {
	if it.pos < 0 || it.pos >= len(it.items) {
		return nil
	}
	return &it.items[it.pos]
}
