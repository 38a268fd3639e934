package native

import (
	"context"

	"github.com/eniz1806/VaultUplink/internal/satellite"
)

func objectResult(o *satellite.Object, err error) ObjectResult {
	if err != nil {
		return ObjectResult{Error: newError(err)}
	}
	return ObjectResult{Object: objectToC(o)}
}

func (l *Library) StatObject(h Handle, bucket, key string) ObjectResult {
	p, cerr := lookup[*project](l.handles, h, kindProject)
	if cerr != nil {
		return ObjectResult{Error: cerr}
	}
	return objectResult(p.session.StatObject(l.ctx, bucket, key))
}

func (l *Library) DeleteObject(h Handle, bucket, key string) ObjectResult {
	p, cerr := lookup[*project](l.handles, h, kindProject)
	if cerr != nil {
		return ObjectResult{Error: cerr}
	}
	return objectResult(p.session.DeleteObject(l.ctx, bucket, key))
}

func (l *Library) FreeObjectResult(r ObjectResult) {
	FreeError(r.Error)
}

// ListObjects starts an object listing. Failures surface through
// ObjectIteratorErr once ObjectIteratorNext returns false.
func (l *Library) ListObjects(h Handle, bucket string, opts *ListObjectsOptions) Handle {
	p, cerr := lookup[*project](l.handles, h, kindProject)
	if cerr != nil {
		return l.handles.put(kindObjectIterator, failedIterator[satellite.Object](cerr), 0)
	}
	list := satellite.ListObjectsOptions{Limit: p.session.PageSize()}
	if opts != nil {
		list.Prefix = opts.Prefix
		list.Cursor = opts.Cursor
		list.Recursive = opts.Recursive
		list.System = opts.System
		list.Custom = opts.Custom
	}
	it := newIterator(func(ctx context.Context) ([]satellite.Object, bool, error) {
		objects, next, more, err := p.session.ListObjects(ctx, bucket, list)
		list.Cursor = next
		return objects, more, err
	})
	return l.handles.put(kindObjectIterator, it, p.handle)
}

func (l *Library) ObjectIteratorNext(h Handle) bool {
	it, cerr := lookup[*iterator[satellite.Object]](l.handles, h, kindObjectIterator)
	if cerr != nil {
		return false
	}
	return it.next(l.ctx)
}

func (l *Library) ObjectIteratorItem(h Handle) *Object {
	it, cerr := lookup[*iterator[satellite.Object]](l.handles, h, kindObjectIterator)
	if cerr != nil {
		return nil
	}
	o := it.item()
	if o == nil {
		return nil
	}
	return objectToC(o)
}

func (l *Library) ObjectIteratorErr(h Handle) *Error {
	it, cerr := lookup[*iterator[satellite.Object]](l.handles, h, kindObjectIterator)
	if cerr != nil {
		return cerr
	}
	return newError(it.err)
}

func (l *Library) FreeObjectIterator(h Handle) {
	l.handles.release(h, kindObjectIterator)
}
