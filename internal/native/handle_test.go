package native

import (
	"errors"
	"testing"
)

func TestArena_PutGetRelease(t *testing.T) {
	a := newArena()
	h := a.put(kindAccess, "grant", 0)
	if h == 0 {
		t.Fatal("expected a non-zero handle")
	}

	v, err := a.get(h, kindAccess)
	if err != nil || v.(string) != "grant" {
		t.Fatalf("get: %v %v", v, err)
	}
	if _, err := a.get(h, kindProject); !errors.Is(err, errInvalidHandle) {
		t.Errorf("get with wrong kind: expected errInvalidHandle, got %v", err)
	}

	if _, err := a.release(h, kindAccess); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := a.get(h, kindAccess); !errors.Is(err, errInvalidHandle) {
		t.Errorf("get after release: expected errInvalidHandle, got %v", err)
	}
	if _, err := a.release(h, kindAccess); !errors.Is(err, errInvalidHandle) {
		t.Errorf("double release: expected errInvalidHandle, got %v", err)
	}
	if a.count() != 0 {
		t.Errorf("expected no live handles, got %d", a.count())
	}
}

func TestArena_StaleHandleAfterReuse(t *testing.T) {
	a := newArena()
	old := a.put(kindUpload, 1, 0)
	a.release(old, kindUpload)

	fresh := a.put(kindUpload, 2, 0)
	if fresh.index() != old.index() {
		t.Fatalf("expected slot reuse, got %s and %s", old, fresh)
	}
	if fresh == old {
		t.Fatal("reused slot must get a new generation")
	}
	if _, err := a.get(old, kindUpload); !errors.Is(err, errInvalidHandle) {
		t.Errorf("stale handle: expected errInvalidHandle, got %v", err)
	}
	if v, _ := a.get(fresh, kindUpload); v.(int) != 2 {
		t.Errorf("fresh handle resolved to %v", v)
	}
}

func TestArena_InvalidHandles(t *testing.T) {
	a := newArena()
	a.put(kindAccess, "x", 0)
	for _, h := range []Handle{0, makeHandle(5, 1), makeHandle(0, 7)} {
		if _, err := a.get(h, kindAccess); !errors.Is(err, errInvalidHandle) {
			t.Errorf("handle %s: expected errInvalidHandle, got %v", h, err)
		}
	}
}

func TestArena_ReleaseOwned(t *testing.T) {
	a := newArena()
	owner := a.put(kindProject, "p", 0)
	other := a.put(kindProject, "q", 0)
	u1 := a.put(kindUpload, "u1", owner)
	a.put(kindDownload, "d1", owner)
	u2 := a.put(kindUpload, "u2", other)

	owned := a.releaseOwned(owner)
	if len(owned) != 2 {
		t.Fatalf("expected 2 owned objects, got %v", owned)
	}
	if _, err := a.get(u1, kindUpload); !errors.Is(err, errInvalidHandle) {
		t.Errorf("owned upload still live: %v", err)
	}
	if _, err := a.get(u2, kindUpload); err != nil {
		t.Errorf("upload of another owner released: %v", err)
	}
	if _, err := a.get(owner, kindProject); err != nil {
		t.Errorf("owner itself released: %v", err)
	}
	if a.count() != 3 {
		t.Errorf("expected 3 live handles, got %d", a.count())
	}
}

func TestLookup_WrongType(t *testing.T) {
	a := newArena()
	h := a.put(kindProject, "not a project", 0)
	if _, cerr := lookup[*project](a, h, kindProject); cerr == nil || cerr.Code != CodeInvalidHandle {
		t.Errorf("expected invalid handle, got %v", cerr)
	}
}
