package satellite

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// Session is an opened project: every bucket and object operation runs
// through one, checked against its API key.
type Session struct {
	sat       *Satellite
	projectID string
	key       *APIKey
	enc       *EncryptionAccess
	opts      SessionOptions
	closed    atomic.Bool
}

func (p *Session) ProjectID() string {
	return p.projectID
}

// PageSize is the number of items a listing fetches per page.
func (p *Session) PageSize() int {
	return p.sat.cfg.Satellite.ListPageSize
}

// Close ends the session. Streams opened from it fail afterwards.
func (p *Session) Close() error {
	p.closed.Store(true)
	return nil
}

// begin gates every request: cancellation, session state, request rate,
// and the API key still being valid.
func (p *Session) begin(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.closed.Load() || p.sat.closed.Load() {
		return ErrClosed
	}
	if !p.sat.limiter.Allow(p.projectID, p.key.ID()) {
		return fmt.Errorf("%w: project %s", ErrTooManyRequests, p.projectID)
	}
	if _, err := p.sat.authenticate(p.key); err != nil {
		if errors.Is(err, ErrInvalidAPIKey) {
			return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		return err
	}
	return nil
}

// authorize succeeds when the API key allows any of ops on bucket/key.
func (p *Session) authorize(bucket, key string, ops ...Op) error {
	return p.key.CheckAny(bucket, key, time.Now(), ops...)
}

// RevokeAccess revokes access's API key and every key derived from it. The
// key must belong to this session's project.
func (p *Session) RevokeAccess(ctx context.Context, access *Access) error {
	if err := p.begin(ctx); err != nil {
		return err
	}
	project, err := p.sat.authenticate(access.APIKey)
	if err != nil {
		return err
	}
	if project.ID != p.projectID {
		return fmt.Errorf("%w: access belongs to another project", ErrPermissionDenied)
	}
	return p.sat.RevokeAPIKey(access.APIKey)
}
