package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"github.com/eniz1806/VaultUplink/internal/metadata"
)

// Reclaimer frees whatever an expired object or an abandoned upload holds.
type Reclaimer interface {
	ReclaimObject(projectID string, meta metadata.ObjectMeta) error
	ReclaimUpload(upload metadata.MultipartUpload) error
}

type expiredObject struct {
	projectID string
	meta      metadata.ObjectMeta
}

// Worker periodically removes expired objects and stale multipart uploads.
type Worker struct {
	store      *metadata.Store
	reclaimer  Reclaimer
	interval   time.Duration
	staleAfter time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

func NewWorker(store *metadata.Store, reclaimer Reclaimer, intervalSecs, staleUploadHours int, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		store:      store,
		reclaimer:  reclaimer,
		interval:   time.Duration(intervalSecs) * time.Second,
		staleAfter: time.Duration(staleUploadHours) * time.Hour,
		logger:     logger,
		now:        time.Now,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Run once at startup
	w.Sweep()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Sweep()
		}
	}
}

// Sweep runs one pass and returns how many objects and uploads it reclaimed.
func (w *Worker) Sweep() (objects, uploads int) {
	now := w.now().UTC().Unix()

	// Collect first: reclaiming writes to the store, which must not happen
	// inside the scan's read transaction.
	var expired []expiredObject
	err := w.store.ScanObjects(func(projectID string, meta metadata.ObjectMeta) bool {
		if meta.Expires > 0 && meta.Expires <= now {
			expired = append(expired, expiredObject{projectID: projectID, meta: meta})
		}
		return true
	})
	if err != nil {
		w.logger.Error("lifecycle error scanning objects", "error", err)
	}
	for _, e := range expired {
		if err := w.reclaimer.ReclaimObject(e.projectID, e.meta); err != nil {
			w.logger.Warn("lifecycle error reclaiming object", "bucket", e.meta.Bucket, "key", e.meta.Key, "error", err)
			continue
		}
		objects++
	}

	var stale []metadata.MultipartUpload
	if w.staleAfter > 0 {
		cutoff := now - int64(w.staleAfter/time.Second)
		err := w.store.ScanMultipartUploads(func(u metadata.MultipartUpload) bool {
			if u.CreatedAt <= cutoff {
				stale = append(stale, u)
			}
			return true
		})
		if err != nil {
			w.logger.Error("lifecycle error scanning uploads", "error", err)
		}
	}
	for _, u := range stale {
		if err := w.reclaimer.ReclaimUpload(u); err != nil {
			w.logger.Warn("lifecycle error aborting upload", "upload", u.UploadID, "error", err)
			continue
		}
		uploads++
	}

	if objects > 0 || uploads > 0 {
		w.logger.Info("lifecycle reclaimed", "objects", objects, "uploads", uploads)
	}
	return objects, uploads
}
