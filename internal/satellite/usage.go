package satellite

import (
	"fmt"

	"github.com/eniz1806/VaultUplink/internal/metadata"
)

// effectiveLimits fills unset project overrides from the satellite config.
// A zero limit after that means unlimited.
func (s *Satellite) effectiveLimits(l metadata.ProjectLimits) metadata.ProjectLimits {
	if l.StorageBytes == 0 {
		l.StorageBytes = s.cfg.Limits.StorageBytes
	}
	if l.Segments == 0 {
		l.Segments = s.cfg.Limits.Segments
	}
	if l.BandwidthBytes == 0 {
		l.BandwidthBytes = s.cfg.Limits.BandwidthBytes
	}
	return l
}

// Usage returns a project's counters and the limits in force for it.
func (s *Satellite) Usage(projectID string) (metadata.ProjectUsage, metadata.ProjectLimits, error) {
	project, err := s.store.GetProject(projectID)
	if err != nil {
		return metadata.ProjectUsage{}, metadata.ProjectLimits{}, err
	}
	return project.Usage, s.effectiveLimits(project.Limits), nil
}

func (s *Satellite) reserveStorage(projectID string, bytes, segments int64) error {
	return s.store.UpdateUsage(projectID, func(limits metadata.ProjectLimits, u *metadata.ProjectUsage) error {
		l := s.effectiveLimits(limits)
		if l.StorageBytes > 0 && u.StorageBytes+bytes > l.StorageBytes {
			return fmt.Errorf("%w: %d of %d bytes used", ErrStorageLimit, u.StorageBytes, l.StorageBytes)
		}
		if l.Segments > 0 && u.Segments+segments > l.Segments {
			return fmt.Errorf("%w: %d of %d segments used", ErrSegmentsLimit, u.Segments, l.Segments)
		}
		u.StorageBytes += bytes
		u.Segments += segments
		return nil
	})
}

func (s *Satellite) releaseStorage(projectID string, bytes, segments int64) {
	err := s.store.UpdateUsage(projectID, func(_ metadata.ProjectLimits, u *metadata.ProjectUsage) error {
		u.StorageBytes = max(u.StorageBytes-bytes, 0)
		u.Segments = max(u.Segments-segments, 0)
		return nil
	})
	if err != nil {
		s.logger.Warn("release storage usage failed", "project", projectID, "error", err)
	}
}

func (s *Satellite) reserveEgress(projectID string, bytes int64) error {
	return s.store.UpdateUsage(projectID, func(limits metadata.ProjectLimits, u *metadata.ProjectUsage) error {
		l := s.effectiveLimits(limits)
		if l.BandwidthBytes > 0 && u.EgressBytes+bytes > l.BandwidthBytes {
			return fmt.Errorf("%w: %d of %d bytes used", ErrBandwidthLimit, u.EgressBytes, l.BandwidthBytes)
		}
		u.EgressBytes += bytes
		return nil
	})
}
