package satellite

import "github.com/eniz1806/VaultUplink/internal/metadata"

// RepairReport summarizes one repair pass over stored segments.
type RepairReport struct {
	Checked int `json:"checked"`
	Healed  int `json:"healed"`
	Lost    int `json:"lost"`
}

// Repair checks every erasure-coded segment of every committed object and
// rebuilds missing shards while enough of them survive. Segments past
// recovery are counted as lost.
func (s *Satellite) Repair() (RepairReport, error) {
	var report RepairReport
	err := s.store.ScanObjects(func(projectID string, meta metadata.ObjectMeta) bool {
		for _, seg := range meta.Segments {
			if seg.Inline != nil {
				continue
			}
			report.Checked++
			status, err := s.pieces.Status(projectID, seg.PieceKey)
			if err != nil {
				s.logger.Warn("segment status failed", "project", projectID, "piece", seg.PieceKey, "error", err)
				report.Lost++
				continue
			}
			if !status.Degraded() {
				continue
			}
			if !status.Recoverable() {
				report.Lost++
				continue
			}
			n, err := s.pieces.Heal(projectID, seg.PieceKey)
			if err != nil {
				report.Lost++
				continue
			}
			report.Healed += n
		}
		return true
	})
	if err != nil {
		return report, err
	}
	s.logger.Info("repair finished", "checked", report.Checked, "healed", report.Healed, "lost", report.Lost)
	return report, nil
}
