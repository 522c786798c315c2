package qc

import "assaycore/pkg/domain"

// LeveyJenningsPoints maps each control observation to a chart point,
// preserving input order: one (run, value, z-score) triple per element.
func LeveyJenningsPoints(results []domain.ControlResult) []domain.LeveyJenningsPoint {
	points := make([]domain.LeveyJenningsPoint, len(results))
	for i, r := range results {
		points[i] = domain.LeveyJenningsPoint{Run: r.Run, Value: r.Value, ZScore: r.ZScore()}
	}
	return points
}
