package features

import "github.com/couchcryptid/disease-risk-service/internal/domain"

const sampleSize = 5

// Summarize counts frame columns by category and keeps the first few names
// of each category as samples.
func Summarize(frame *domain.Frame) domain.FeatureStatistics {
	stats := domain.FeatureStatistics{
		Categories: make(map[domain.FeatureCategory]int, len(domain.FeatureCategories)),
		Samples:    make(map[domain.FeatureCategory][]string, len(domain.FeatureCategories)),
	}
	for _, c := range domain.FeatureCategories {
		stats.Categories[c] = 0
		stats.Samples[c] = []string{}
	}
	if frame == nil {
		return stats
	}
	stats.TotalFeatures = frame.Width()
	for _, col := range frame.Columns() {
		stats.Categories[col.Category]++
		if len(stats.Samples[col.Category]) < sampleSize {
			stats.Samples[col.Category] = append(stats.Samples[col.Category], col.Name)
		}
	}
	return stats
}
