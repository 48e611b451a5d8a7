package features

import (
	"errors"

	"github.com/couchcryptid/disease-risk-service/internal/domain"
)

// Align selects one frame row per lead day. Lead day D targets today+D; when
// that date is not in the frame the chronologically last row is used, so a
// forecast horizon shorter than the request degrades instead of failing.
func Align(frame *domain.Frame, leadDays []int, today domain.Date) (domain.LeadDayFeatureMap, error) {
	if frame == nil || frame.Len() == 0 {
		return nil, domain.FeatureError("feature computation failed", errors.New("feature frame has no rows"))
	}
	last := frame.Len() - 1
	out := make(domain.LeadDayFeatureMap, len(leadDays))
	for _, d := range leadDays {
		i, ok := frame.RowIndex(today.AddDays(d))
		if !ok {
			i = last
		}
		out[d] = frame.Row(i)
	}
	return out, nil
}
