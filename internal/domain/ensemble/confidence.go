package ensemble

import "github.com/okian/riskgate/internal/domain/model"

// AggregateConfidence averages the reported confidences of the present
// experts, weighted by their active weights renormalised over the experts
// that reported one. It returns nil when no expert reported a confidence.
func AggregateConfidence(c *Collected, active map[model.ExpertID]float64) *float64 {
	var weighted, total float64
	for _, id := range c.Order {
		s := c.Scores[id]
		w, ok := active[id]
		if !ok || s.Confidence == nil {
			continue
		}
		weighted += w * *s.Confidence
		total += w
	}
	if total == 0 {
		return nil
	}
	v := weighted / total
	return &v
}
