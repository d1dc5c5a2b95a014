package circuitbreaker

import (
	"time"
)

// itemScore represents one reorderable item's performance metrics, looked
// up via the item's resolved health key rather than the item value itself.
type itemScore struct {
	item        string
	successRate float64
	isHealthy   bool
}

// ReorderBySuccess reorders items (pipeline ids, endpoint URLs, anything
// with a resolvable health key) by success rate: healthy first, then by
// descending success rate within each health class. keyFor maps an item to
// the health-map key its health/success-rate is tracked under — the
// identity function for plain endpoint URLs, or a lookup through a
// provider table for pipeline ids that don't equal their own endpoint.
// Reordering itself is throttled to once per reorderInterval across the
// whole health map, so a hot router path doesn't re-sort on every request.
func (hm *HealthManager) ReorderBySuccess(items []string, keyFor func(item string) string, itemType string) bool {
	now := time.Now()
	reorderInterval := 5 * time.Minute

	hm.healthMutex.RLock()
	shouldReorder := false
	for _, health := range hm.healthMap {
		if now.Sub(health.LastReorderCheck) > reorderInterval {
			shouldReorder = true
			break
		}
	}
	hm.healthMutex.RUnlock()

	if !shouldReorder || len(items) <= 1 {
		return false
	}

	scores := make([]itemScore, len(items))
	for i, item := range items {
		key := keyFor(item)
		scores[i] = itemScore{
			item:        item,
			successRate: hm.CalculateSuccessRate(key),
			isHealthy:   hm.IsHealthy(key),
		}
	}

	// Sort by: 1) healthy status (healthy first), 2) success rate (highest first)
	for i := 0; i < len(scores); i++ {
		for j := i + 1; j < len(scores); j++ {
			if scores[i].isHealthy != scores[j].isHealthy {
				if scores[j].isHealthy && !scores[i].isHealthy {
					scores[i], scores[j] = scores[j], scores[i]
				}
				continue
			}
			if scores[j].successRate > scores[i].successRate {
				scores[i], scores[j] = scores[j], scores[i]
			}
		}
	}

	hasChanged := false
	for i, score := range scores {
		if items[i] != score.item {
			hasChanged = true
		}
		items[i] = score.item
	}

	hm.healthMutex.Lock()
	for _, health := range hm.healthMap {
		health.LastReorderCheck = now
	}
	hm.healthMutex.Unlock()

	if hasChanged {
		hm.logInfo("reordered candidates by success rate", map[string]interface{}{
			"itemType": itemType,
			"order":    items,
		})
	}

	return hasChanged
}
