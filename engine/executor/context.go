package executor

import "time"

// buildContext assembles the interpolation base context: trigger, steps,
// env, memory, and the derived now-fields.
func buildContext(
	triggerData map[string]any,
	env map[string]any,
	memory map[string]any,
	steps map[string]any,
) map[string]any {
	now := time.Now().UTC()
	return map[string]any{
		"trigger":          triggerData,
		"steps":            steps,
		"env":              env,
		"memory":           memory,
		"currentDate":      now.Format("2006-01-02"),
		"currentTime":      now.Format("15:04:05"),
		"currentTimestamp": now.UnixMilli(),
		"currentISODate":   now.Format(time.RFC3339),
	}
}
