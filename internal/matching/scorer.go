package matching

import "math"

// Score returns the required skills the volunteer covers, in the event's
// order, and the percentage of the requirement they cover (0..100).
// An event with no required skills scores 0 for everyone.
func Score(volunteerSkills, eventSkills []string) ([]string, int) {
	required := dedupe(eventSkills)
	if len(required) == 0 {
		return []string{}, 0
	}

	have := make(map[string]struct{}, len(volunteerSkills))
	for _, s := range volunteerSkills {
		have[s] = struct{}{}
	}

	matching := make([]string, 0, len(required))
	for _, s := range required {
		if _, ok := have[s]; ok {
			matching = append(matching, s)
		}
	}

	score := int(math.Round(100 * float64(len(matching)) / float64(len(required))))
	return matching, score
}

func dedupe(skills []string) []string {
	seen := make(map[string]struct{}, len(skills))
	out := make([]string, 0, len(skills))
	for _, s := range skills {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
