package metrics

import "strings"

// MetricPrefix namespaces every metric this module emits.
const MetricPrefix = "tasquencer_"

// MetricName returns name normalized to lowercase with disallowed
// characters replaced by underscores and MetricPrefix applied if absent.
func MetricName(name string) string {
	clean := strings.TrimSpace(name)
	clean = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '.', '-', '/', ':':
			return '_'
		default:
			return r
		}
	}, clean)
	clean = strings.ToLower(clean)
	if clean == "" {
		return MetricPrefix
	}
	if strings.HasPrefix(clean, MetricPrefix) {
		return clean
	}
	return MetricPrefix + clean
}

// MetricNameWithSubsystem returns a name formatted as
// tasquencer_<subsystem>_<name>, both normalized to lowercase with spaces
// replaced by underscores.
func MetricNameWithSubsystem(subsystem, name string) string {
	subsystem = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(subsystem), " ", "_"))
	subsystem = strings.Trim(subsystem, "_")
	base := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "_"))
	base = strings.Trim(base, "_")
	if subsystem != "" {
		if base != "" {
			base = subsystem + "_" + base
		} else {
			base = subsystem
		}
	}
	return MetricName(base)
}
