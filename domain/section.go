package domain

// Sections is the closed enumeration of topical sections, fixed at startup.
// Rotation order follows this slice.
var Sections = []string{
	"world",
	"us",
	"politics",
	"business",
	"technology",
	"health",
	"sports",
	"entertainment",
	"finance",
}

// prioritySections get a priority boost in the enrichment queue.
var prioritySections = map[string]bool{
	"politics": true,
	"us":       true,
	"world":    true,
	"business": true,
}

// IsValidSection reports whether s belongs to the fixed section enumeration.
func IsValidSection(s string) bool {
	for _, known := range Sections {
		if known == s {
			return true
		}
	}
	return false
}

// IsPrioritySection reports whether jobs for this section jump the queue.
func IsPrioritySection(s string) bool {
	return prioritySections[s]
}
