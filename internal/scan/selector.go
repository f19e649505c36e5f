package scan

import (
	"strings"

	"github.com/JakeFAU/dubbadge/internal/annotate"
)

// DefaultCardSelector matches inline card bodies and hover popup banners.
const DefaultCardSelector = "[data-media-entry-card-body='true'], [data-media-entry-card-hover-popup-banner-container='true']"

// ResetSelector matches every card carrying a processing marker.
const ResetSelector = "[" + AttrChecked + "], [" + AttrRetries + "], [" + annotate.AttrHasBadge + "]"

// PendingSelector narrows every selector in the group to cards not yet checked.
func PendingSelector(group string) string {
	parts := splitGroup(group)
	for i, p := range parts {
		parts[i] = p + ":not([" + AttrChecked + "='true'])"
	}
	return strings.Join(parts, ", ")
}

// splitGroup splits a selector list on top-level commas, leaving commas inside
// quotes, brackets and parentheses alone.
func splitGroup(group string) []string {
	var (
		parts []string
		depth int
		quote rune
		start int
	)
	for i, r := range group {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == '[' || r == '(':
			depth++
		case r == ']' || r == ')':
			depth--
		case r == ',' && depth == 0:
			if p := strings.TrimSpace(group[start:i]); p != "" {
				parts = append(parts, p)
			}
			start = i + 1
		}
	}
	if p := strings.TrimSpace(group[start:]); p != "" {
		parts = append(parts, p)
	}
	return parts
}
