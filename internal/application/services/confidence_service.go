package services

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/flipscan/arbcheck/internal/domain/entities"
)

// stopWordRes strip fixed noise words from titles during normalization.
// "open box" is matched as a phrase before single-word removal.
var stopWordRes = []*regexp.Regexp{
	regexp.MustCompile(`\bopen box\b`),
	regexp.MustCompile(`\bpack\b`),
	regexp.MustCompile(`\bkit\b`),
	regexp.MustCompile(`\bset\b`),
	regexp.MustCompile(`\bnew\b`),
}

var (
	nonWordRe    = regexp.MustCompile(`[^\w\s]`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// knownBrands upgrade a title to high confidence on a case-insensitive
// substring match.
var knownBrands = []string{
	"milwaukee", "dewalt", "makita", "bosch", "ryobi", "craftsman",
	"ridgid", "kobalt", "klein", "fluke", "lutron", "husky", "metabo",
	"delta", "stanley", "black+decker", "black & decker", "snap-on",
	"knipex", "irwin", "channel lock", "channellock", "crescent",
}

// modelPatterns are shapes that look like manufacturer model numbers.
var modelPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b[A-Z]{2,}\d{2,}\b`),   // DCD771, XR2000
	regexp.MustCompile(`\b\d+[-/]\d+[-/]?\d*\b`),    // 2801-20, 3/8
	regexp.MustCompile(`(?i)\b\d{2,}V\b`),           // 20V, 18v
	regexp.MustCompile(`(?i)\b[A-Z]\d{2,}[A-Z]?\b`), // M18, R860
}

// genericPhrases suggest an unbranded commodity listing.
var genericPhrases = []string{
	"heavy duty", "premium", "kit", "set", "storage", "organizer",
	"outdoor lights", "generic", "universal", "multi-purpose",
}

var (
	quantityRe     = regexp.MustCompile(`(?i)\d+\s*-?\s*(pack|piece|count|pcs)`)
	anyDigitRe     = regexp.MustCompile(`\d`)
	strongWordStop = map[string]bool{
		"the": true, "a": true, "an": true, "and": true, "or": true,
		"but": true, "in": true, "on": true, "at": true, "to": true,
		"for": true, "of": true, "with": true, "by": true, "from": true,
	}
)

var (
	filterKeywords = []string{"filter", "merv", "mpr", "hvac", "furnace"}
	filterSizeRe   = regexp.MustCompile(`(\d+\.?\d*)\s*[xX×]\s*(\d+\.?\d*)\s*[xX×]\s*(\d+\.?\d*)`)
)

// scoreRule is one step of the scorer. It returns the level it assigns
// (empty when the rule does not fire) and the reasons it contributes.
type scoreRule struct {
	name  string
	apply func(title, lower string) (entities.ConfidenceLevel, []string)
}

// ConfidenceService turns raw product titles into canonical search
// queries and a confidence estimate for the resulting comps lookup.
type ConfidenceService struct {
	rules []scoreRule
}

// NewConfidenceService creates a confidence service with the default
// rule set.
func NewConfidenceService() *ConfidenceService {
	return &ConfidenceService{rules: defaultRules()}
}

func defaultRules() []scoreRule {
	return []scoreRule{
		{
			name: "brand",
			apply: func(title, lower string) (entities.ConfidenceLevel, []string) {
				for _, brand := range knownBrands {
					if strings.Contains(lower, brand) {
						return entities.ConfidenceHigh, []string{"brand:" + brand}
					}
				}
				return "", nil
			},
		},
		{
			name: "model_pattern",
			apply: func(title, lower string) (entities.ConfidenceLevel, []string) {
				for _, re := range modelPatterns {
					if re.MatchString(title) {
						return entities.ConfidenceHigh, []string{"model_pattern"}
					}
				}
				return "", nil
			},
		},
		{
			name: "descriptive_title",
			apply: func(title, lower string) (entities.ConfidenceLevel, []string) {
				if len(title) < 25 {
					return "", nil
				}
				strong := 0
				for _, word := range strings.Fields(lower) {
					if len(word) >= 4 && !strongWordStop[word] {
						strong++
					}
				}
				if strong >= 2 {
					return entities.ConfidenceMed, []string{fmt.Sprintf("descriptive_title:%d_strong_words", strong)}
				}
				return "", nil
			},
		},
		{
			name: "generic_listing",
			apply: func(title, lower string) (entities.ConfidenceLevel, []string) {
				var generic string
				for _, phrase := range genericPhrases {
					if strings.Contains(lower, phrase) {
						generic = phrase
						break
					}
				}
				hasQuantity := quantityRe.MatchString(lower)
				hasNonQuantityNumber := anyDigitRe.MatchString(quantityRe.ReplaceAllString(lower, ""))

				if generic != "" && (hasQuantity || !hasNonQuantityNumber) {
					reasons := []string{"generic_phrase:" + generic}
					if hasQuantity {
						reasons = append(reasons, "quantity_only_numerics")
					}
					return entities.ConfidenceLow, reasons
				}
				if !hasNonQuantityNumber && !hasQuantity {
					return entities.ConfidenceLow, []string{"no_identifiers"}
				}
				return "", nil
			},
		},
	}
}

// Normalize produces the canonical search query for a title: lowercase,
// fixed stop words removed on word boundaries, punctuation stripped,
// whitespace collapsed. Idempotent.
func (s *ConfidenceService) Normalize(title string) string {
	q := strings.ToLower(title)
	for _, re := range stopWordRes {
		q = re.ReplaceAllString(q, " ")
	}
	q = nonWordRe.ReplaceAllString(q, " ")
	q = whitespaceRe.ReplaceAllString(q, " ")
	return strings.TrimSpace(q)
}

// Score classifies how well a title identifies a specific resellable
// product. Rules run in priority order; the first level assigned wins,
// but later rules may still contribute reasons for observability.
func (s *ConfidenceService) Score(title string) entities.ConfidenceResult {
	lower := strings.ToLower(title)

	level := entities.ConfidenceLevel("")
	var reasons []string
	for _, rule := range s.rules {
		ruleLevel, ruleReasons := rule.apply(title, lower)
		if ruleLevel == "" {
			continue
		}
		reasons = append(reasons, ruleReasons...)
		if level == "" {
			level = ruleLevel
		}
		if level == entities.ConfidenceHigh {
			break
		}
	}
	if level == "" {
		level = entities.ConfidenceLow
		reasons = append(reasons, "default")
	}

	return entities.ConfidenceResult{
		Level:   level,
		Reasons: reasons,
		Query:   s.Normalize(title),
	}
}

// IsFilterLike reports whether a title looks like a size-bearing air
// filter listing, where comps of the wrong dimensions would corrupt the
// price estimate.
func (s *ConfidenceService) IsFilterLike(title string) bool {
	lower := strings.ToLower(title)
	for _, kw := range filterKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// ExtractFilterSize pulls an "AxBxC" dimension string out of a title,
// normalized to lowercase with separators collapsed. Returns false when
// no dimensions are present.
func (s *ConfidenceService) ExtractFilterSize(title string) (string, bool) {
	m := filterSizeRe.FindStringSubmatch(title)
	if m == nil {
		return "", false
	}
	return fmt.Sprintf("%sx%sx%s", m[1], m[2], m[3]), true
}
