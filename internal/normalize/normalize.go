package normalize

import (
	"sort"
	"strings"
)

// RawFields is the subset of an LLM extraction's raw output that normalize
// rules consume. Fields are optional; absent ones simply produce no match.
type RawFields struct {
	SectorsRaw            string
	InstrumentsRaw        string
	InstrumentLLM         string
	ProcedureLLM          string
	BeneficiaryTypesRaw   string
	RegionMentioned       string
	AdminTypeRaw          string
	AdminLevelRaw         string
	ScopeRaw              string
}

// Normalized is the deterministic, controlled-vocabulary output.
type Normalized struct {
	Sectors          []string
	Instrument       string
	Procedure        string
	BeneficiaryTypes []string
	NUTSCode         string
	AdminType        string
	AdminLevel       string
	Scope            string
}

// All applies every normalization rule to a raw field set.
func All(f RawFields) Normalized {
	return Normalized{
		Sectors:          Sectors(f.SectorsRaw),
		Instrument:       Instrument(f.InstrumentsRaw, f.InstrumentLLM),
		Procedure:        Procedure(f.ProcedureLLM, f.InstrumentsRaw),
		BeneficiaryTypes: BeneficiaryTypes(f.BeneficiaryTypesRaw),
		NUTSCode:         InferNUTSCode(f.RegionMentioned),
		AdminType:        lookupFirst(adminTypeMappings, f.AdminTypeRaw),
		AdminLevel:       lookupFirst(adminLevelMappings, f.AdminLevelRaw),
		Scope:            lookupFirst(scopeMappings, f.ScopeRaw),
	}
}

// Sectors infers every matching sector from free-text keywords, sorted for
// determinism (a set in the original, here a sorted slice).
func Sectors(raw string) []string {
	if raw == "" {
		return nil
	}
	lower := strings.ToLower(raw)
	set := map[string]bool{}
	for sector, keywords := range sectorKeywords {
		if containsAny(lower, keywords) {
			set[sector] = true
		}
	}
	return sortedKeys(set)
}

// Instrument normalizes the funding instrument: the LLM's own suggestion is
// tried first (against the mapping's patterns), falling back to matching
// the raw instrument text, and finally returning the LLM's suggestion as-is
// if nothing matched. Matching follows lookupFirst (longest pattern wins).
func Instrument(instrumentsRaw, instrumentLLM string) string {
	if standard := lookupFirst(instrumentMappings, instrumentLLM); standard != "" {
		return standard
	}
	if standard := lookupFirst(instrumentMappings, instrumentsRaw); standard != "" {
		return standard
	}
	return instrumentLLM
}

// Procedure normalizes the award procedure, preferring the LLM's own
// suggestion and falling back to the raw instrument text. Matching follows
// lookupFirst (longest pattern wins).
func Procedure(procedureLLM, instrumentsRaw string) string {
	if standard := lookupFirst(procedureMappings, procedureLLM); standard != "" {
		return standard
	}
	if standard := lookupFirst(procedureMappings, instrumentsRaw); standard != "" {
		return standard
	}
	return procedureLLM
}

// BeneficiaryTypes normalizes free-text beneficiary descriptions to the
// controlled vocabulary, returning every matching type sorted.
func BeneficiaryTypes(raw string) []string {
	if raw == "" {
		return nil
	}
	lower := strings.ToLower(raw)
	set := map[string]bool{}
	for standard, patterns := range beneficiaryTypeMappings {
		if containsAny(lower, patterns) {
			set[standard] = true
		}
	}
	return sortedKeys(set)
}

// InferNUTSCode finds the most specific NUTS code whose region name appears
// in the mentioned-region text. Codes are tried longest-first so a
// province-level (NUTS-3) match always wins over its containing
// autonomous-community (NUTS-2) match.
func InferNUTSCode(regionMentioned string) string {
	if regionMentioned == "" {
		return ""
	}
	lower := strings.ToLower(regionMentioned)

	codes := make([]string, 0, len(regionNUTSMappings))
	for code := range regionNUTSMappings {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return len(codes[i]) > len(codes[j]) })

	for _, code := range codes {
		for _, name := range regionNUTSMappings[code] {
			if strings.Contains(lower, strings.ToLower(name)) {
				return code
			}
		}
	}
	return ""
}

// lookupFirst returns the standard label whose pattern is the longest one
// found in raw (case-insensitive), so "subvención directa nominativa" maps to
// its own label rather than to the one keyed by "directa". Equal-length
// matches go to the alphabetically smaller label, so the result never
// depends on map iteration order. Returns "" when nothing matches.
func lookupFirst(table map[string][]string, raw string) string {
	if raw == "" {
		return ""
	}
	lower := strings.ToLower(raw)
	best, bestLen := "", 0
	for standard, patterns := range table {
		for _, p := range patterns {
			if strings.Contains(lower, p) && (len(p) > bestLen || (len(p) == bestLen && standard < best)) {
				best, bestLen = standard, len(p)
			}
		}
	}
	return best
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
