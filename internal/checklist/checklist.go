package checklist

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"policy-audit/internal/models"
)

// Built-in framework checklists. Order within a framework is the canonical
// presentation order.
var frameworks = map[string][]models.ChecklistItem{
	"GDPR": {
		{ID: "gdpr-1", Question: "Is there a lawful basis documented for each category of personal data processing?"},
		{ID: "gdpr-2", Question: "Are data subjects informed of their rights to access, rectify, and erase their personal data?"},
		{ID: "gdpr-3", Question: "Is a Data Protection Officer appointed and are their contact details published?"},
		{ID: "gdpr-4", Question: "Are Data Protection Impact Assessments conducted for high-risk processing activities?"},
		{ID: "gdpr-5", Question: "Are personal data breaches reported to the supervisory authority within 72 hours?"},
		{ID: "gdpr-6", Question: "Are data processing agreements in place with all third-party processors?"},
		{ID: "gdpr-7", Question: "Is personal data retained only as long as necessary for the stated purpose?"},
		{ID: "gdpr-8", Question: "Are appropriate technical and organizational security measures implemented and reviewed?"},
	},
	"DPDP": {
		{ID: "dpdp-1", Question: "Is consent obtained through clear affirmative action before processing digital personal data?"},
		{ID: "dpdp-2", Question: "Can data principals withdraw consent as easily as it was given?"},
		{ID: "dpdp-3", Question: "Is a grievance redressal mechanism available to data principals?"},
		{ID: "dpdp-4", Question: "Are notices to data principals provided in clear and plain language?"},
		{ID: "dpdp-5", Question: "Is personal data of children processed only with verifiable parental consent?"},
		{ID: "dpdp-6", Question: "Are reasonable security safeguards in place to prevent personal data breaches?"},
	},
	"HIPAA": {
		{ID: "hipaa-1", Question: "Is access to protected health information restricted to the minimum necessary?"},
		{ID: "hipaa-2", Question: "Are business associate agreements executed with all vendors handling PHI?"},
		{ID: "hipaa-3", Question: "Is PHI encrypted at rest and in transit?"},
		{ID: "hipaa-4", Question: "Is there a documented breach notification procedure covering the 60-day rule?"},
		{ID: "hipaa-5", Question: "Are workforce members trained on privacy and security policies at least annually?"},
		{ID: "hipaa-6", Question: "Are audit controls in place to record and examine activity in systems containing PHI?"},
	},
}

var policyTypeMap = map[string]string{
	"hr":    "GDPR",
	"posh":  "GDPR",
	"gdpr":  "GDPR",
	"dpdp":  "DPDP",
	"hipaa": "HIPAA",
}

// ForPolicyType maps an operator-supplied policy classification to a
// regulatory framework. Unknown types default to GDPR.
func ForPolicyType(policyType string) string {
	pt := strings.ToLower(strings.TrimSpace(policyType))
	if fw, ok := policyTypeMap[pt]; ok {
		return fw
	}
	if pt != "" {
		if _, ok := frameworks[strings.ToUpper(pt)]; ok {
			return strings.ToUpper(pt)
		}
	}
	return "GDPR"
}

// Frameworks lists the known framework names, sorted.
func Frameworks() []string {
	out := make([]string, 0, len(frameworks))
	for k := range frameworks {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Items returns the checklist for a framework in canonical order.
func Items(framework string) []models.ChecklistItem {
	return frameworks[strings.ToUpper(framework)]
}

// ClampTopK bounds retrieval breadth to a sane window.
func ClampTopK(k int) int {
	const lo, hi = 3, 30
	if k < lo {
		return lo
	}
	if k > hi {
		return hi
	}
	return k
}

var tokenRe = regexp.MustCompile(`[a-z0-9]+`)

// SelectRelevant picks the topN checklist questions most relevant to the
// document corpus, by the same keyword scoring the retriever's lexical
// reranker uses. Equal scores keep canonical checklist order.
func SelectRelevant(framework, corpusText string, topN int) []models.ChecklistItem {
	items := Items(framework)
	if topN <= 0 || len(items) == 0 {
		return nil
	}
	t := strings.ToLower(corpusText)

	type scored struct {
		item  models.ChecklistItem
		score float64
		pos   int
	}
	ranked := make([]scored, 0, len(items))
	for i, it := range items {
		q := strings.ToLower(it.Question)
		var s float64
		for _, term := range tokenRe.FindAllString(q, -1) {
			if strings.Contains(t, term) {
				s += 1.0
			}
		}
		if strings.Contains(t, q) {
			s += 2.0
		}
		ranked = append(ranked, scored{item: it, score: s, pos: i})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].pos < ranked[j].pos
	})
	if topN > len(ranked) {
		topN = len(ranked)
	}
	out := make([]models.ChecklistItem, topN)
	for i := 0; i < topN; i++ {
		out[i] = ranked[i].item
	}
	return out
}

// StableSessionID derives a reproducible session identifier for an audit of
// one source document by one organization.
func StableSessionID(orgID, sourceRef string) string {
	base := sourceRef
	if i := strings.LastIndexAny(sourceRef, `/\`); i >= 0 {
		base = sourceRef[i+1:]
	}
	return fmt.Sprintf("audit:%s:%s", orgID, base)
}
