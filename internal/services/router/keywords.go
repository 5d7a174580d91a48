package router

import "github.com/customsflow/agent-service/internal/domain/models"

// Default domain keyword sets. Matching is case-insensitive substring
// containment, which works for both Korean (no word boundaries) and English.
var (
	defaultLawKeywords = []string{
		"관세법", "법률", "법령", "조항", "조문", "시행령", "시행규칙",
		"판례", "벌칙", "처벌", "과태료", "위반",
		"law", "article", "statute", "legal", "penalty",
	}

	defaultTradeKeywords = []string{
		"수입", "수출", "규제", "허가", "검역", "금지", "요건",
		"원산지", "쿼터", "fta", "hs코드", "관세율",
		"import", "export", "regulation", "quota", "tariff", "quarantine",
	}

	defaultConsultationKeywords = []string{
		"신고", "절차", "방법", "서류", "작성", "통관", "문의",
		"상담", "환급", "기한", "수수료",
		"procedure", "declare", "document", "how to", "help",
	}
)

// defaultKeywords returns the built-in keyword set for the agent type.
func defaultKeywords(t models.AgentType) []string {
	switch t {
	case models.AgentLaw:
		return defaultLawKeywords
	case models.AgentTradeRegulation:
		return defaultTradeKeywords
	case models.AgentConsultation:
		return defaultConsultationKeywords
	}
	return nil
}

// conjunctionMarkers signal multi-clause questions that need more
// cross-domain reasoning.
var conjunctionMarkers = []string{
	"그리고", "또한", "및", "함께", "동시에",
	" and ", " also ", " plus ",
}
