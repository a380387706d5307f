package entity

import (
	"strings"

	"github.com/sells-group/lending-harvest/internal/model"
)

var (
	assistedLendingTerms = []string{"助贷", "撮合", "技术输出", "导流"}
	businessUsageTerms   = []string{"经营", "小微", "企业", "微业", "网商"}
)

// ClassifyProduct is a best-effort guess: joint lending unless an
// assisted-lending synonym appears.
func ClassifyProduct(text string) model.ProductType {
	if containsAny(text, assistedLendingTerms) {
		return model.ProductAssistedLending
	}
	return model.ProductJointLending
}

// ClassifyUsage is a best-effort guess: consumer unless a small-business
// or enterprise synonym appears.
func ClassifyUsage(text string) model.UsageType {
	if containsAny(text, businessUsageTerms) {
		return model.UsageBusiness
	}
	return model.UsageConsumer
}

func containsAny(text string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}
