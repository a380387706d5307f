package extract

import (
	"regexp"
	"sync"
)

// entityPatterns are the fact patterns anchored on one keyword.
type entityPatterns struct {
	balanceTight, balanceLoose *regexp.Regexp
	issuedTight, issuedLoose   *regexp.Regexp
}

// patternCache compiles keyword-anchored patterns once per keyword.
type patternCache struct {
	mu sync.Mutex
	m  map[string]*entityPatterns
}

func newPatternCache() *patternCache {
	return &patternCache{m: make(map[string]*entityPatterns)}
}

func (c *patternCache) get(keyword string) *entityPatterns {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.m[keyword]; ok {
		return p
	}
	kw := regexp.QuoteMeta(keyword)
	p := &entityPatterns{
		balanceTight: regexp.MustCompile(kw + gapPat + balanceTerm + linkPat + numberPat + unitPat),
		balanceLoose: regexp.MustCompile(balanceTerm + linkPat + numberPat + unitPat + `.*?` + kw),
		issuedTight:  regexp.MustCompile(kw + gapPat + issuedTerm + linkPat + numberPat + unitPat),
		issuedLoose:  regexp.MustCompile(issuedTerm + linkPat + numberPat + unitPat + `.*?` + kw),
	}
	c.m[keyword] = p
	return p
}
