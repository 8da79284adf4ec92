package cluster

import (
	"regexp"
	"strings"

	"github.com/pressbrief/pressbrief/internal/model"
)

var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"in": {}, "on": {}, "at": {}, "to": {}, "for": {}, "of": {}, "and": {},
	"or": {}, "but": {}, "as": {}, "by": {}, "with": {}, "from": {},
	"that": {}, "this": {}, "it": {}, "be": {}, "have": {}, "has": {},
	"had": {}, "do": {}, "does": {}, "will": {}, "would": {}, "could": {},
	"should": {}, "may": {}, "might": {}, "can": {},
}

var (
	nonWord         = regexp.MustCompile(`\W+`)
	capitalizedWord = regexp.MustCompile(`^[A-Z][a-z]+$`)
)

// ExtractKeywords derives advisory keywords from a title: lowercase tokens
// longer than three characters with stopwords removed.
func ExtractKeywords(title string) []string {
	var keywords []string
	for _, word := range nonWord.Split(strings.ToLower(title), -1) {
		if len(word) <= 3 {
			continue
		}
		if _, stop := stopwords[word]; stop {
			continue
		}
		keywords = append(keywords, word)
	}
	return keywords
}

// ExtractEntities applies a capitalization heuristic to pick out likely place
// names. It is deliberately naive; stored entities are advisory only.
func ExtractEntities(text string) *model.Entities {
	var capitalized []string
	for _, word := range strings.Fields(text) {
		if capitalizedWord.MatchString(word) {
			capitalized = append(capitalized, word)
			if len(capitalized) == 5 {
				break
			}
		}
	}

	return &model.Entities{
		People:    []string{},
		Orgs:      []string{},
		Locations: capitalized,
	}
}
