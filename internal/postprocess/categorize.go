package postprocess

import (
	"strings"
	"unicode"

	"onboardline/internal/domain"
)

const CategoryOther = "other"

// TaxonomyKey is the SourceMetadata key holding the taxonomy category of an
// item whose generator category lies outside the taxonomy.
const TaxonomyKey = "taxonomyCategory"

type category struct {
	name     string
	keywords []string
}

// taxonomy is checked in order; the first category with a hit wins.
// Keywords are substrings of the folded text. A leading or trailing space
// pins a short keyword to a word boundary, so " ui " skips "build".
var taxonomy = []category{
	{"design", []string{"design", " logo ", " logos ", "brand", "mockup", "wireframe", " ui ", " ux ", "user interface", "color", "colour", " font", "typography", "visual", "layout"}},
	{"development", []string{"develop", "build", " code", " api", "integrat", "deploy", "configur", "install", "database", "repositor", "pipeline", " dns ", "server", "provision", " import ", "importing"}},
	{"content", []string{"content", "copy", "copywrit", "write", "writing", "blog", " script", "article", "page", " text", "draft"}},
	{"marketing", []string{"marketing", " seo ", "campaign", "social", " ads ", "advertis", "analytics", "competitor", "audience", "newsletter", "email"}},
}

// Categories lists the taxonomy in check order, ending with "other".
func Categories() []string {
	out := make([]string, 0, len(taxonomy)+1)
	for _, c := range taxonomy {
		out = append(out, c.name)
	}
	return append(out, CategoryOther)
}

// Categorize fills in missing categories from title and description keywords.
// Categories set by a generator are normalized but kept; when such a category
// is not in the taxonomy, the classified one is recorded under TaxonomyKey.
func Categorize(items []domain.Item) []domain.Item {
	out := make([]domain.Item, len(items))
	for i, it := range items {
		out[i] = it.Clone()
		classified := Classify(it.Title + " " + it.Description)
		c := normalizeCategory(it.Category)
		if c == "" {
			out[i].Category = classified
			continue
		}
		out[i].Category = c
		if !inTaxonomy(c) {
			if out[i].SourceMetadata == nil {
				out[i].SourceMetadata = map[string]any{}
			}
			out[i].SourceMetadata[TaxonomyKey] = classified
		}
	}
	return out
}

// Classify returns the first taxonomy category with a keyword contained in
// the lower-cased text. Non-alphanumeric runes fold to single spaces.
func Classify(text string) string {
	folded := " " + strings.Join(strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}), " ") + " "
	for _, c := range taxonomy {
		for _, kw := range c.keywords {
			if strings.Contains(folded, kw) {
				return c.name
			}
		}
	}
	return CategoryOther
}

func inTaxonomy(name string) bool {
	if name == CategoryOther {
		return true
	}
	for _, c := range taxonomy {
		if c.name == name {
			return true
		}
	}
	return false
}
