package scraper

import (
	"bytes"
	"fmt"
	"log"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"reprojects/config"
	"reprojects/models"
)

// Rule pulls one value out of a listing container. An empty string means
// the rule did not match and the next rule in the cascade is tried.
type Rule func(card *goquery.Selection) string

// TextRule reads the text of the first element under card matching selector.
func TextRule(selector string) Rule {
	return func(card *goquery.Selection) string {
		return cleanText(card.Find(selector).First().Text())
	}
}

// AttrRule reads attr from the first element matching selector, either below
// card or card itself.
func AttrRule(selector, attr string) Rule {
	return func(card *goquery.Selection) string {
		sel := card.Find(selector).First()
		if sel.Length() == 0 && card.Is(selector) {
			sel = card
		}
		val, _ := sel.Attr(attr)
		return cleanText(val)
	}
}

// ParseRule turns a configured rule string into a Rule.
// "sel@attr" reads an attribute, anything else reads text.
func ParseRule(spec string) Rule {
	if i := strings.LastIndex(spec, "@"); i > 0 && i < len(spec)-1 {
		attr := spec[i+1:]
		if !strings.ContainsAny(attr, "]) ,") {
			return AttrRule(spec[:i], attr)
		}
	}
	return TextRule(spec)
}

func parseRules(specs []string) []Rule {
	rules := make([]Rule, 0, len(specs))
	for _, spec := range specs {
		rules = append(rules, ParseRule(spec))
	}
	return rules
}

// Cascade returns the first non-empty value produced by rules.
func Cascade(card *goquery.Selection, rules []Rule) string {
	for _, rule := range rules {
		if val := rule(card); val != "" {
			return val
		}
	}
	return ""
}

// Extractor turns a listings page into Listing records.
type Extractor struct {
	containers []string
	name       []Rule
	location   []Rule
	price      []Rule
	builder    []Rule
}

func NewExtractor(site *config.SiteConfig) *Extractor {
	e := &Extractor{
		name:     parseRules(site.Fields.Name),
		location: parseRules(site.Fields.Location),
		price:    parseRules(site.Fields.Price),
		builder:  parseRules(site.Fields.Builder),
	}
	for _, group := range site.Containers {
		if len(group) > 0 {
			e.containers = append(e.containers, strings.Join(group, ", "))
		}
	}
	return e
}

// Extract parses raw HTML. No match is a normal outcome and yields an empty slice.
func (e *Extractor) Extract(body []byte, city string) []models.Listing {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		log.Printf("Scrape: parse html for %s: %v", city, err)
		return nil
	}
	return e.ExtractDocument(doc, city)
}

// ExtractDocument applies the first container group that matches anything,
// then the field cascades to each container in document order. The ordinal
// in the id is the container's position, so skipped containers leave gaps.
func (e *Extractor) ExtractDocument(doc *goquery.Document, city string) []models.Listing {
	var cards *goquery.Selection
	for _, group := range e.containers {
		if found := doc.Find(group); found.Length() > 0 {
			cards = found
			break
		}
	}
	if cards == nil {
		return nil
	}

	var listings []models.Listing
	cards.Each(func(i int, card *goquery.Selection) {
		name := Cascade(card, e.name)
		location := Cascade(card, e.location)
		if name == "" || location == "" {
			return
		}

		listing := models.Listing{
			ID:          fmt.Sprintf("%s-%d", city, i),
			ProjectName: name,
			Location:    location,
			PriceRange:  Cascade(card, e.price),
			BuilderName: Cascade(card, e.builder),
		}
		if listing.PriceRange == "" {
			listing.PriceRange = models.DefaultPriceRange
		}
		if listing.BuilderName == "" {
			listing.BuilderName = models.DefaultBuilderName
		}
		listings = append(listings, listing)
	})

	return listings
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
