package geo

import (
	"strings"

	"golang.org/x/net/html"
)

// Attribute is one key/value row recovered from a description blob.
type Attribute struct {
	Key   string
	Value string
}

// Attributes is an ordered list of description rows.
type Attributes []Attribute

// Lookup returns the value for key, matched case-insensitively after
// trimming. The first matching row wins.
func (a Attributes) Lookup(key string) (string, bool) {
	key = strings.TrimSpace(key)
	for _, attr := range a {
		if strings.EqualFold(attr.Key, key) {
			return attr.Value, true
		}
	}
	return "", false
}

// ParseDescription extracts key/value rows from the HTML attribute table
// that data.gov.sg layers embed in their Description property. Cells are
// read in document order and each <th> takes the <td> that directly
// follows it, whether in the same row or a later one. A <th> followed by
// another <th> (such as the table caption) has no value and is skipped.
// Malformed markup yields whatever rows the tokenizer could recover.
func ParseDescription(description string) Attributes {
	if strings.TrimSpace(description) == "" {
		return nil
	}
	doc, err := html.Parse(strings.NewReader(description))
	if err != nil {
		return nil
	}

	var cells []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "th" || n.Data == "td") {
			cells = append(cells, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	var attrs Attributes
	for i := 0; i+1 < len(cells); i++ {
		if cells[i].Data != "th" || cells[i+1].Data != "td" {
			continue
		}
		attrs = append(attrs, Attribute{
			Key:   strings.TrimSpace(textContent(cells[i])),
			Value: strings.TrimSpace(textContent(cells[i+1])),
		})
		i++
	}
	return attrs
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
