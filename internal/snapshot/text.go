package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

const (
	maxTables         = 5
	maxTableRows      = 30
	maxTableHTML      = 200 * 1024
	defaultTextBudget = 8000
)

// collectPageText returns the page's visible text plus its leading tables
// rendered as markdown, cleaned and truncated to the caller's budget.
func (e *Engine) collectPageText(ctx context.Context, budget int) (string, error) {
	if budget <= 0 {
		budget = defaultTextBudget
	}

	res, err := e.sess.Eval(ctx, `document.body ? document.body.innerText : ''`, true)
	if err != nil {
		return "", fmt.Errorf("snapshot: page text: %w", err)
	}
	text := ""
	if res.Result != nil {
		text = cleanPageText(res.Result.Value.Str())
	}

	tables, err := e.collectTables(ctx)
	if err != nil {
		e.logger.Debug("snapshot: table collection failed", "error", err)
	} else if len(tables) > 0 {
		text = text + "\n\n" + strings.Join(tables, "\n\n")
	}

	return truncateText(text, budget), nil
}

// collectTables grabs the first few tables as HTML and converts each to a
// markdown table, rows capped so a 10k-row data grid cannot blow the budget
// on its own.
func (e *Engine) collectTables(ctx context.Context) ([]string, error) {
	expr := fmt.Sprintf(
		`JSON.stringify(Array.from(document.querySelectorAll('table')).slice(0, %d).map(t => t.outerHTML.slice(0, %d)))`,
		maxTables, maxTableHTML)
	res, err := e.sess.Eval(ctx, expr, true)
	if err != nil {
		return nil, err
	}
	if res.Result == nil {
		return nil, nil
	}
	var raw []string
	if err := json.Unmarshal([]byte(res.Result.Value.Str()), &raw); err != nil {
		return nil, fmt.Errorf("decode tables: %w", err)
	}

	var out []string
	for _, h := range raw {
		md, err := tableToMarkdown(h)
		if err != nil || strings.TrimSpace(md) == "" {
			continue
		}
		out = append(out, strings.TrimSpace(md))
	}
	return out, nil
}

var tablePolicy = func() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("table", "thead", "tbody", "tfoot", "tr", "th", "td",
		"caption", "p", "br", "strong", "em", "b", "i", "span", "a")
	p.AllowAttrs("colspan", "rowspan").OnElements("td", "th")
	return p
}()

var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(),
	),
)

func tableToMarkdown(tableHTML string) (string, error) {
	capped, err := capTableRows(tableHTML, maxTableRows)
	if err != nil {
		capped = tableHTML
	}
	sanitized := tablePolicy.Sanitize(capped)
	return mdConverter.ConvertString(sanitized)
}

// capTableRows drops <tr> elements beyond the limit, keeping header rows.
func capTableRows(tableHTML string, limit int) (string, error) {
	doc, err := html.Parse(strings.NewReader(tableHTML))
	if err != nil {
		return "", err
	}
	rows := 0
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		var next *html.Node
		for c := n.FirstChild; c != nil; c = next {
			next = c.NextSibling
			if c.Type == html.ElementNode && c.Data == "tr" {
				rows++
				if rows > limit {
					n.RemoveChild(c)
					continue
				}
			}
			walk(c)
		}
	}
	walk(doc)

	var b strings.Builder
	if err := html.Render(&b, doc); err != nil {
		return "", err
	}
	return b.String(), nil
}

var (
	reSpaceRuns = regexp.MustCompile(`[ \t\x{00A0}]{2,}`)
	reBlankRuns = regexp.MustCompile(`\n{3,}`)
	digitLine   = regexp.MustCompile(`^\d$`)
)

// cleanPageText applies the noise heuristics that make innerText usable:
// whitespace collapse, digit-roller removal (animated tickers render one
// digit per line), short-fragment merging ("3\n-\n2" is one value split by
// layout), and consecutive-duplicate removal (repeated chart axis labels).
func cleanPageText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(reSpaceRuns.ReplaceAllString(lines[i], " "))
	}
	lines = stripDigitRollers(lines)
	lines = mergeShortFragments(lines)
	lines = dedupConsecutive(lines)

	out := strings.Join(lines, "\n")
	out = reBlankRuns.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

// stripDigitRollers removes runs of 6+ consecutive single-digit lines.
func stripDigitRollers(lines []string) []string {
	const minRun = 6
	out := lines[:0:0]
	i := 0
	for i < len(lines) {
		if digitLine.MatchString(lines[i]) {
			j := i
			for j < len(lines) && digitLine.MatchString(lines[j]) {
				j++
			}
			if j-i >= minRun {
				i = j
				continue
			}
		}
		out = append(out, lines[i])
		i++
	}
	return out
}

// mergeShortFragments joins runs of 2-5 consecutive lines of at most two
// characters each into one line.
func mergeShortFragments(lines []string) []string {
	isShort := func(s string) bool { return s != "" && len([]rune(s)) <= 2 }
	out := lines[:0:0]
	i := 0
	for i < len(lines) {
		if isShort(lines[i]) {
			j := i
			for j < len(lines) && isShort(lines[j]) {
				j++
			}
			if run := j - i; run >= 2 && run <= 5 {
				out = append(out, strings.Join(lines[i:j], ""))
				i = j
				continue
			}
		}
		out = append(out, lines[i])
		i++
	}
	return out
}

func dedupConsecutive(lines []string) []string {
	out := lines[:0:0]
	prev := "\x00"
	for _, l := range lines {
		if l != "" && l == prev {
			continue
		}
		out = append(out, l)
		prev = l
	}
	return out
}

func truncateText(s string, budget int) string {
	if budget <= 0 || len(s) <= budget {
		return s
	}
	runes := []rune(s)
	if len(runes) <= budget {
		return s
	}
	return string(runes[:budget]) + "\n… [truncated]"
}
