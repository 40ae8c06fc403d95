// Package markup reads the rendered changelist table into row snapshots.
package markup

import (
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"treesort/internal/config"
	"treesort/internal/model"
)

// TableSelector identifies the changelist table.
const TableSelector = "#result_list"

// Page is everything the engine needs from one rendered changelist.
type Page struct {
	Rows []model.Row

	// CSRFToken is the page's hidden csrfmiddlewaretoken input, if any.
	CSRFToken string
}

// Parse reads rows from r. A page without the table (or without matching rows)
// returns an empty Page and no error. Rows repeating an earlier key are dropped.
// Relative links are resolved against base when set.
func Parse(r io.Reader, profile config.Profile, base *url.URL) (Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return Page{}, fmt.Errorf("parse changelist: %w", err)
	}

	page := Page{}
	if v, ok := doc.Find(`input[name="` + config.DefaultCSRFField + `"]`).First().Attr("value"); ok {
		page.CSRFToken = strings.TrimSpace(v)
	}

	table := doc.Find(TableSelector)
	if table.Length() != 1 {
		return page, nil
	}

	var rowErr error
	seen := map[string]bool{}
	table.Find("tbody tr.row1, tbody tr.row2").EachWithBreak(func(i int, tr *goquery.Selection) bool {
		row, ok, err := parseRow(tr, profile, base)
		if err != nil {
			rowErr = fmt.Errorf("row %d: %w", i, err)
			return false
		}
		// A key that shows up twice keeps its first row only.
		if ok && !seen[row.Key] {
			seen[row.Key] = true
			page.Rows = append(page.Rows, row)
		}
		return true
	})
	if rowErr != nil {
		return Page{}, rowErr
	}
	return page, nil
}

func parseRow(tr *goquery.Selection, profile config.Profile, base *url.URL) (model.Row, bool, error) {
	handle := tr.Find("." + profile.HandleClass).First()
	if handle.Length() == 0 {
		return model.Row{}, false, nil
	}
	key := strings.TrimSpace(handle.AttrOr("data-pk", ""))
	if key == "" {
		return model.Row{}, false, nil
	}

	row := model.Row{Key: key}
	if d := strings.TrimSpace(handle.AttrOr("data-depth", "")); d != "" {
		n, err := strconv.Atoi(d)
		if err != nil {
			return model.Row{}, false, fmt.Errorf("data-depth %q: %w", d, err)
		}
		row.Depth = n
	}
	if p := strings.TrimSpace(handle.AttrOr("data-parent", "")); p != "" {
		row.ParentKey = &p
	}

	if href, ok := tr.Find("a").First().Attr("href"); ok {
		row.Href = resolve(base, href)
	}
	if lu, ok := tr.Find("." + profile.IconClass).First().Attr("data-list-url"); ok {
		row.ListURL = resolve(base, lu)
	}

	title := tr.Find("." + profile.TitleClass).First()
	if title.Length() > 0 {
		row.Title = strings.Join(strings.Fields(title.Text()), " ")
	}
	if row.Title == "" {
		row.Title = strings.TrimSpace(handle.AttrOr("data-name", key))
	}

	switch {
	case tr.HasClass(string(model.StripeEven)):
		row.Stripe = model.StripeEven
	case tr.HasClass(string(model.StripeOdd)):
		row.Stripe = model.StripeOdd
	}
	return row, true, nil
}

func resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || base == nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}
