package extract

import (
	"errors"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"postcal/internal/model"
)

// ogDescriptionSelector is what the browser strategy waits for.
const ogDescriptionSelector = `meta[property="og:description"]`

// ErrNoMetadata means the page had neither a caption nor an image, which
// is what a login wall looks like.
var ErrNoMetadata = errors.New("no Open Graph caption or image on page")

// OpenGraph holds the tags used to rebuild a post.
type OpenGraph struct {
	Title       string
	Description string
	Image       string
	SiteName    string
}

// ParseOpenGraph scans an HTML document for Open Graph meta tags.
func ParseOpenGraph(r io.Reader) (OpenGraph, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return OpenGraph{}, err
	}
	return OpenGraph{
		Title:       metaContent(doc, "og:title"),
		Description: metaContent(doc, "og:description"),
		Image:       metaContent(doc, "og:image"),
		SiteName:    metaContent(doc, "og:site_name"),
	}, nil
}

// metaContent reads property="..." first; some pages use name="..." instead.
func metaContent(doc *goquery.Document, prop string) string {
	for _, attr := range []string{"property", "name"} {
		sel := doc.Find(`meta[` + attr + `="` + prop + `"]`).First()
		if v := strings.TrimSpace(sel.AttrOr("content", "")); v != "" {
			return v
		}
	}
	return ""
}

// Post maps the tags onto a RawPost: description, else title, is the
// caption; the site name stands in for the author.
func (og OpenGraph) Post() (model.RawPost, error) {
	caption := og.Description
	if caption == "" {
		caption = og.Title
	}
	if caption == "" && og.Image == "" {
		return model.RawPost{}, ErrNoMetadata
	}
	return model.RawPost{
		Caption:      caption,
		Author:       og.SiteName,
		ThumbnailURL: og.Image,
	}, nil
}

func postFromHTML(r io.Reader) (model.RawPost, error) {
	og, err := ParseOpenGraph(r)
	if err != nil {
		return model.RawPost{}, err
	}
	return og.Post()
}
