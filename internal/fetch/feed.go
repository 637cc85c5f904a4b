// Cartelera - Spanish Cultural Events Ingestion Pipeline
// Copyright 2026 Cartelera Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cartelera-project/cartelera

package fetch

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/apognu/gocal"
	"github.com/mmcdole/gofeed"

	"github.com/cartelera-project/cartelera/internal/httpx"
	"github.com/cartelera-project/cartelera/internal/logging"
	"github.com/cartelera-project/cartelera/internal/parse"
	"github.com/cartelera-project/cartelera/internal/sources"
)

// icalWindow bounds recurring-event expansion when parsing calendars.
const icalWindow = 365 * 24 * time.Hour

// FeedFetcher pulls RSS, Atom and iCal feeds from SILVER sources.
type FeedFetcher struct {
	http *httpx.Client
}

// NewFeed creates the SILVER adapter on the shared HTTP client.
func NewFeed(hc *httpx.Client) *FeedFetcher {
	return &FeedFetcher{http: hc}
}

// Fetch retrieves and parses the source's feed, one record per entry.
// Feeds are single documents; maxPages is ignored. When the source
// asks for detail pages, each entry's page is fetched rate-limited and
// its configured selectors merged over the feed fields.
func (f *FeedFetcher) Fetch(ctx context.Context, cfg *sources.SourceConfig, _ int) ([]RawRecord, error) {
	body, err := f.http.Get(ctx, cfg.FeedURL, nil)
	if err != nil {
		return nil, err
	}

	var out []RawRecord
	if cfg.FeedType == sources.FeedICal {
		out, err = icalRecords(body)
	} else {
		// gofeed detects RSS vs Atom from the document itself.
		out, err = feedRecords(string(body))
	}
	if err != nil {
		return nil, fmt.Errorf("source %s: parse feed: %w", cfg.Slug, err)
	}

	if cfg.FetchDetail {
		if err := f.mergeDetails(ctx, cfg, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func feedRecords(body string) ([]RawRecord, error) {
	feed, err := gofeed.NewParser().ParseString(body)
	if err != nil {
		return nil, err
	}
	out := make([]RawRecord, 0, len(feed.Items))
	for _, item := range feed.Items {
		fields := make(map[string]string)
		put(fields, sources.FieldExternalID, item.GUID)
		put(fields, sources.FieldTitle, item.Title)
		put(fields, sources.FieldExternalURL, item.Link)
		desc := item.Description
		if desc == "" {
			desc = item.Content
		}
		put(fields, sources.FieldDescription, desc)
		// Entries rarely carry the event date as structured data; the
		// publication date is the best available stand-in, taken
		// date-only so a publication timestamp is not mistaken for a
		// start time.
		if item.PublishedParsed != nil {
			fields[sources.FieldStartDate] = item.PublishedParsed.Format("2006-01-02")
		} else {
			put(fields, sources.FieldStartDate, item.Published)
		}
		put(fields, sources.FieldImageURL, feedImage(item))
		if len(item.Categories) > 0 {
			put(fields, sources.FieldTypeHint, item.Categories[0])
		}
		out = append(out, RawRecord{Fields: fields})
	}
	return out, nil
}

// feedImage picks the entry's representative image: feed image, then
// media:thumbnail, then media:content with medium=image, then the
// first image enclosure.
func feedImage(item *gofeed.Item) string {
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}
	if media, ok := item.Extensions["media"]; ok {
		for _, thumb := range media["thumbnail"] {
			if u := thumb.Attrs["url"]; u != "" {
				return u
			}
		}
		for _, content := range media["content"] {
			if content.Attrs["medium"] == "image" {
				if u := content.Attrs["url"]; u != "" {
					return u
				}
			}
		}
	}
	for _, enc := range item.Enclosures {
		if strings.HasPrefix(enc.Type, "image/") && enc.URL != "" {
			return enc.URL
		}
	}
	return ""
}

func icalRecords(body []byte) ([]RawRecord, error) {
	start := time.Now().AddDate(0, 0, -1)
	end := start.Add(icalWindow)
	c := gocal.NewParser(bytes.NewReader(body))
	c.Start, c.End = &start, &end
	if err := c.Parse(); err != nil {
		return nil, err
	}
	out := make([]RawRecord, 0, len(c.Events))
	for _, ev := range c.Events {
		fields := make(map[string]string)
		put(fields, sources.FieldExternalID, ev.Uid)
		put(fields, sources.FieldTitle, ev.Summary)
		put(fields, sources.FieldDescription, ev.Description)
		put(fields, sources.FieldVenueName, ev.Location)
		put(fields, sources.FieldExternalURL, ev.URL)
		if ev.Start != nil {
			fields[sources.FieldStartDate] = ev.Start.Format(time.RFC3339)
		}
		if ev.End != nil {
			fields[sources.FieldEndDate] = ev.End.Format(time.RFC3339)
		}
		if ev.Geo != nil {
			fields[sources.FieldLatitude] = strconv.FormatFloat(ev.Geo.Lat, 'f', -1, 64)
			fields[sources.FieldLongitude] = strconv.FormatFloat(ev.Geo.Long, 'f', -1, 64)
		}
		if len(ev.Categories) > 0 {
			put(fields, sources.FieldTypeHint, ev.Categories[0])
		}
		out = append(out, RawRecord{Fields: fields})
	}
	return out, nil
}

// mergeDetails fetches each entry's page and applies the source's
// detail selectors over the feed fields. A failed detail page keeps
// the feed fields; only cancellation aborts.
func (f *FeedFetcher) mergeDetails(ctx context.Context, cfg *sources.SourceConfig, recs []RawRecord) error {
	for i := range recs {
		if err := ctx.Err(); err != nil {
			return err
		}
		pageURL := recs[i].Fields[sources.FieldExternalURL]
		if pageURL == "" {
			continue
		}
		pageURL = parse.AbsoluteURL(cfg.FeedURL, pageURL)
		body, err := f.http.Get(ctx, pageURL, nil)
		if err != nil {
			logging.Warn().Err(err).
				Str("source", cfg.Slug).
				Str("url", pageURL).
				Msg("detail fetch failed, keeping feed fields")
			continue
		}
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			logging.Warn().Err(err).
				Str("source", cfg.Slug).
				Str("url", pageURL).
				Msg("detail parse failed, keeping feed fields")
			continue
		}
		applySelectors(doc.Selection, cfg.DetailSelectors, recs[i].Fields)
		recs[i].Fields[sources.FieldExternalURL] = pageURL
	}
	return nil
}
