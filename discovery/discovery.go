// Package discovery implements the three-step principal -> calendar-home
// -> calendar-list walk (spec §4.E).
package discovery

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/kestrelsync/caldavsync/caldav"
	"github.com/kestrelsync/caldavsync/internal/davxml"
	"github.com/kestrelsync/caldavsync/quirks"
	"github.com/kestrelsync/caldavsync/transport"
)

// Result is the outcome of a successful discovery walk.
type Result struct {
	PrincipalURL    string
	CalendarHomeURL string
	Calendars       []caldav.Calendar
}

// Discover performs the three PROPFIND steps against serverURL. Relative
// hrefs returned by the server are resolved against serverURL's
// scheme+host. It fails with the first error encountered, surfaced
// verbatim (no retries beyond what the transport itself does).
func Discover(ctx context.Context, tc *transport.Client, serverURL string, q quirks.Provider) (*Result, error) {
	base, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("discovery: invalid server URL: %w", err)
	}

	ms, err := tc.Propfind(ctx, serverURL, davxml.PropfindPrincipal(), "0")
	if err != nil {
		return nil, fmt.Errorf("discovery: principal propfind: %w", err)
	}
	principalURL, err := firstProperty(ms, "current-user-principal")
	if err != nil {
		return nil, fmt.Errorf("discovery: %w", err)
	}
	principalURL = resolve(base, principalURL)

	ms, err = tc.Propfind(ctx, principalURL, davxml.PropfindCalendarHome(), "0")
	if err != nil {
		return nil, fmt.Errorf("discovery: calendar-home-set propfind: %w", err)
	}
	homeURL, err := firstProperty(ms, "calendar-home-set")
	if err != nil {
		return nil, fmt.Errorf("discovery: %w", err)
	}
	homeURL = resolve(base, homeURL)

	ms, err = tc.Propfind(ctx, homeURL, davxml.PropfindCalendars(), "1")
	if err != nil {
		return nil, fmt.Errorf("discovery: calendar-list propfind: %w", err)
	}

	var calendars []caldav.Calendar
	for _, resp := range ms.Responses {
		href := resolve(base, resp.Href)
		if href == homeURL {
			continue // the calendar home collection itself
		}
		if !resp.IsCalendarCollection() {
			continue
		}
		components := resp.SupportedComponents()
		if len(components) > 0 && !containsFold(components, "VEVENT") {
			continue // VTODO-only (or otherwise VEVENT-less) collection
		}
		name := resp.Properties["displayname"]
		if q != nil && q.SkipCalendar(name, href) {
			continue
		}
		calendars = append(calendars, caldav.Calendar{
			Href:                href,
			DisplayName:         name,
			Description:         resp.Properties["calendar-description"],
			Color:               caldav.NormalizeColor(resp.Properties["calendar-color"]),
			Ctag:                resp.Properties["getctag"],
			SyncToken:           resp.Properties["sync-token"],
			SupportedComponents: components,
		})
	}

	return &Result{
		PrincipalURL:    principalURL,
		CalendarHomeURL: homeURL,
		Calendars:       calendars,
	}, nil
}

func firstProperty(ms *davxml.MultiStatus, name string) (string, error) {
	for _, resp := range ms.Responses {
		if v, ok := resp.Properties[name]; ok && v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("property %q not found in response", name)
}

func containsFold(components []string, name string) bool {
	for _, c := range components {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}

func resolve(base *url.URL, ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if u.IsAbs() {
		return ref
	}
	return base.ResolveReference(u).String()
}
