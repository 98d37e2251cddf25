package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/kestrelsync/caldavsync/caldav"
	"github.com/kestrelsync/caldavsync/discovery"
	"github.com/kestrelsync/caldavsync/icalendar"
	"github.com/kestrelsync/caldavsync/quirks"
	"github.com/kestrelsync/caldavsync/transport"
)

type ProviderConfig struct {
	Name    string
	BaseURL string
	Auth    transport.Authentication
}

type TestResult struct {
	Provider  string
	Operation string
	Success   bool
	Error     error
	Duration  time.Duration
	Notes     string
}

var testResults []TestResult

func logResult(provider, operation string, success bool, err error, duration time.Duration, notes string) {
	testResults = append(testResults, TestResult{
		Provider:  provider,
		Operation: operation,
		Success:   success,
		Error:     err,
		Duration:  duration,
		Notes:     notes,
	})

	status := "OK"
	if !success {
		status = "FAIL"
	}
	log.Printf("[%s] %s %s (%.2fs): %s", status, provider, operation, duration.Seconds(), notes)
	if err != nil && !success {
		log.Printf("   error: %v", err)
	}
}

func createTestEvent(uid, summary string) []byte {
	return icalendar.Encode(summary, uid)
}

func testProvider(config ProviderConfig) {
	log.Printf("\n========== Testing %s ==========", config.Name)
	log.Printf("Base URL: %s", config.BaseURL)

	ctx := context.Background()
	q := quirks.ForServerURL(config.BaseURL)
	tc := transport.NewClient(nil, config.Auth, transport.DefaultOptions())

	start := time.Now()
	result, err := discovery.Discover(ctx, tc, config.BaseURL, q)
	duration := time.Since(start)
	if err != nil || len(result.Calendars) == 0 {
		logResult(config.Name, "Discovery", false, err, duration, "")
		return
	}
	calendarURL := result.Calendars[0].Href
	logResult(config.Name, "Discovery", true, nil, duration, fmt.Sprintf("found %d calendar(s), using %s", len(result.Calendars), calendarURL))

	client := caldav.NewClient(tc)
	testUID := fmt.Sprintf("caldavsync-manual-test-%d", time.Now().Unix())

	start = time.Now()
	icalData := createTestEvent(testUID, "[TEST] caldavsync create")
	ref, err := client.CreateEventRaw(ctx, calendarURL, testUID, icalData)
	duration = time.Since(start)
	success := err == nil && ref != nil
	notes := ""
	if ref != nil {
		notes = fmt.Sprintf("etag: %s", ref.ETag)
	}
	logResult(config.Name, "Create", success, err, duration, notes)
	if !success {
		return
	}

	start = time.Now()
	events, decodeErrs := client.FetchEventsByHref(ctx, calendarURL, []string{ref.Href})
	duration = time.Since(start)
	success = len(events) == 1 && len(decodeErrs) == 0
	logResult(config.Name, "Read", success, firstErr(decodeErrs), duration, "")
	if !success {
		return
	}
	currentETag := events[0].ETag

	start = time.Now()
	updated := createTestEvent(testUID, "[TEST] caldavsync update")
	newETag, err := client.UpdateEventRaw(ctx, ref.Href, updated, currentETag)
	duration = time.Since(start)
	logResult(config.Name, "Update", err == nil, err, duration, "")

	start = time.Now()
	_, err = client.UpdateEventRaw(ctx, ref.Href, updated, "wrong-etag-value")
	duration = time.Since(start)
	success = err != nil && strings.Contains(strings.ToLower(err.Error()), "conflict")
	logResult(config.Name, "Conflicts", success, err, duration, "")

	start = time.Now()
	_, fetchErrs := client.FetchEvents(ctx, calendarURL, time.Now(), time.Now().Add(48*time.Hour))
	duration = time.Since(start)
	logResult(config.Name, "Time-Range Query", len(fetchErrs) == 0, firstErr(fetchErrs), duration, "")

	start = time.Now()
	syncResult, err := client.SyncCollection(ctx, calendarURL, "")
	duration = time.Since(start)
	success = err == nil && syncResult != nil
	notes = ""
	if syncResult != nil {
		notes = fmt.Sprintf("%d added, %d deleted, token=%q", len(syncResult.Added)+len(syncResult.AddedHrefs), len(syncResult.DeletedHrefs), syncResult.NewSyncToken)
	}
	logResult(config.Name, "Sync", success, err, duration, notes)

	start = time.Now()
	err = client.DeleteEvent(ctx, ref.Href, newETag)
	duration = time.Since(start)
	logResult(config.Name, "Delete", err == nil, err, duration, "")
}

func firstErr(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errs[0]
}

func printSummary() {
	log.Printf("\n\n========== RESULTS ==========\n")

	providers := make(map[string][]TestResult)
	var order []string
	for _, result := range testResults {
		if _, ok := providers[result.Provider]; !ok {
			order = append(order, result.Provider)
		}
		providers[result.Provider] = append(providers[result.Provider], result)
	}

	for _, provider := range order {
		results := providers[provider]
		total := len(results)
		passed := 0
		for _, r := range results {
			if r.Success {
				passed++
			}
		}
		log.Printf("%s: %d/%d (%.0f%%)", provider, passed, total, float64(passed)/float64(total)*100)
	}
}

func main() {
	log.SetFlags(log.Ltime)
	log.Println("CalDAV Provider Manual Tests")
	log.Println("=============================")

	selected := ""
	if len(os.Args) > 1 {
		selected = strings.ToLower(os.Args[1])
	}

	var providers []ProviderConfig

	if selected == "" || selected == "icloud" {
		username := os.Getenv("ICLOUD_USERNAME")
		password := os.Getenv("ICLOUD_APP_PASSWORD")
		if username != "" && password != "" {
			providers = append(providers, ProviderConfig{
				Name:    "iCloud",
				BaseURL: "https://caldav.icloud.com",
				Auth:    transport.Authentication{Basic: &transport.BasicAuth{Username: username, Password: password}},
			})
		}
	}

	if selected == "" || selected == "google" {
		token := os.Getenv("GOOGLE_ACCESS_TOKEN")
		email := os.Getenv("GOOGLE_EMAIL")
		if token != "" && email != "" {
			providers = append(providers, ProviderConfig{
				Name:    "Google",
				BaseURL: fmt.Sprintf("https://apidata.googleusercontent.com/caldav/v2/%s/", email),
				Auth:    transport.Authentication{Bearer: &transport.BearerAuth{Token: token}},
			})
		}
	}

	if selected == "" || selected == "fastmail" {
		username := os.Getenv("FASTMAIL_USERNAME")
		password := os.Getenv("FASTMAIL_APP_PASSWORD")
		if username != "" && password != "" {
			providers = append(providers, ProviderConfig{
				Name:    "Fastmail",
				BaseURL: "https://caldav.fastmail.com",
				Auth:    transport.Authentication{Basic: &transport.BasicAuth{Username: username, Password: password}},
			})
		}
	}

	if len(providers) == 0 {
		log.Fatal("no providers configured; set e.g. ICLOUD_USERNAME/ICLOUD_APP_PASSWORD")
	}

	for _, provider := range providers {
		testProvider(provider)
	}

	printSummary()
}
