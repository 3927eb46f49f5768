package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"
)

type CalDAVProvider struct {
	client *caldav.Client
}

func NewCalDAVProvider(ctx context.Context, serverURL, username, password string) (*CalDAVProvider, error) {
	baseURL, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid CalDAV server URL: %w", err)
	}

	var httpClient webdav.HTTPClient = http.DefaultClient
	if username != "" && password != "" {
		httpClient = webdav.HTTPClientWithBasicAuth(httpClient, username, password)
	}

	c, err := caldav.NewClient(httpClient, baseURL.String())
	if err != nil {
		return nil, fmt.Errorf("failed to create CalDAV client: %w", err)
	}

	return &CalDAVProvider{client: c}, nil
}

func (c *CalDAVProvider) GetCalendar(ctx context.Context, calendarID string) error {
	calURL, err := url.Parse(calendarID)
	if err != nil {
		return fmt.Errorf("invalid calendar URL: %w", err)
	}

	// Calendars are listed from the parent collection.
	homeSetPath := calendarHomeSet(calURL.Path)

	calendars, err := c.client.FindCalendars(ctx, homeSetPath)
	if err != nil {
		return fmt.Errorf("failed to find calendars: %w", err)
	}

	for _, cal := range calendars {
		if strings.TrimRight(cal.Path, "/") == strings.TrimRight(calURL.Path, "/") {
			return nil
		}
	}

	return fmt.Errorf("calendar not found at path: %s", calURL.Path)
}

func (c *CalDAVProvider) AddEvent(ctx context.Context, calendarID string, event *Event) (string, error) {
	calURL, err := url.Parse(calendarID)
	if err != nil {
		return "", fmt.Errorf("invalid calendar URL: %w", err)
	}

	eventUID := "lessonsignup-" + uuid.NewString()
	cal := icalCalendar(eventUID, event)

	objectPath := strings.TrimRight(calURL.Path, "/") + "/" + eventUID + ".ics"
	if _, err := c.client.PutCalendarObject(ctx, objectPath, cal); err != nil {
		return "", fmt.Errorf("failed to create event: %w", err)
	}

	return eventUID, nil
}

func calendarHomeSet(calendarPath string) string {
	trimmed := strings.TrimRight(calendarPath, "/")
	if trimmed == "" {
		return "/"
	}
	return path.Dir(trimmed)
}

func icalCalendar(uid string, event *Event) *ical.Calendar {
	icalEvent := ical.NewEvent()
	icalEvent.Props.SetText(ical.PropUID, uid)
	icalEvent.Props.SetDateTime(ical.PropDateTimeStamp, event.Start.UTC())
	icalEvent.Props.SetText(ical.PropSummary, event.Summary)
	icalEvent.Props.SetText(ical.PropDescription, event.Description)
	icalEvent.Props.SetDateTime(ical.PropDateTimeStart, event.Start)
	icalEvent.Props.SetDateTime(ical.PropDateTimeEnd, event.End)
	status := "CONFIRMED"
	if event.Status != "" {
		status = strings.ToUpper(event.Status)
	}
	icalEvent.Props.SetText(ical.PropStatus, status)

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//lessonsignup//EN")
	cal.Children = append(cal.Children, icalEvent.Component)
	return cal
}
