package main

import (
	"context"
	"fmt"
)

// CalendarFactory creates the lesson calendar configured in the [calendar] section.
type CalendarFactory struct {
	config CalendarConfig
	ledger *Ledger
}

func NewCalendarFactory(config CalendarConfig, ledger *Ledger) *CalendarFactory {
	return &CalendarFactory{
		config: config,
		ledger: ledger,
	}
}

// CreateLessonCalendar returns nil when no calendar is configured.
func (cf *CalendarFactory) CreateLessonCalendar(ctx context.Context) (LessonCalendar, error) {
	switch cf.config.Provider {
	case "":
		return nil, nil

	case "google":
		if cf.ledger == nil {
			return nil, fmt.Errorf("google calendar needs the ledger database for its token")
		}
		client, err := getClient(ctx, newOAuthConfig(cf.config), cf.ledger)
		if err != nil {
			return nil, err
		}
		return NewGoogleCalendarProvider(ctx, client)

	case "caldav":
		return NewCalDAVProvider(ctx, cf.config.ServerURL, cf.config.Username, cf.config.Password)

	default:
		return nil, fmt.Errorf("unsupported provider type: %s", cf.config.Provider)
	}
}

// ValidateCalendarAccess checks if the configured calendar is accessible
func (cf *CalendarFactory) ValidateCalendarAccess(ctx context.Context, provider LessonCalendar) error {
	return provider.GetCalendar(ctx, cf.config.CalendarID)
}
