package main

import (
	"context"
	"fmt"
	"time"
)

// LessonCalendar receives a copy of every lesson booked on the provider site.
type LessonCalendar interface {
	GetCalendar(ctx context.Context, calendarID string) error
	AddEvent(ctx context.Context, calendarID string, event *Event) (string, error)
}

type Event struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	Status      string
}

func lessonEvent(key BookingKey, loc *time.Location, summary string, length time.Duration) *Event {
	start := key.Day.At(key.Minute, loc)
	return &Event{
		Summary:     summary,
		Description: fmt.Sprintf("Booked with instructor %d", key.InstructorID),
		Start:       start,
		End:         start.Add(length),
		Status:      "confirmed",
	}
}
