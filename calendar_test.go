package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-ical"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

func TestLessonEvent(t *testing.T) {
	moscow := time.FixedZone("MSK", 3*60*60)
	key := BookingKey{InstructorID: 42, Day: testDay, Minute: MinuteOfDayFromClock(9, 30)}

	event := lessonEvent(key, moscow, "Driving lesson", 90*time.Minute)

	assert.Equal(t, "Driving lesson", event.Summary)
	assert.Equal(t, "Booked with instructor 42", event.Description)
	assert.Equal(t, "confirmed", event.Status)
	assert.Equal(t, "2023-11-15T09:30:00+03:00", event.Start.Format(time.RFC3339))
	assert.Equal(t, "2023-11-15T11:00:00+03:00", event.End.Format(time.RFC3339))
}

func TestICalCalendar(t *testing.T) {
	start := time.Date(2023, 11, 15, 6, 30, 0, 0, time.UTC)
	cal := icalCalendar("lessonsignup-1", &Event{
		Summary:     "Driving lesson",
		Description: "Booked with instructor 42",
		Start:       start,
		End:         start.Add(90 * time.Minute),
		Status:      "confirmed",
	})

	assert.Equal(t, "2.0", cal.Props.Get(ical.PropVersion).Value)
	require.Len(t, cal.Children, 1)
	event := cal.Children[0]
	assert.Equal(t, ical.CompEvent, event.Name)
	assert.Equal(t, "lessonsignup-1", event.Props.Get(ical.PropUID).Value)
	assert.Equal(t, "Driving lesson", event.Props.Get(ical.PropSummary).Value)
	assert.Equal(t, "CONFIRMED", event.Props.Get(ical.PropStatus).Value)

	gotStart, err := event.Props.Get(ical.PropDateTimeStart).DateTime(time.UTC)
	require.NoError(t, err)
	assert.True(t, start.Equal(gotStart))
	gotEnd, err := event.Props.Get(ical.PropDateTimeEnd).DateTime(time.UTC)
	require.NoError(t, err)
	assert.True(t, start.Add(90*time.Minute).Equal(gotEnd))
}

func TestCalendarHomeSet(t *testing.T) {
	assert.Equal(t, "/calendars/me", calendarHomeSet("/calendars/me/lessons/"))
	assert.Equal(t, "/calendars/me", calendarHomeSet("/calendars/me/lessons"))
	assert.Equal(t, "/", calendarHomeSet("/lessons"))
	assert.Equal(t, "/", calendarHomeSet(""))
}

func TestCalendarFactory(t *testing.T) {
	ctx := context.Background()

	lessonCalendar, err := NewCalendarFactory(CalendarConfig{}, nil).CreateLessonCalendar(ctx)
	require.NoError(t, err)
	assert.Nil(t, lessonCalendar)

	_, err = NewCalendarFactory(CalendarConfig{Provider: "outlook"}, nil).CreateLessonCalendar(ctx)
	assert.Error(t, err)

	_, err = NewCalendarFactory(CalendarConfig{Provider: "google", ClientID: "id", ClientSecret: "secret"}, nil).CreateLessonCalendar(ctx)
	assert.Error(t, err)

	_, err = NewCalendarFactory(CalendarConfig{Provider: "google", ClientID: "id", ClientSecret: "secret"}, openTestLedger(t)).CreateLessonCalendar(ctx)
	assert.ErrorContains(t, err, "--authorize-calendar")

	lessonCalendar, err = NewCalendarFactory(CalendarConfig{Provider: "caldav", ServerURL: "https://dav.example.test"}, nil).CreateLessonCalendar(ctx)
	require.NoError(t, err)
	assert.IsType(t, &CalDAVProvider{}, lessonCalendar)
}

func TestGoogleCalendarAddEvent(t *testing.T) {
	var got calendar.Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/calendars/primary/events", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": "evt-1"}`))
	}))
	defer srv.Close()

	provider, err := NewGoogleCalendarProvider(context.Background(), srv.Client(), option.WithEndpoint(srv.URL+"/"))
	require.NoError(t, err)

	moscow := time.FixedZone("MSK", 3*60*60)
	event := lessonEvent(BookingKey{InstructorID: 42, Day: testDay, Minute: 540}, moscow, "Driving lesson", time.Hour)
	id, err := provider.AddEvent(context.Background(), "primary", event)
	require.NoError(t, err)
	assert.Equal(t, "evt-1", id)

	assert.Equal(t, "Driving lesson", got.Summary)
	require.NotNil(t, got.Start)
	assert.Equal(t, "2023-11-15T09:00:00+03:00", got.Start.DateTime)
	assert.Equal(t, "2023-11-15T10:00:00+03:00", got.End.DateTime)
}

func TestGoogleCalendarGetCalendarNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error": {"code": 404, "message": "Not Found"}}`))
	}))
	defer srv.Close()

	provider, err := NewGoogleCalendarProvider(context.Background(), srv.Client(), option.WithEndpoint(srv.URL+"/"))
	require.NoError(t, err)

	assert.Error(t, provider.GetCalendar(context.Background(), "missing"))
}

func TestReadAuthRedirect(t *testing.T) {
	tests := []struct {
		name     string
		query    url.Values
		wantCode string
		wantErr  bool
	}{
		{name: "granted", query: url.Values{"state": {"s1"}, "code": {"abc"}}, wantCode: "abc"},
		{name: "denied", query: url.Values{"state": {"s1"}, "error": {"access_denied"}}, wantErr: true},
		{name: "wrong state", query: url.Values{"state": {"s2"}, "code": {"abc"}}, wantErr: true},
		{name: "no code", query: url.Values{"state": {"s1"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := readAuthRedirect(tt.query, "s1")
			if tt.wantErr {
				assert.Error(t, res.err)
				return
			}
			require.NoError(t, res.err)
			assert.Equal(t, tt.wantCode, res.code)
		})
	}
}

// browser follows the authorization link printed by getTokenFromWeb and lands on its redirect.
type browser struct {
	code string
}

func (b *browser) Write(p []byte) (int, error) {
	line := strings.TrimSpace(string(p))
	if !strings.HasPrefix(line, "http") {
		return len(p), nil
	}
	authURL, err := url.Parse(line)
	if err != nil {
		return 0, err
	}
	query := authURL.Query()
	redirect := query.Get("redirect_uri") + "?" + url.Values{
		"state": {query.Get("state")},
		"code":  {b.code},
	}.Encode()
	go func() {
		resp, err := http.Get(redirect)
		if err == nil {
			resp.Body.Close()
		}
	}()
	return len(p), nil
}

func TestGetTokenFromWeb(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "abc", r.PostForm.Get("code"))
		assert.True(t, strings.HasPrefix(r.PostForm.Get("redirect_uri"), "http://127.0.0.1:"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token": "access", "refresh_token": "refresh", "token_type": "Bearer", "expires_in": 3600}`))
	}))
	defer tokenServer.Close()

	config := &oauth2.Config{
		ClientID:     "id",
		ClientSecret: "secret",
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://accounts.example.test/auth",
			TokenURL: tokenServer.URL,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	token, err := getTokenFromWeb(ctx, config, &browser{code: "abc"})
	require.NoError(t, err)
	assert.Equal(t, "access", token.AccessToken)
	assert.Equal(t, "refresh", token.RefreshToken)
	assert.Empty(t, config.RedirectURL)
}

func TestLoopbackReceiverCancelled(t *testing.T) {
	receiver, err := newLoopbackReceiver()
	require.NoError(t, err)
	defer receiver.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = receiver.wait(ctx, "state")
	assert.ErrorIs(t, err, context.Canceled)
}
