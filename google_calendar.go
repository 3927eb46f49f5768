package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

const googleAccountName = "lessonsignup"

type GoogleCalendarProvider struct {
	service *calendar.Service
}

func NewGoogleCalendarProvider(ctx context.Context, client *http.Client, opts ...option.ClientOption) (*GoogleCalendarProvider, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)
	service, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return &GoogleCalendarProvider{
		service: service,
	}, nil
}

func (g *GoogleCalendarProvider) GetCalendar(ctx context.Context, calendarID string) error {
	_, err := g.service.CalendarList.Get(calendarID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to get calendar: %w", err)
	}
	return nil
}

func (g *GoogleCalendarProvider) AddEvent(ctx context.Context, calendarID string, event *Event) (string, error) {
	googleEvent := &calendar.Event{
		Summary:     event.Summary,
		Description: event.Description,
		Status:      event.Status,
		Start: &calendar.EventDateTime{
			DateTime: event.Start.Format(time.RFC3339),
		},
		End: &calendar.EventDateTime{
			DateTime: event.End.Format(time.RFC3339),
		},
	}

	createdEvent, err := g.service.Events.Insert(calendarID, googleEvent).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to create event: %w", err)
	}

	return createdEvent.Id, nil
}

func newOAuthConfig(config CalendarConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{calendar.CalendarEventsScope, calendar.CalendarReadonlyScope},
	}
}

// getTokenFromWeb runs the authorization code flow, receiving the code on a loopback redirect.
func getTokenFromWeb(ctx context.Context, config *oauth2.Config, out io.Writer) (*oauth2.Token, error) {
	receiver, err := newLoopbackReceiver()
	if err != nil {
		return nil, err
	}
	defer receiver.Close()

	authConfig := *config
	authConfig.RedirectURL = receiver.redirectURL
	state := uuid.NewString()

	fmt.Fprintln(out, "Go to the following link in your browser to authorize calendar access:")
	fmt.Fprintln(out, authConfig.AuthCodeURL(state, oauth2.AccessTypeOffline))

	authCode, err := receiver.wait(ctx, state)
	if err != nil {
		return nil, err
	}

	tok, err := authConfig.Exchange(ctx, authCode)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve token from web: %w", err)
	}
	return tok, nil
}

type authResult struct {
	code string
	err  error
}

// loopbackReceiver accepts the single OAuth redirect on 127.0.0.1.
type loopbackReceiver struct {
	listener    net.Listener
	redirectURL string
}

func newLoopbackReceiver() (*loopbackReceiver, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("unable to listen for authorization redirect: %w", err)
	}
	return &loopbackReceiver{
		listener:    listener,
		redirectURL: "http://" + listener.Addr().String() + "/",
	}, nil
}

func (r *loopbackReceiver) Close() error {
	return r.listener.Close()
}

func (r *loopbackReceiver) wait(ctx context.Context, state string) (string, error) {
	results := make(chan authResult, 1)
	srv := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if req.URL.Path != "/" {
				http.NotFound(w, req)
				return
			}
			res := readAuthRedirect(req.URL.Query(), state)
			if res.err != nil {
				http.Error(w, res.err.Error(), http.StatusBadRequest)
			} else {
				fmt.Fprintln(w, "Calendar access granted, you can close this window.")
			}
			select {
			case results <- res:
			default:
			}
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go srv.Serve(r.listener)
	defer srv.Shutdown(context.Background())

	select {
	case res := <-results:
		return res.code, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func readAuthRedirect(query url.Values, state string) authResult {
	switch {
	case query.Get("error") != "":
		return authResult{err: fmt.Errorf("authorization denied: %s", query.Get("error"))}
	case query.Get("state") != state:
		return authResult{err: fmt.Errorf("authorization state mismatch")}
	case query.Get("code") == "":
		return authResult{err: fmt.Errorf("authorization code missing")}
	}
	return authResult{code: query.Get("code")}
}

// getClient returns an HTTP client using the stored token, saving it back when it gets refreshed.
func getClient(ctx context.Context, config *oauth2.Config, ledger *Ledger) (*http.Client, error) {
	token, err := ledger.LoadToken(googleAccountName)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, fmt.Errorf("no calendar token stored, run with --authorize-calendar first")
	}

	newToken, err := config.TokenSource(ctx, token).Token()
	if err != nil {
		return nil, fmt.Errorf("error refreshing calendar token: %w", err)
	}
	if newToken.AccessToken != token.AccessToken {
		if err := ledger.SaveToken(googleAccountName, newToken); err != nil {
			return nil, fmt.Errorf("error saving refreshed token: %w", err)
		}
	}
	return config.Client(ctx, newToken), nil
}
