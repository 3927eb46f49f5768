package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
)

const (
	loginPath       = "/data/api/site_login"
	schedulePath    = "/data/api/site_get_data_for_appointment"
	appointmentPath = "/data/api/site_appointment"

	defaultSessionCookie  = "PHPSESSID"
	defaultRequestTimeout = 30 * time.Second
)

// ScheduleResponse is the raw payload of the schedule endpoint, keyed by day.
type ScheduleResponse struct {
	It     int
	Sa     []int
	Time   map[UnixTime]SlotResponse
	Events map[UnixTime][][2]int
}

// SlotResponse holds the working hours of one day.
type SlotResponse struct {
	W [2]int `json:"w"`
}

type scheduleResponseJSON struct {
	It     int                     `json:"it"`
	Sa     []int                   `json:"sa"`
	Time   map[string]SlotResponse `json:"time"`
	Events map[string][][2]int     `json:"events"`
}

// Credential is the session obtained at login, attached to every later request.
type Credential struct {
	Cookie *http.Cookie
}

func (c *Credential) header() string {
	return c.Cookie.Name + "=" + c.Cookie.Value
}

type credentialTransport struct {
	base       http.RoundTripper
	credential *Credential
}

func (t *credentialTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("Cookie", t.credential.header())
	return t.base.RoundTrip(r)
}

// Authenticate logs in and returns the session cookie named cookieName.
func Authenticate(ctx context.Context, httpClient *http.Client, log *zap.Logger, baseURL, cookieName, phoneNumber, password string) (*Credential, error) {
	form := url.Values{}
	form.Set("p", password)
	form.Set("t", phoneNumber)

	resp, err := postForm(ctx, httpClient, strings.TrimRight(baseURL, "/")+loginPath, form)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthRequestFailed, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	log.Debug("Sign-in response",
		zap.Int("status", resp.StatusCode),
		zap.Strings("set_cookie", resp.Header.Values("Set-Cookie")),
	)
	if !isSuccess(resp.StatusCode) {
		return nil, &StatusError{Op: "login", StatusCode: resp.StatusCode, Err: ErrAuthRequestFailed}
	}

	for _, cookie := range resp.Cookies() {
		if cookie.Name == cookieName && cookie.Value != "" {
			return &Credential{Cookie: cookie}, nil
		}
	}
	return nil, ErrTokenNotFound
}

type BumpixClient struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

func NewBumpixClient(baseURL string, credential *Credential, timeout time.Duration, log *zap.Logger) *BumpixClient {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &BumpixClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &credentialTransport{
				base:       http.DefaultTransport,
				credential: credential,
			},
		},
		log: log,
	}
}

func (c *BumpixClient) FetchSchedule(ctx context.Context, instructorID uint32, from, to UnixTime) (*ScheduleResponse, error) {
	form := url.Values{}
	form.Set("generalId", strconv.FormatUint(uint64(instructorID), 10))
	form.Set("insideId", "1.1")
	form.Set("from", from.String())
	form.Set("to", to.String())
	form.Set("teid", "-1")

	resp, err := postForm(ctx, c.httpClient, c.baseURL+schedulePath, form)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchRequestFailed, err)
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return nil, &StatusError{Op: "get schedule", StatusCode: resp.StatusCode, Err: ErrFetchRequestFailed}
	}

	var raw scheduleResponseJSON
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodeResponse, err)
	}
	out, err := raw.toResponse()
	if err != nil {
		return nil, err
	}

	c.log.Debug("Get schedule response",
		zap.Uint32("instructor_id", instructorID),
		zap.Any("time", raw.Time),
		zap.Any("events", raw.Events),
	)
	return out, nil
}

func (r *scheduleResponseJSON) toResponse() (*ScheduleResponse, error) {
	out := &ScheduleResponse{
		It:     r.It,
		Sa:     r.Sa,
		Time:   make(map[UnixTime]SlotResponse, len(r.Time)),
		Events: make(map[UnixTime][][2]int, len(r.Events)),
	}
	for key, slot := range r.Time {
		day, err := ParseUnixTime(key)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDecodeResponse, err)
		}
		out.Time[day] = slot
	}
	for key, events := range r.Events {
		day, err := ParseUnixTime(key)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDecodeResponse, err)
		}
		out.Events[day] = events
	}
	return out, nil
}

// SubmitBooking does not confirm the appointment afterwards; a 2xx status is taken as success.
func (c *BumpixClient) SubmitBooking(ctx context.Context, instructorID uint32, day UnixTime, minute MinuteOfDay) error {
	form := url.Values{}
	form.Set("uid", strconv.FormatUint(uint64(instructorID), 10))
	form.Set("mid", "1.1")
	form.Set("s", "1.1,")
	form.Set("sc", "1,")
	form.Set("d", day.String())
	form.Set("t", strconv.Itoa(int(minute)))
	form.Set("te", "-1")
	form.Set("non", "")
	form.Set("nop", "")
	form.Set("oc", "")

	resp, err := postForm(ctx, c.httpClient, c.baseURL+appointmentPath, form)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBookingRequestFailed, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if !isSuccess(resp.StatusCode) {
		return &StatusError{Op: "post appointment", StatusCode: resp.StatusCode, Err: ErrBookingRequestFailed}
	}
	return nil
}

func postForm(ctx context.Context, httpClient *http.Client, endpoint string, form url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return httpClient.Do(req)
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
