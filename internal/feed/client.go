// Package feed fetches activities from the LMS and maps them to work items.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/homework-notify/backend/internal/calendar"
)

// timeLayout is the LMS timestamp format. Values are naive local times in
// the deployment's display timezone.
const timeLayout = "2006-01-02 15:04:05"

// Activity is the raw LMS activity record, reduced to the fields this
// service consumes.
type Activity struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	StartDate string `json:"start_date"`
	DueDate   string `json:"due_date"`
}

type activityList struct {
	Activities []Activity `json:"activities"`
}

// Client reads the LMS activities endpoint for one class at a time.
type Client struct {
	endpoint   string
	studentID  string
	csrfToken  string
	cookie     string
	location   *time.Location
	httpClient *http.Client
}

// NewClient creates a feed client. Timestamps parse into loc.
func NewClient(endpoint, studentID, csrfToken, cookie string, loc *time.Location, timeout time.Duration) *Client {
	return &Client{
		endpoint:  endpoint,
		studentID: studentID,
		csrfToken: csrfToken,
		cookie:    cookie,
		location:  loc,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// FetchClass retrieves the activities of one class and maps them to work
// items. Records with an unparsable timestamp keep a nil boundary and are
// logged; the rest of the batch is unaffected.
func (c *Client) FetchClass(ctx context.Context, classID int) ([]calendar.WorkItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.URL.RawQuery = c.query(classID).Encode()

	req.Header.Set("x-csrf-token", c.csrfToken)
	req.Header.Set("x-requested-with", "XMLHttpRequest")
	req.Header.Set("accept", "application/json")
	req.Header.Set("cookie", c.cookie)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("activities API error (status %d): %s", resp.StatusCode, body)
	}

	var list activityList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	items := make([]calendar.WorkItem, 0, len(list.Activities))
	for _, a := range list.Activities {
		items = append(items, c.toWorkItem(classID, a))
	}
	return items, nil
}

// query builds the filter/select parameter set the activities endpoint
// expects.
func (c *Client) query(classID int) url.Values {
	id := strconv.Itoa(classID)

	q := url.Values{}
	q.Set("class_id", id)
	q.Set("student_id", c.studentID)
	q.Set("filter_groups[0][filters][0][key]", "class_id")
	q.Set("filter_groups[0][filters][0][value]", id)
	q["sort[]"] = []string{"sequence", "id"}
	q["select[]"] = []string{
		"activities:id,user_id,class_id,adv_starred,group_type,type,peer_assessment,is_allow_repeat,title,description,start_date,due_date,edit_group_mode,created_at",
		"user:id,firstname_en,lastname_en,firstname_th,lastname_th",
	}
	q["includes[]"] = []string{"user:sideload", "fileactivities:ids", "questions:ids"}
	return q
}

// toWorkItem maps a raw activity onto a work item.
func (c *Client) toWorkItem(classID int, a Activity) calendar.WorkItem {
	title := a.Title
	if title == "" {
		title = "Untitled"
	}
	return calendar.WorkItem{
		GroupID: classID,
		ItemID:  a.ID,
		Title:   title,
		Start:   c.parseTime(a.StartDate),
		End:     c.parseTime(a.DueDate),
	}
}

// parseTime parses a naive LMS timestamp into the display timezone. Empty
// and malformed values map to nil.
func (c *Client) parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.ParseInLocation(timeLayout, s, c.location)
	if err != nil {
		log.Printf("Skipping unparsable activity timestamp %q: %v", s, err)
		return nil
	}
	return &t
}
