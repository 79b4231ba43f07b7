package datadog

// Creator identifies who created a monitor.
type Creator struct {
	Email  string `json:"email,omitempty"`
	Handle string `json:"handle,omitempty"`
	Name   string `json:"name,omitempty"`
}

// Downtime is a mute window attached to a monitor. A Scope of ["*"] mutes
// every group the monitor covers.
type Downtime struct {
	ID     int64    `json:"id,omitempty"`
	Scope  []string `json:"scope,omitempty"`
	Groups []string `json:"groups,omitempty"`
	Start  int64    `json:"start,omitempty"`
	End    int64    `json:"end,omitempty"`
}

// Monitor is the vendor-side monitor entity. MatchingDowntimes is only
// populated when monitors are listed with downtime expansion.
type Monitor struct {
	ID                int64           `json:"id,omitempty"`
	Name              string          `json:"name,omitempty"`
	Type              string          `json:"type,omitempty"`
	Query             string          `json:"query,omitempty"`
	Message           string          `json:"message,omitempty"`
	Tags              []string        `json:"tags,omitempty"`
	Priority          int             `json:"priority,omitempty"`
	Creator           *Creator        `json:"creator,omitempty"`
	Options           *MonitorOptions `json:"options,omitempty"`
	MatchingDowntimes []Downtime      `json:"matching_downtimes,omitempty"`
}

// MonitorOptions carries the subset of monitor options we ever send.
type MonitorOptions struct {
	Thresholds map[string]float64 `json:"thresholds,omitempty"`
}

// Event is one record from the events API.
type Event struct {
	ID            int64    `json:"id,omitempty"`
	Title         string   `json:"title,omitempty"`
	Text          string   `json:"text,omitempty"`
	DateHappened  int64    `json:"date_happened,omitempty"`
	MonitorID     *int64   `json:"monitor_id,omitempty"`
	MonitorGroups []string `json:"monitor_groups,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	URL           string   `json:"url,omitempty"`
}

type eventsResponse struct {
	Events []Event `json:"events"`
}

// WebhookIntegration is a registered push-webhook.
type WebhookIntegration struct {
	Name          string `json:"name"`
	URL           string `json:"url"`
	Payload       string `json:"payload,omitempty"`
	CustomHeaders string `json:"custom_headers,omitempty"`
	EncodeAs      string `json:"encode_as,omitempty"`
}

// Org identifies the vendor organization that emitted a webhook event.
type Org struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// WebhookEvent is the push payload as rendered from WebhookPayloadTemplate.
// Field names must stay exactly as registered -- existing webhook
// integrations keep sending this shape. Every value arrives as a string
// because the template quotes each variable.
type WebhookEvent struct {
	Body            string `json:"body"`
	LastUpdated     string `json:"last_updated"`
	EventType       string `json:"event_type"`
	Title           string `json:"title"`
	Severity        string `json:"severity"`
	AlertType       string `json:"alert_type"`
	AlertQuery      string `json:"alert_query"`
	AlertTransition string `json:"alert_transition"`
	Date            string `json:"date"`
	Scopes          string `json:"scopes"`
	Org             Org    `json:"org"`
	URL             string `json:"url"`
	Tags            string `json:"tags"`
	ID              string `json:"id"`
	MonitorID       string `json:"monitor_id"`
}

// WebhookPayloadTemplate is registered with the vendor so pushed events
// arrive as a WebhookEvent. The $VARIABLES are expanded vendor-side.
const WebhookPayloadTemplate = `{
  "body": "$EVENT_MSG",
  "last_updated": "$LAST_UPDATED",
  "event_type": "$EVENT_TYPE",
  "title": "$EVENT_TITLE",
  "severity": "$ALERT_PRIORITY",
  "alert_type": "$ALERT_TYPE",
  "alert_query": "$ALERT_QUERY",
  "alert_transition": "$ALERT_TRANSITION",
  "date": "$DATE",
  "scopes": "$ALERT_SCOPE",
  "org": {"id": "$ORG_ID", "name": "$ORG_NAME"},
  "url": "$LINK",
  "tags": "$TAGS",
  "id": "$ID",
  "monitor_id": "$ALERT_ID"
}`

// LogsQuery is the request body for the log search endpoint.
type LogsQuery struct {
	Query string        `json:"query,omitempty"`
	Limit int           `json:"limit,omitempty"`
	Time  LogsQueryTime `json:"time"`
}

type LogsQueryTime struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

type logsResponse struct {
	Logs []map[string]any `json:"logs"`
}
