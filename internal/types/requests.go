package types

// RegisterScheduleRequest is the API payload for arming or updating a
// schedule trigger. Enabled defaults to true when omitted.
type RegisterScheduleRequest struct {
	CronExpression string `json:"cron_expression"`
	Timezone       string `json:"timezone,omitempty"`
	Enabled        *bool  `json:"enabled,omitempty"`
}

// IntegrationEvent is an inbound third-party event to be fanned out across
// matching integration triggers.
type IntegrationEvent struct {
	Provider string                 `json:"provider"`
	Event    string                 `json:"event"`
	Secret   string                 `json:"secret,omitempty"`
	Payload  map[string]interface{} `json:"payload,omitempty"`
}
