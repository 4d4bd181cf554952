package events

// ActivityStateChange is published as ActivityStateChanged.
type ActivityStateChange struct {
	ActivityID string `json:"activityId"`
	From       string `json:"from"`
	To         string `json:"to"`
	Actor      string `json:"actor"`
	ReviewID   string `json:"reviewId,omitempty"`
}

// ReviewDecision is published as ReviewDecided.
type ReviewDecision struct {
	ReviewID   string `json:"reviewId"`
	ActivityID string `json:"activityId"`
	ReviewType string `json:"reviewType"`
	Stage      string `json:"stage"`
	Decision   string `json:"decision"`
	State      string `json:"state"`
	Actor      string `json:"actor"`
}

// TicketBatch is published as TicketsIssued.
type TicketBatch struct {
	ActivityID string   `json:"activityId"`
	TicketIDs  []string `json:"ticketIds"`
	Points     int      `json:"points"`
	Actor      string   `json:"actor"`
}
