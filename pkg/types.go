package pkg

import "time"

// Sender describes who authored a message.  Only the patient ("user") and the
// model ("assistant") ever write to a conversation.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Valid reports whether s is one of the two known senders.
func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderAssistant
}

// Message is one stored turn of a conversation.  Messages are immutable once
// written and are keyed by the (ConversationID, PatientID) pair.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"conversation_id"`
	PatientID      string    `json:"patient_id"`
	Text           string    `json:"message"`
	Sender         Sender    `json:"sender"`
	CreatedAt      time.Time `json:"timestamp"`
}

// Status is the outcome of a pipeline invocation.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// PipelineResult is returned by the chat pipeline for every call.  On error
// ResponseText holds a user-facing apology and Err the underlying cause.
type PipelineResult struct {
	ResponseText   string    `json:"response"`
	ConversationID string    `json:"conversation_id"`
	Status         Status    `json:"status"`
	CreatedAt      time.Time `json:"timestamp"`
	Err            error     `json:"-"`
}

// DefaultPatientID is used when a caller does not identify the patient.
const DefaultPatientID = "default_patient"

// DefaultLanguage is used when a caller does not pick a language.
const DefaultLanguage = "fr"

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
	PatientID      string `json:"patient_id,omitempty"`
	Language       string `json:"language,omitempty"`
}

// ChatResponse is returned by POST /chat on success.
type ChatResponse struct {
	Response       string `json:"response"`
	ConversationID string `json:"conversation_id"`
	PatientID      string `json:"patient_id"`
	Status         string `json:"status"`
	Timestamp      string `json:"timestamp"`
}

// HealthResponse is returned by GET /.
type HealthResponse struct {
	Status    string `json:"status"`
	Model     string `json:"model"`
	Server    string `json:"server"`
	Timestamp string `json:"timestamp"`
}

// HistoryEntry is one element of a conversation history listing.
type HistoryEntry struct {
	Message   string `json:"message"`
	Sender    string `json:"sender"`
	Timestamp string `json:"timestamp"`
}

// ConversationHistory is returned by GET /conversations/{id}.
type ConversationHistory struct {
	ConversationID string         `json:"conversation_id"`
	PatientID      string         `json:"patient_id"`
	History        []HistoryEntry `json:"history"`
}

// ResetResponse is returned by POST /reset-conversation.
type ResetResponse struct {
	ConversationID string `json:"conversation_id"`
	Status         string `json:"status"`
	Message        string `json:"message"`
	Timestamp      string `json:"timestamp"`
}

// StatusResponse is returned by GET /status.  The model backend and the
// database are probed synchronously when the endpoint is hit.
type StatusResponse struct {
	APIStatus      string `json:"api_status"`
	Model          string `json:"model"`
	ModelStatus    string `json:"model_status"`
	Server         string `json:"server"`
	Database       string `json:"database"`
	DatabaseStatus string `json:"database_status"`
	Timestamp      string `json:"timestamp"`
}

// TimeFormat is the layout used for every timestamp on the wire.
const TimeFormat = time.RFC3339
