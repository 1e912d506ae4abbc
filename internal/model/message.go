// Package model defines the core domain models used throughout the application.
package model

import "time"

// Message represents a single communication (email or text message) prior to analysis.
type Message struct {
	Timestamp  time.Time `json:"timestamp"`
	ID         string    `json:"id"`
	Subject    string    `json:"subject"`
	Sender     string    `json:"sender"`
	Body       string    `json:"body"`
	Recipients []string  `json:"recipients"`
}

// ExtractionMethod indicates which strategy produced a result.
type ExtractionMethod string

// Extraction method constants.
const (
	MethodPattern ExtractionMethod = "pattern"
	MethodLLM     ExtractionMethod = "llm"
	MethodHybrid  ExtractionMethod = "hybrid"
)

// PatternAnalysis is the structured output of the deterministic pattern matcher
// for one message. Confidence is on the matcher's native 0-100 scale.
type PatternAnalysis struct {
	Addresses           []string `json:"addresses"`
	Amounts             []string `json:"amounts"`
	Dates               []string `json:"dates"`
	Parties             []string `json:"parties"`
	Confidence          int      `json:"confidence"`
	IsRealEstateRelated bool     `json:"isRealEstateRelated"`
}

// LLMAnalysis is the structured output of the LLM analysis tool for one message.
// Confidence is normalized to 0-1.
type LLMAnalysis struct {
	PropertyAddress     string          `json:"propertyAddress,omitempty"`
	TransactionType     TransactionType `json:"transactionType,omitempty"`
	Stage               Stage           `json:"stage,omitempty"`
	Reasoning           string          `json:"reasoning,omitempty"`
	Topics              []string        `json:"topics,omitempty"`
	Confidence          float64         `json:"confidence"`
	IsRealEstateRelated bool            `json:"isRealEstateRelated"`
}

// AnalyzedMessage is a communication after per-message analysis. It is
// immutable once analysis completes; persistence is a caller concern.
type AnalyzedMessage struct {
	Pattern *PatternAnalysis `json:"patternAnalysis,omitempty"`
	LLM     *LLMAnalysis     `json:"llmAnalysis,omitempty"`
	Message
	Method              ExtractionMethod `json:"extractionMethod"`
	Confidence          float64          `json:"confidence"`
	IsRealEstateRelated bool             `json:"isRealEstateRelated"`
}
