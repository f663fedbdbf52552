package api

import (
	"time"

	"github.com/hackgods/surgical-authorization-tracker/internal/surgical"
)

type CreateCaseRequest = surgical.NewCaseInput

// CaseResponse is a stored case plus the derived overdue flag.
type CaseResponse struct {
	surgical.Case
	Overdue bool `json:"overdue"`
}

type CaseListResponse struct {
	Cases []CaseResponse `json:"cases"`
	Count int            `json:"count"`
}

type ReferenceItemRequest struct {
	Item string `json:"item"`
}

type NoticeListResponse struct {
	Notices []surgical.Notice `json:"notices"`
}

type SweepResponse struct {
	Alerted int       `json:"alerted"`
	RanAt   time.Time `json:"ran_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
