package command

import "goa.design/goa-temporal/runtime/values"

type (
	// SuccessResponse carries the result of a request, correlated by ID.
	SuccessResponse struct {
		id            ID
		result        values.Values
		historyLength int
	}

	// FailureResponse reports that a request failed on the counterparty.
	FailureResponse struct {
		id            ID
		failure       error
		historyLength int
	}
)

// NewSuccessResponse builds a response for the request identified by id.
func NewSuccessResponse(id ID, result values.Values, historyLength int) *SuccessResponse {
	return &SuccessResponse{id: id, result: result, historyLength: historyLength}
}

// NewFailureResponse builds a failed response for the request identified by id.
func NewFailureResponse(id ID, failure error, historyLength int) *FailureResponse {
	return &FailureResponse{id: id, failure: failure, historyLength: historyLength}
}

// ID returns the ID of the request this response answers.
func (r *SuccessResponse) ID() ID { return r.id }

// Result returns the encoded result values.
func (r *SuccessResponse) Result() values.Values { return r.result }

// HistoryLength returns the host history length when the response was produced.
func (r *SuccessResponse) HistoryLength() int { return r.historyLength }

// ID returns the ID of the request this response answers.
func (r *FailureResponse) ID() ID { return r.id }

// Failure returns the decoded failure.
func (r *FailureResponse) Failure() error { return r.failure }

// HistoryLength returns the host history length when the response was produced.
func (r *FailureResponse) HistoryLength() int { return r.historyLength }
