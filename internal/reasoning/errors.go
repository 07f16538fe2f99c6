package reasoning

import (
	"errors"
	"fmt"
	"net/http"

	"charm.land/fantasy"

	"github.com/dotcommander/capmux/internal/errs"
)

// action describes how to respond to a failed model call.
type action struct {
	Retry bool
	Model string
	Err   errs.Error
}

func actionFor(err error, api, model, fallback string) action {
	var providerErr *fantasy.ProviderError
	if !errors.As(err, &providerErr) {
		return action{
			Err: errs.Error{Err: err, Reason: fmt.Sprintf("There was a problem with the %s API request.", api)},
		}
	}

	reason := fantasy.ErrorTitleForStatusCode(providerErr.StatusCode)
	switch {
	case providerErr.StatusCode == http.StatusNotFound && fallback != "" && fallback != model:
		if reason == "" {
			reason = fmt.Sprintf("%s API server error.", api)
		}
		return action{Retry: true, Model: fallback, Err: errs.Error{Err: err, Reason: reason}}
	case providerErr.StatusCode == http.StatusNotFound:
		return action{
			Err: errs.Error{Err: err, Reason: fmt.Sprintf("Missing model '%s' for API '%s'.", model, api)},
		}
	case providerErr.IsRetryable():
		if reason == "" {
			reason = "Retryable API error."
		}
		return action{Retry: true, Err: errs.Error{Err: err, Reason: reason}}
	}

	if reason == "" {
		reason = fmt.Sprintf("%s API request error.", api)
	}
	return action{Err: errs.Error{Err: err, Reason: reason}}
}
