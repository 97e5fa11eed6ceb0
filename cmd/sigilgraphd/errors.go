package main

import (
	"errors"
	"net/http"

	"github.com/sigilrun/sigilgraph/pkg/api"
	"github.com/sigilrun/sigilgraph/pkg/sigilerr"
)

// writeAPIError renders err as an RFC 7807 Problem Detail, classifying it
// through pkg/sigilerr's sentinel kinds (spec.md §7) and falling back to
// a sanitized 500 for anything unclassified.
func writeAPIError(w http.ResponseWriter, r *http.Request, err error) {
	status, title := classify(err)
	if status == http.StatusInternalServerError {
		api.WriteInternal(w, err)
		return
	}
	api.WriteErrorR(w, r, status, title, err.Error())
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, sigilerr.ErrMalformedSpecification):
		return http.StatusBadRequest, "Malformed Specification"
	case errors.Is(err, sigilerr.ErrDisconnectedSpecification):
		return http.StatusBadRequest, "Disconnected Specification"
	case errors.Is(err, sigilerr.ErrUnknownFact):
		return http.StatusNotFound, "Unknown Fact"
	case errors.Is(err, sigilerr.ErrUnknownRole):
		return http.StatusBadRequest, "Unknown Role"
	case errors.Is(err, sigilerr.ErrUnknownType):
		return http.StatusBadRequest, "Unknown Type"
	case errors.Is(err, sigilerr.ErrAuthorizationDenied):
		return http.StatusForbidden, "Authorization Denied"
	case errors.Is(err, sigilerr.ErrDistributionDenied):
		return http.StatusForbidden, "Distribution Denied"
	case errors.Is(err, sigilerr.ErrTransport):
		return http.StatusBadGateway, "Transport Error"
	case errors.Is(err, sigilerr.ErrTimeout):
		return http.StatusGatewayTimeout, "Timeout"
	default:
		return http.StatusInternalServerError, "Internal Server Error"
	}
}
