package adapter

import (
	"fmt"
	"strings"

	"llmproxy/apierror"
)

// normalizeHTTPError maps a raw upstream HTTP failure (status code plus
// body) to one of the nine upstream-facing error types spec §4.3 names.
// Shared by every adapter; a provider-specific NormalizeError calls this
// for its common case and only overrides where that family's error body
// shape needs special-casing.
func normalizeHTTPError(statusCode int, body []byte, cause error) *apierror.Error {
	bodyStr := strings.ToLower(string(body))
	switch {
	case statusCode == 401 || statusCode == 403:
		return apierror.New(apierror.TypeAuthentication, "upstream rejected credentials").WithCause(cause)
	case statusCode == 404:
		return apierror.New(apierror.TypeNotFound, "upstream model or endpoint not found").WithCause(cause)
	case statusCode == 408:
		return apierror.New(apierror.TypeTimeout, "upstream request timed out").WithCause(cause)
	case statusCode == 429 && strings.Contains(bodyStr, "quota"):
		return apierror.New(apierror.TypeQuotaExceeded, "upstream quota exceeded").WithCause(cause)
	case statusCode == 429:
		return apierror.New(apierror.TypeRateLimit, "upstream rate limit exceeded").WithCause(cause)
	case statusCode == 400 || statusCode == 422:
		return apierror.New(apierror.TypeValidation, "upstream rejected request as invalid").WithCause(cause)
	case statusCode == 0:
		return apierror.New(apierror.TypeConnection, "failed to reach upstream").WithCause(cause)
	case statusCode >= 500:
		return apierror.New(apierror.TypeAPI, fmt.Sprintf("upstream returned status %d", statusCode)).WithCause(cause)
	default:
		return apierror.New(apierror.TypeNetwork, fmt.Sprintf("upstream returned unexpected status %d", statusCode)).WithCause(cause)
	}
}
