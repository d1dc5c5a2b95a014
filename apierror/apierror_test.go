package apierror

import "testing"

func TestToEnvelope_FallsBackToUpperCaseTypeWhenNoSubcode(t *testing.T) {
	err := New(TypeRateLimit, "slow down")
	env := ToEnvelope(err)
	if env.Error.Code != "RATE_LIMIT_ERROR" {
		t.Errorf("got code %q, want RATE_LIMIT_ERROR", env.Error.Code)
	}
}

func TestToEnvelope_PrefersExplicitSubcode(t *testing.T) {
	err := New(TypeProtocol, "bad request shape").WithSub(InvalidModelField)
	env := ToEnvelope(err)
	if env.Error.Code != string(InvalidModelField) {
		t.Errorf("got code %q, want %q", env.Error.Code, InvalidModelField)
	}
}
