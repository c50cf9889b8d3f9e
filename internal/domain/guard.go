package domain

// GuardResult is the outcome of a pre-flight guard check.
type GuardResult struct {
	Allowed bool
	Reason  string
	Guard   string
}
