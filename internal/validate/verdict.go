package validate

// Verdict summarizes an issue list.
type Verdict string

const (
	VerdictReady              Verdict = "READY"
	VerdictProceedWithCaution Verdict = "PROCEED_WITH_CAUTION"
	VerdictBlocked            Verdict = "BLOCKED"
)

// Classify is a pure function of the issue list: any error blocks, warnings
// alone allow rendering with caution.
func Classify(issues []Issue) Verdict {
	verdict := VerdictReady
	for _, i := range issues {
		switch i.Severity {
		case SeverityError:
			return VerdictBlocked
		case SeverityWarning:
			verdict = VerdictProceedWithCaution
		}
	}
	return verdict
}

// ExitCode maps a verdict to the process exit status.
func (v Verdict) ExitCode() int {
	switch v {
	case VerdictReady:
		return 0
	case VerdictProceedWithCaution:
		return 1
	default:
		return 2
	}
}

// Counts returns the number of errors and warnings.
func Counts(issues []Issue) (errs, warnings int) {
	for _, i := range issues {
		switch i.Severity {
		case SeverityError:
			errs++
		case SeverityWarning:
			warnings++
		}
	}
	return errs, warnings
}
