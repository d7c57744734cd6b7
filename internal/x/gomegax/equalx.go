package gomegax

import (
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/onsi/gomega/format"
	"github.com/onsi/gomega/types"
)

// EqualX is an alternative to gomega.Equal() that compares values
// structurally using go-cmp.
//
// If no options are given, nil and empty slices and maps are considered
// equal, so that values that have been through a journal round-trip compare
// equal to the values that were written.
func EqualX(expected interface{}, options ...cmp.Option) types.GomegaMatcher {
	if len(options) == 0 {
		options = append(options, cmpopts.EquateEmpty())
	}

	return &equalMatcher{
		expected: expected,
		options:  options,
	}
}

type equalMatcher struct {
	expected interface{}
	options  cmp.Options
}

func (matcher *equalMatcher) Match(actual interface{}) (success bool, err error) {
	return cmp.Equal(actual, matcher.expected, matcher.options), nil
}

func (matcher *equalMatcher) FailureMessage(actual interface{}) (message string) {
	diff := cmp.Diff(matcher.expected, actual, matcher.options)
	return format.Message(actual, "to equal", matcher.expected) +
		"\n\nDiff (-want +got):\n" + format.IndentString(diff, 1)
}

func (matcher *equalMatcher) NegatedFailureMessage(actual interface{}) (message string) {
	return format.Message(actual, "not to equal", matcher.expected)
}
