package doctor

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckStatus_String(t *testing.T) {
	tests := []struct {
		status   CheckStatus
		expected string
	}{
		{StatusPass, "pass"},
		{StatusWarn, "warn"},
		{StatusFail, "fail"},
		{CheckStatus(99), "unknown"},
	}

	for _, tc := range tests {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.status.String())
		})
	}
}

func TestCheckResult_JSON(t *testing.T) {
	data, err := json.Marshal(CheckResult{Name: "x", Status: StatusWarn, Message: "m"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"x","status":"warn","message":"m"}`, string(data))
}

// mockCheck is a test implementation of Check.
type mockCheck struct {
	name     string
	category string
	result   CheckResult
	fixed    CheckResult
	fixErr   error
	fixCalls int
}

func (m *mockCheck) Name() string     { return m.name }
func (m *mockCheck) Category() string { return m.category }
func (m *mockCheck) Run(context.Context) CheckResult {
	if m.fixCalls > 0 && m.fixErr == nil {
		return m.fixed
	}
	return m.result
}
func (m *mockCheck) Fix() error {
	m.fixCalls++
	return m.fixErr
}

func sampleChecks() []Check {
	return []Check{
		&mockCheck{name: "a", category: "CONFIG", result: CheckResult{Name: "a", Status: StatusPass}},
		&mockCheck{name: "b", category: "STATE", result: CheckResult{Name: "b", Status: StatusFail}},
		&mockCheck{name: "c", category: "CONFIG", result: CheckResult{Name: "c", Status: StatusWarn}},
	}
}

func TestRunAll(t *testing.T) {
	for name, run := range map[string]func(context.Context, []Check) []CheckResult{
		"sequential": RunAll,
		"parallel":   RunAllParallel,
	} {
		t.Run(name, func(t *testing.T) {
			results := run(context.Background(), sampleChecks())
			require.Len(t, results, 3)
			assert.Equal(t, "a", results[0].Name)
			assert.Equal(t, StatusFail, results[1].Status)
			assert.Equal(t, StatusWarn, results[2].Status)
		})
	}
}

func TestGroupByCategory(t *testing.T) {
	checks := sampleChecks()
	groups := GroupByCategory(checks, RunAll(context.Background(), checks))

	require.Len(t, groups, 2)
	assert.Equal(t, "CONFIG", groups[0].Category)
	assert.Equal(t, []string{"a", "c"}, []string{groups[0].Results[0].Name, groups[0].Results[1].Name})
	assert.Equal(t, "STATE", groups[1].Category)
}

func TestFix(t *testing.T) {
	fixable := &mockCheck{
		name:   "fixable",
		result: CheckResult{Status: StatusFail, Fixable: true},
		fixed:  CheckResult{Status: StatusPass},
	}
	broken := &mockCheck{
		name:   "broken",
		result: CheckResult{Status: StatusFail, Fixable: true},
		fixErr: stderrors.New("nope"),
	}
	manual := &mockCheck{name: "manual", result: CheckResult{Status: StatusFail}}
	passing := &mockCheck{name: "passing", result: CheckResult{Status: StatusPass, Fixable: true}}

	checks := []Check{fixable, broken, manual, passing}
	results := RunAll(context.Background(), checks)
	Fix(context.Background(), checks, results)

	assert.Equal(t, StatusPass, results[0].Status)
	assert.Equal(t, StatusFail, results[1].Status)
	assert.Equal(t, 1, broken.fixCalls)
	assert.Equal(t, 0, manual.fixCalls)
	assert.Equal(t, 0, passing.fixCalls)
}

func TestSummaryHelpers(t *testing.T) {
	results := RunAll(context.Background(), sampleChecks())

	counts := CountByStatus(results)
	assert.Equal(t, 1, counts[StatusPass])
	assert.Equal(t, 1, counts[StatusWarn])
	assert.Equal(t, 1, counts[StatusFail])
	assert.True(t, HasFailures(results))
	assert.True(t, HasIssues(results))
	assert.Equal(t, "2 issues found", Summary(results))

	clean := []CheckResult{{Status: StatusPass}}
	assert.False(t, HasIssues(clean))
	assert.Equal(t, "Everything looks good", Summary(clean))

	one := []CheckResult{{Status: StatusWarn, Fixable: true}, {Status: StatusPass, Fixable: true}}
	assert.False(t, HasFailures(one))
	assert.Equal(t, "1 issue found", Summary(one))
	assert.Equal(t, 1, FixableCount(one))
}
