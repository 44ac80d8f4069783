package suite

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/themizzi/sitetest/internal/harness"
	"github.com/themizzi/sitetest/internal/harness/harnesstest"
	"github.com/themizzi/sitetest/internal/logging"
	"github.com/themizzi/sitetest/internal/runner"
)

func TestCases(t *testing.T) {
	site := harnesstest.ServeSite(t)

	for _, tc := range Cases() {
		t.Run(tc.Name, func(t *testing.T) {
			tc.Run(harness.New(t, harness.Options{
				Config:  site.Config,
				Modules: tc.Modules,
				Logger:  logging.Discard(),
			}))
		})
	}

	assert.Empty(t, site.RunTables(t))
}

func TestRun_ThroughRunner(t *testing.T) {
	site := harnesstest.ServeSite(t)
	var out bytes.Buffer

	results := runner.Run(nil, &runner.ConsoleTestLogger{Out: &out}, func(c *runner.Context) {
		Run(c, Cases(), harness.Options{Config: site.Config, Logger: logging.Discard()})
	})

	require.True(t, results.OK(), out.String())
	assert.Len(t, results.Tests, len(Cases()))
	assert.Empty(t, site.RunTables(t))
}

func TestRun_ReportsFailures(t *testing.T) {
	site := harnesstest.ServeSite(t)
	cases := []Case{{
		Name: "missing module",
		Run:  func(h *harness.Harness) { h.Get("simpletest/hello", nil) },
	}, {
		Name: "wrong text",
		Run: func(h *harness.Harness) {
			h.Get("user/login", nil)
			h.AssertSession().PageTextContains("Hello Amsterdam")
		},
	}}

	results := runner.Run(nil, nil, func(c *runner.Context) {
		Run(c, cases, harness.Options{Config: site.Config, Logger: logging.Discard()})
	})

	assert.Len(t, results.Tests, 2)
	require.Len(t, results.Failures, 1)
	assert.Equal(t, "wrong text", results.Failures[0].TestID.String())
	assert.EqualError(t, results.Failures[0].Errors[0], `The text "Hello Amsterdam" was not found anywhere in the text of the current page.`)
	assert.Empty(t, site.RunTables(t))
}
