//go:build e2e

package e2e

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/themizzi/sitetest/internal/harness"
	"github.com/themizzi/sitetest/internal/harness/harnesstest"
	"github.com/themizzi/sitetest/internal/logging"
	"github.com/themizzi/sitetest/internal/suite"
)

// TestSuiteInBrowser runs the built-in cases through Chromium.
// Browsers are installed with:
//
//	go run github.com/playwright-community/playwright-go/cmd/playwright@latest install chromium
func TestSuiteInBrowser(t *testing.T) {
	site := harnesstest.ServeSite(t)
	cfg := *site.Config
	cfg.Browser = "playwright"
	cfg.Headless = true

	for _, tc := range suite.Cases() {
		t.Run(tc.Name, func(t *testing.T) {
			tc.Run(harness.New(t, harness.Options{
				Config:  &cfg,
				Modules: tc.Modules,
				Logger:  logging.Discard(),
			}))
		})
	}

	assert.Empty(t, site.RunTables(t))
}

// TestHelloPageInBrowser
// Feature: Test-only pages
//
//	As a test author
//	I want the test module's pages to render in a real browser
//	So that assertions see what a visitor sees
func TestHelloPageInBrowser(t *testing.T) {
	site := harnesstest.ServeSite(t)
	cfg := *site.Config
	cfg.Browser = "playwright"
	cfg.Headless = true

	// Given a user allowed to see the test pages
	h := harness.New(t, harness.Options{
		Config:  &cfg,
		Modules: []string{"simpletest_test"},
		Logger:  logging.Discard(),
	})
	account := h.CreateUser([]string{"simpletest_test access tests"}, "")
	h.Login(account)

	// When they open the hello page
	h.Get("simpletest/hello", nil)

	// Then they are greeted
	assert := h.AssertSession()
	assert.StatusCodeEquals(200)
	assert.PageTextContains("Hello Amsterdam")
	assert.ElementExists("p")
}
