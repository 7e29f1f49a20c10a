// Package faults normalizes raw scenario failures into a fixed taxonomy of
// classified errors. Classification is a pure mapping; it never talks to the
// browser or the network.
package faults

import (
	"fmt"
)

// Category is one of the fixed failure categories. The set is closed: the
// classifier never produces values outside this enumeration.
type Category string

const (
	CategoryNetwork         Category = "network_error"
	CategoryTimeout         Category = "timeout_error"
	CategoryElementNotFound Category = "element_not_found"
	CategoryNavigation      Category = "navigation_error"
	CategoryJavaScript      Category = "javascript_error"
	CategoryBrowser         Category = "browser_error"
	CategoryAuthentication  Category = "authentication_error"
	CategoryPermission      Category = "permission_error"
	CategoryValidation      Category = "validation_error"
	CategoryResource        Category = "resource_error"
	CategoryUnknown         Category = "unknown"
)

// Categories returns every category in a stable order.
func Categories() []Category {
	return []Category{
		CategoryNetwork,
		CategoryTimeout,
		CategoryElementNotFound,
		CategoryNavigation,
		CategoryJavaScript,
		CategoryBrowser,
		CategoryAuthentication,
		CategoryPermission,
		CategoryValidation,
		CategoryResource,
		CategoryUnknown,
	}
}

// Valid reports whether c is a member of the fixed enumeration.
func (c Category) Valid() bool {
	switch c {
	case CategoryNetwork, CategoryTimeout, CategoryElementNotFound,
		CategoryNavigation, CategoryJavaScript, CategoryBrowser,
		CategoryAuthentication, CategoryPermission, CategoryValidation,
		CategoryResource, CategoryUnknown:
		return true
	}
	return false
}

// Severity ranks how serious a classified failure is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Classified is a failure normalized into the taxonomy. It wraps the raw
// error so callers can still reach it through errors.As/Unwrap.
type Classified struct {
	Category         Category       `json:"category"`
	Severity         Severity       `json:"severity"`
	Message          string         `json:"message"`
	Detail           string         `json:"detail,omitempty"`
	Context          map[string]any `json:"context,omitempty"`
	RetryRecommended bool           `json:"retry_recommended"`
	SuggestedFix     string         `json:"suggested_fix,omitempty"`
	Err              error          `json:"-"`
}

// Error formats the classified failure with its category.
func (c *Classified) Error() string {
	if c.Message == "" && c.Err != nil {
		return fmt.Sprintf("[%s] %v", c.Category, c.Err)
	}
	return fmt.Sprintf("[%s] %s", c.Category, c.Message)
}

// Unwrap exposes the raw error for errors.Is/As chains.
func (c *Classified) Unwrap() error { return c.Err }

// New builds a classified failure directly, for callers that already know
// the category. Severity, retry, and fix fall back to the category defaults.
func New(category Category, message string) *Classified {
	profile := profileFor(category)
	return &Classified{
		Category:         category,
		Severity:         profile.severity,
		Message:          message,
		RetryRecommended: profile.retry,
		SuggestedFix:     profile.fix,
	}
}

// categoryProfile carries the per-category defaults applied at
// classification time.
type categoryProfile struct {
	severity Severity
	retry    bool
	fix      string
}

var profiles = map[Category]categoryProfile{
	CategoryNetwork: {
		severity: SeverityMedium,
		retry:    true,
		fix:      "check connectivity to the target URL and retry",
	},
	CategoryTimeout: {
		severity: SeverityMedium,
		retry:    true,
		fix:      "increase the scenario timeout or reduce the steps under test",
	},
	CategoryElementNotFound: {
		severity: SeverityMedium,
		retry:    false,
		fix:      "verify the element exists and wait for dynamic content before interacting",
	},
	CategoryNavigation: {
		severity: SeverityMedium,
		retry:    false,
		fix:      "verify the URL is reachable and does not redirect unexpectedly",
	},
	CategoryJavaScript: {
		severity: SeverityMedium,
		retry:    false,
		fix:      "inspect the page console for the failing script",
	},
	CategoryBrowser: {
		severity: SeverityHigh,
		retry:    false,
		fix:      "restart the browser session; the instance crashed or disconnected",
	},
	CategoryAuthentication: {
		severity: SeverityCritical,
		retry:    false,
		fix:      "verify credentials and session state for the target site",
	},
	CategoryPermission: {
		severity: SeverityHigh,
		retry:    false,
		fix:      "verify the account has access to the requested resource",
	},
	CategoryValidation: {
		severity: SeverityMedium,
		retry:    false,
		fix:      "review the expected outcomes against the observed page state",
	},
	CategoryResource: {
		severity: SeverityHigh,
		retry:    true,
		fix:      "reduce parallelism or raise the session pool limit",
	},
	CategoryUnknown: {
		severity: SeverityLow,
		retry:    false,
		fix:      "",
	},
}

func profileFor(category Category) categoryProfile {
	if p, ok := profiles[category]; ok {
		return p
	}
	return profiles[CategoryUnknown]
}
