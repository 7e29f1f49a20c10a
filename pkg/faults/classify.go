package faults

import (
	"context"
	"errors"
	"strings"
)

// pattern tables are checked in order; the first category whose pattern
// matches wins. Element and navigation phrasings are checked before the
// generic timeout words because Playwright wait timeouts mention both
// ("Timeout 30000ms exceeded ... waiting for locator").
var patternTable = []struct {
	category Category
	patterns []string
}{
	{CategoryAuthentication, []string{
		"401",
		"unauthorized",
		"authentication failed",
		"invalid api key",
		"invalid credentials",
		"login failed",
		"session expired",
	}},
	{CategoryPermission, []string{
		"403",
		"forbidden",
		"permission denied",
		"access denied",
		"not allowed",
	}},
	{CategoryElementNotFound, []string{
		"waiting for locator",
		"waiting for selector",
		"strict mode violation",
		"no element matches",
		"element not found",
		"element is not visible",
		"element is not attached",
		"failed to find element",
	}},
	{CategoryNavigation, []string{
		"navigation failed",
		"navigation timeout",
		"err_aborted",
		"frame was detached",
		"invalid url",
		"err_too_many_redirects",
		"404",
		"page not found",
	}},
	{CategoryBrowser, []string{
		"target closed",
		"browser has been closed",
		"browser disconnected",
		"browser closed",
		"crashed",
		"protocol error",
		"target crashed",
		"session closed",
	}},
	{CategoryNetwork, []string{
		"net::err_",
		"connection refused",
		"econnrefused",
		"econnreset",
		"name not resolved",
		"dns",
		"socket hang up",
		"network is unreachable",
		"tls handshake",
	}},
	{CategoryJavaScript, []string{
		"evaluation failed",
		"referenceerror",
		"typeerror",
		"syntaxerror",
		"uncaught",
		"javascript error",
	}},
	{CategoryResource, []string{
		"pool is busy",
		"no session available",
		"pool is closed",
		"out of memory",
		"oom",
		"resource exhausted",
		"too many sessions",
	}},
	{CategoryTimeout, []string{
		"timeout",
		"timed out",
		"deadline exceeded",
	}},
	{CategoryValidation, []string{
		"expected outcome",
		"assertion failed",
		"validation failed",
		"did not match",
		"mismatch",
	}},
}

// Classify maps a raw failure onto the fixed taxonomy. Already-classified
// errors pass through unchanged; context deadlines map to timeout before any
// text matching; anything unmatched falls back to the unknown category with
// low severity and no retry recommendation.
func Classify(err error) *Classified {
	if err == nil {
		return nil
	}

	var pre *Classified
	if errors.As(err, &pre) {
		return pre
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		c := New(CategoryTimeout, err.Error())
		c.Err = err
		return c
	}

	c := ClassifyMessage(err.Error())
	c.Err = err
	return c
}

// ClassifyMessage classifies raw failure text. Useful when the failure
// arrived as a string (agent transcripts, wire payloads).
func ClassifyMessage(msg string) *Classified {
	lower := strings.ToLower(msg)
	for _, entry := range patternTable {
		for _, p := range entry.patterns {
			if strings.Contains(lower, p) {
				c := New(entry.category, msg)
				return c
			}
		}
	}
	return New(CategoryUnknown, msg)
}
