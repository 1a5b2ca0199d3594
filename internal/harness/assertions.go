package harness

import (
	"context"
	"fmt"
)

// Check evaluates every assertion in the scenario against a result.
// All failures are collected rather than stopping at the first.
func Check(scenario *Scenario, result *Result) []error {
	var errs []error
	for i, a := range scenario.Assertions {
		if err := checkOne(&a, result); err != nil {
			errs = append(errs, fmt.Errorf("assertions[%d] (%s): %w", i, a.Type, err))
		}
	}
	return errs
}

func checkOne(a *Assertion, result *Result) error {
	switch a.Type {
	case AssertNotificationShown:
		return checkNotificationShown(a, result)
	case AssertNotificationCount:
		if len(result.Shown) != a.Count {
			return fmt.Errorf("expected %d notifications, got %d", a.Count, len(result.Shown))
		}
		return nil
	case AssertWorkerState:
		if result.State.String() != a.State {
			return fmt.Errorf("expected worker state %q, got %q", a.State, result.State)
		}
		return nil
	case AssertCacheHas:
		return checkCacheHas(a, result)
	case AssertBucketCount:
		buckets, err := result.Store().ListBuckets(context.Background())
		if err != nil {
			return fmt.Errorf("list buckets: %w", err)
		}
		if len(buckets) != a.Count {
			names := make([]string, len(buckets))
			for i, b := range buckets {
				names[i] = b.Name
			}
			return fmt.Errorf("expected %d buckets, got %d: %v", a.Count, len(buckets), names)
		}
		return nil
	case AssertEventOrder:
		return checkEventOrder(a, result)
	case AssertReply:
		return checkReply(a, result)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// checkNotificationShown passes when any shown notification matches all
// specified fields. Unspecified fields match anything.
func checkNotificationShown(a *Assertion, result *Result) error {
	for _, n := range result.Shown {
		if a.Title != "" && n.Title != a.Title {
			continue
		}
		if a.Body != "" && n.Body != a.Body {
			continue
		}
		if a.Tag != "" && n.Tag != a.Tag {
			continue
		}
		if a.RequireInteraction != nil && n.RequireInteraction != *a.RequireInteraction {
			continue
		}
		return nil
	}
	return fmt.Errorf("no shown notification matches title=%q body=%q tag=%q (shown: %d)",
		a.Title, a.Body, a.Tag, len(result.Shown))
}

func checkCacheHas(a *Assertion, result *Result) error {
	entry, found, err := result.Store().GetEntry(context.Background(), a.Bucket, a.URL)
	if err != nil {
		return fmt.Errorf("get entry: %w", err)
	}
	if !found {
		return fmt.Errorf("bucket %q has no entry for %q", a.Bucket, a.URL)
	}
	if a.Body != "" && string(entry.Body) != a.Body {
		return fmt.Errorf("entry %q body = %q, expected %q", a.URL, entry.Body, a.Body)
	}
	return nil
}

// checkEventOrder verifies the kinds appear in the trace in the given
// order, allowing other events in between.
func checkEventOrder(a *Assertion, result *Result) error {
	next := 0
	for _, ev := range result.Trace {
		if next < len(a.Kinds) && string(ev.Kind) == a.Kinds[next] {
			next++
		}
	}
	if next != len(a.Kinds) {
		got := make([]string, len(result.Trace))
		for i, ev := range result.Trace {
			got[i] = string(ev.Kind)
		}
		return fmt.Errorf("missing %q in trace order %v", a.Kinds[next], got)
	}
	return nil
}

func checkReply(a *Assertion, result *Result) error {
	if a.Index >= len(result.Replies) {
		return fmt.Errorf("no reply at index %d (got %d replies)", a.Index, len(result.Replies))
	}
	reply := result.Replies[a.Index]
	if a.Success != nil && reply.Success != *a.Success {
		return fmt.Errorf("reply[%d].success = %v, expected %v (error: %q)",
			a.Index, reply.Success, *a.Success, reply.Error)
	}
	if a.Error != "" && reply.Error != a.Error {
		return fmt.Errorf("reply[%d].error = %q, expected %q", a.Index, reply.Error, a.Error)
	}
	return nil
}
