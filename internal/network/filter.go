package network

import (
	"sort"
	"strings"
)

// Filter removes noise authors and low-activity subreddits.
//
// An author is noise when the name is in opts.ExcludedAuthors, or when the
// name ends in opts.BotSuffix (case-insensitive) and the record count is at
// least opts.MinCountBotExclusion. Either condition alone drops the record.
// Subreddit totals are taken after noise authors are gone.
func Filter(records []Record, opts Options) []Record {
	excluded := make(map[string]bool, len(opts.ExcludedAuthors))
	for _, a := range opts.ExcludedAuthors {
		excluded[a] = true
	}
	suffix := strings.ToLower(opts.BotSuffix)

	kept := make([]Record, 0, len(records))
	for _, r := range records {
		if isNoiseAuthor(r, excluded, suffix, opts.MinCountBotExclusion) {
			continue
		}
		kept = append(kept, r)
	}

	low := lowActivitySubreddits(subredditTotals(kept), opts.SubredditCommentThreshold, opts.ThresholdMode)
	if len(low) == 0 {
		return kept
	}

	out := kept[:0]
	for _, r := range kept {
		if !low[r.Subreddit] {
			out = append(out, r)
		}
	}
	return out
}

func isNoiseAuthor(r Record, excluded map[string]bool, suffix string, minBotCount int64) bool {
	if excluded[r.Author] {
		return true
	}
	return suffix != "" &&
		r.Count >= minBotCount &&
		strings.HasSuffix(strings.ToLower(r.Author), suffix)
}

func subredditTotals(records []Record) map[string]int64 {
	totals := make(map[string]int64)
	for _, r := range records {
		totals[r.Subreddit] += r.Count
	}
	return totals
}

// lowActivitySubreddits returns the subreddits to drop. A total that lands
// exactly on the threshold is dropped in both modes.
func lowActivitySubreddits(totals map[string]int64, threshold int64, mode ThresholdMode) map[string]bool {
	low := make(map[string]bool)

	if mode == ThresholdPerSubreddit {
		for name, total := range totals {
			if total <= threshold {
				low[name] = true
			}
		}
		return low
	}

	names := make([]string, 0, len(totals))
	for name := range totals {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		ti, tj := totals[names[i]], totals[names[j]]
		if ti != tj {
			return ti < tj
		}
		return names[i] < names[j]
	})

	var running int64
	for _, name := range names {
		if running+totals[name] > threshold {
			break
		}
		running += totals[name]
		low[name] = true
	}
	return low
}
