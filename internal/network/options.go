package network

import "fmt"

// Record is one (author, subreddit) row of the raw interaction table.
type Record struct {
	Author    string
	Subreddit string
	Count     int64
}

// ThresholdMode selects how low-activity subreddits are chosen for exclusion.
type ThresholdMode string

const (
	// ThresholdCumulative walks subreddits in ascending order of total comments
	// and excludes them while the running total stays at or below the threshold.
	ThresholdCumulative ThresholdMode = "cumulative"
	// ThresholdPerSubreddit excludes every subreddit whose own total is at or
	// below the threshold.
	ThresholdPerSubreddit ThresholdMode = "per_subreddit"
)

// Weighting selects the per-author combination function for a pair of counts.
type Weighting string

const (
	// WeightNormalized adds c_i*c_j / (authorTotal * subredditTotal_j) to the
	// directed cell (i, j); the symmetric weight is the smaller direction.
	WeightNormalized Weighting = "normalized"
	WeightMin        Weighting = "min"
	WeightProduct    Weighting = "product"
	// WeightCooccurrence counts shared authors.
	WeightCooccurrence Weighting = "cooccurrence"
)

const (
	DefaultBotSuffix                 = "bot"
	DefaultMinCountBotExclusion      = 100
	DefaultSubredditCommentThreshold = 10000
)

// DefaultExcludedAuthors are the account names used for removed content and
// the moderation bot.
var DefaultExcludedAuthors = []string{"[deleted]", "AutoModerator"}

// Options configures filtering and weighting for Build.
type Options struct {
	ExcludedAuthors           []string      `json:"excluded_authors"`
	BotSuffix                 string        `json:"bot_suffix"`
	MinCountBotExclusion      int64         `json:"min_count_bot_exclusion"`
	SubredditCommentThreshold int64         `json:"subreddit_comment_threshold"`
	ThresholdMode             ThresholdMode `json:"threshold_mode"`
	Weighting                 Weighting     `json:"weighting"`
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		ExcludedAuthors:           append([]string(nil), DefaultExcludedAuthors...),
		BotSuffix:                 DefaultBotSuffix,
		MinCountBotExclusion:      DefaultMinCountBotExclusion,
		SubredditCommentThreshold: DefaultSubredditCommentThreshold,
		ThresholdMode:             ThresholdCumulative,
		Weighting:                 WeightNormalized,
	}
}

// Validate reports options that Build cannot work with.
func (o Options) Validate() error {
	if o.MinCountBotExclusion < 0 {
		return fmt.Errorf("min count for bot exclusion must be >= 0, got %d", o.MinCountBotExclusion)
	}
	if o.SubredditCommentThreshold < 0 {
		return fmt.Errorf("subreddit comment threshold must be >= 0, got %d", o.SubredditCommentThreshold)
	}
	switch o.ThresholdMode {
	case ThresholdCumulative, ThresholdPerSubreddit:
	default:
		return fmt.Errorf("unknown threshold mode %q", o.ThresholdMode)
	}
	switch o.Weighting {
	case WeightNormalized, WeightMin, WeightProduct, WeightCooccurrence:
	default:
		return fmt.Errorf("unknown weighting %q", o.Weighting)
	}
	return nil
}
