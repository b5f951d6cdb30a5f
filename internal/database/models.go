package database

// Build is the catalog entry for one persisted network.
type Build struct {
	ID         int64
	Key        string
	RunID      string
	PeriodID   string
	DataPath   string
	Params     string // JSON of the build options
	Subreddits int
	Edges      int
	Authors    int
	Records    int
	Dir        string
	Formats    []string
	BuiltAt    *string
}

// SubredditTotal is the filtered comment total of one subreddit in a build.
type SubredditTotal struct {
	ID            int
	Name          string
	TotalComments int64
}

// Stats contains aggregate catalog statistics.
type Stats struct {
	TotalBuilds int
	Periods     int
	LatestKey   string
	LatestAt    string
}
