package artifact

import (
	"crypto/sha256"
	"fmt"
	"hash"
	"sort"
	"strconv"
	"strings"

	"github.com/TobiSchelling/subnet/internal/loader"
	"github.com/TobiSchelling/subnet/internal/network"
)

// keyVersion changes whenever the build output for identical inputs would
// change, so old artifacts stop matching.
const keyVersion = "subnet/v1"

// KeyInput is everything that determines a build's output.
type KeyInput struct {
	Source      *loader.Source
	Period      string
	Build       network.Options
	Delimiter   rune
	CountColumn string
}

// CacheKey returns the hex SHA-256 of the input identity and parameters.
// File contents are not read; path, size and modification time stand in
// for them.
func CacheKey(in KeyInput) string {
	h := sha256.New()
	field(h, keyVersion)
	field(h, in.Period)

	if in.Source != nil {
		field(h, in.Source.Path)
		field(h, strconv.Itoa(len(in.Source.Files)))
		for _, f := range in.Source.Files {
			field(h, f.Path)
			field(h, strconv.FormatInt(f.Size, 10))
			field(h, strconv.FormatInt(f.ModTime.UnixNano(), 10))
		}
	}

	excluded := append([]string(nil), in.Build.ExcludedAuthors...)
	sort.Strings(excluded)
	field(h, strings.Join(excluded, "\x1f"))
	field(h, strings.ToLower(in.Build.BotSuffix))
	field(h, strconv.FormatInt(in.Build.MinCountBotExclusion, 10))
	field(h, strconv.FormatInt(in.Build.SubredditCommentThreshold, 10))
	field(h, string(in.Build.ThresholdMode))
	field(h, string(in.Build.Weighting))
	field(h, string(in.Delimiter))
	field(h, in.CountColumn)

	return fmt.Sprintf("%x", h.Sum(nil))
}

func field(h hash.Hash, s string) {
	h.Write([]byte(s))
	h.Write([]byte{0}) // separator
}
