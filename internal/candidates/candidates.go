// Package candidates turns word lists into candidate hostnames.
package candidates

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/Harvey-AU/hostprobe/internal/util"
	"github.com/rs/zerolog/log"
)

// DefaultTLDs is ordered roughly by popularity so the likeliest hosts for a
// word are probed first.
var DefaultTLDs = []string{
	"arpa", "int", "biz", "mobi", "name",
	"com", "net", "org", "de", "eu", "us", "info",
	"me", "online", "co", "nl", "ro", "ru",
	"win", "club", "store", "space", "shop", "live",
	"life", "ml", "ma", "np", "stream", "pro",
	"news", "website", "asia", "fun", "men", "work", "science",
	"travel", "party",
}

// ReadWords reads one word per line. Blank lines and lines starting with #
// are skipped; words are lowercased and deduplicated, first occurrence wins.
func ReadWords(r io.Reader) ([]string, error) {
	var words []string
	seen := make(map[string]struct{})

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		word := strings.ToLower(strings.TrimSpace(strings.ToValidUTF8(scanner.Text(), "")))
		if word == "" || strings.HasPrefix(word, "#") {
			continue
		}
		if _, ok := seen[word]; ok {
			continue
		}
		seen[word] = struct{}{}
		words = append(words, word)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read word list: %w", err)
	}
	return words, nil
}

// Hosts combines every word with every TLD, word-major, skipping anything
// that is not a valid hostname. Duplicate TLDs are ignored.
func Hosts(words, tlds []string) []string {
	uniqueTLDs := make([]string, 0, len(tlds))
	seenTLD := make(map[string]struct{}, len(tlds))
	for _, tld := range tlds {
		tld = strings.ToLower(strings.Trim(tld, ". "))
		if _, ok := seenTLD[tld]; ok || tld == "" {
			continue
		}
		seenTLD[tld] = struct{}{}
		uniqueTLDs = append(uniqueTLDs, tld)
	}

	hosts := make([]string, 0, len(words)*len(uniqueTLDs))
	for _, word := range words {
		for _, tld := range uniqueTLDs {
			host := word + "." + tld
			if err := util.ValidateDomain(host); err != nil {
				log.Debug().Err(err).Str("host", host).Msg("Skipping invalid candidate")
				continue
			}
			hosts = append(hosts, host)
		}
	}
	return hosts
}
