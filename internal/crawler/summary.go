package crawler

import (
	"sort"
	"strconv"

	"github.com/Harvey-AU/hostprobe/internal/dump"
)

// HeadValue is the structured summary written at the top of a head file.
func (r *Resolution) HeadValue() *dump.Mapping {
	m := dump.NewMapping().
		SetString("host", r.Host).
		SetString("available", strconv.FormatBool(r.Available)).
		SetString("final_url", r.FinalURL).
		SetString("redirect_chain_type", string(r.RedirectType)).
		SetString("hops", strconv.Itoa(r.Hops))

	if r.StatusCode != 0 {
		m.SetString("status", strconv.Itoa(r.StatusCode))
	}
	if r.ContentType != "" {
		m.SetString("content-type", r.ContentType)
	}
	if r.HasTitle {
		m.SetString("title", r.Title)
	}
	if len(r.Technologies) > 0 {
		m.Set("technologies", dump.Strings(r.Technologies))
	}
	if r.Error != "" {
		m.SetString("error", r.Error)
	}
	return m
}

// HeaderValue is the second document of a head file: every non-empty header
// value, escaped the way a quoted literal would be but without the quotes.
func (r *Resolution) HeaderValue() *dump.Mapping {
	keys := make([]string, 0, len(r.Headers))
	for k, v := range r.Headers {
		if v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	headers := dump.NewMapping()
	for _, k := range keys {
		quoted := strconv.Quote(r.Headers[k])
		headers.SetString(k, quoted[1:len(quoted)-1])
	}

	return dump.NewMapping().Set("headers", headers)
}
