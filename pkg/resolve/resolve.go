// Package resolve locates the result locator inside a long-running
// operation response whose shape varies between API revisions.
package resolve

import (
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

// MatcherKind tags how a Matcher looks for a locator.
type MatcherKind int

const (
	// KindPath reads one documented gjson path.
	KindPath MatcherKind = iota
	// KindSearch walks the top levels of the document looking for a
	// uri/url-like field.
	KindSearch
)

// Matcher is one strategy in the resolver's priority list.
type Matcher struct {
	Name string
	Kind MatcherKind
	// Path is used by KindPath.
	Path string
	// Depth bounds KindSearch; 0 only inspects the root's own fields.
	Depth int
}

// DefaultMatchers lists the known response shapes, most trusted first.
var DefaultMatchers = []Matcher{
	{Name: "generate-video-response", Kind: KindPath, Path: "response.generateVideoResponse.generatedSamples.0.video.uri"},
	{Name: "generated-videos", Kind: KindPath, Path: "response.generatedVideos.0.video.uri"},
	{Name: "generated-videos-snake", Kind: KindPath, Path: "response.generated_videos.0.video.uri"},
	{Name: "generated-samples", Kind: KindPath, Path: "response.generatedSamples.0.video.uri"},
	{Name: "videos-uri", Kind: KindPath, Path: "response.videos.0.uri"},
	{Name: "videos-gcs-uri", Kind: KindPath, Path: "response.videos.0.gcsUri"},
	{Name: "video-uri", Kind: KindPath, Path: "response.video.uri"},
	{Name: "response-uri", Kind: KindPath, Path: "response.uri"},
	{Name: "search", Kind: KindSearch, Depth: 2},
}

// Schemes a locator may plausibly use.
var plausibleSchemes = map[string]bool{"https": true, "http": true, "gs": true}

// Resolver evaluates its matchers in order and returns the first plausible
// locator.
type Resolver struct {
	matchers []Matcher
}

// New creates a Resolver. With no matchers it uses DefaultMatchers.
func New(matchers ...Matcher) *Resolver {
	if len(matchers) == 0 {
		matchers = DefaultMatchers
	}
	return &Resolver{matchers: matchers}
}

// Resolve returns the locator in raw and the name of the matcher that found
// it. Malformed input yields ok=false.
func (r *Resolver) Resolve(raw []byte) (locator, matcher string, ok bool) {
	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return "", "", false
	}
	doc := gjson.ParseBytes(raw)

	for _, m := range r.matchers {
		var found string
		switch m.Kind {
		case KindPath:
			found, ok = matchPath(doc, m.Path)
		case KindSearch:
			// The response subtree first, then the whole document.
			if root := doc.Get("response"); root.IsObject() || root.IsArray() {
				found, ok = search(root, m.Depth)
			}
			if !ok {
				found, ok = search(doc, m.Depth)
			}
		}
		if ok {
			return found, m.Name, true
		}
	}
	return "", "", false
}

// Resolve runs the default resolver.
func Resolve(raw []byte) (string, bool) {
	loc, _, ok := defaultResolver.Resolve(raw)
	return loc, ok
}

var defaultResolver = New()

func matchPath(doc gjson.Result, path string) (string, bool) {
	v := doc.Get(path)
	if v.Type != gjson.String || !Plausible(v.Str) {
		return "", false
	}
	return v.Str, true
}

// search is a depth-first walk over objects and arrays, at most depth
// container levels below node.
func search(node gjson.Result, depth int) (string, bool) {
	var found string
	var ok bool

	if node.IsObject() {
		// Fields on this level win over anything nested below it.
		node.ForEach(func(key, value gjson.Result) bool {
			if value.Type == gjson.String && locatorField(key.Str) && Plausible(value.Str) {
				found, ok = value.Str, true
				return false
			}
			return true
		})
		if ok {
			return found, true
		}
	}
	if depth <= 0 || (!node.IsObject() && !node.IsArray()) {
		return "", false
	}

	node.ForEach(func(_, value gjson.Result) bool {
		if value.IsObject() || value.IsArray() {
			found, ok = search(value, depth-1)
		}
		return !ok
	})
	return found, ok
}

func locatorField(name string) bool {
	n := strings.ToLower(strings.NewReplacer("_", "", "-", "").Replace(name))
	return strings.HasSuffix(n, "uri") || strings.HasSuffix(n, "url")
}

// Plausible reports whether s looks like a locator: an absolute URL with a
// known scheme and a host.
func Plausible(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	return plausibleSchemes[strings.ToLower(u.Scheme)] && u.Host != ""
}

// Scheme returns the lower-cased scheme of locator, or "" if unparsable.
func Scheme(locator string) string {
	u, err := url.Parse(locator)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Scheme)
}

// Fetchable reports whether locator can be downloaded with a plain
// authenticated HTTP GET.
func Fetchable(locator string) bool {
	s := Scheme(locator)
	return s == "https" || s == "http"
}
