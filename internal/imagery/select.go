// Package imagery picks the one image shown for a listing and recovers when
// that image fails to load.
//
// Select is pure. Resolver layers the broken-URL registry, the per-category
// default pool and the anti-repetition UsageCache on top of it, and never
// returns an error: the worst outcome is the placeholder.
package imagery

import (
	"strings"

	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/domain"
)

// URLSet is a set of image URLs. The nil set is empty.
type URLSet map[string]struct{}

func NewURLSet(urls ...string) URLSet {
	s := make(URLSet, len(urls))
	for _, u := range urls {
		s.Add(u)
	}
	return s
}

func (s URLSet) Add(u string) {
	if u = strings.TrimSpace(u); u != "" {
		s[u] = struct{}{}
	}
}

func (s URLSet) Has(u string) bool {
	_, ok := s[strings.TrimSpace(u)]
	return ok
}

// Choice is the winning candidate of a Select call.
type Choice struct {
	URL    string             `json:"url"`
	Source domain.ImageSource `json:"source"`
	Index  int                `json:"index"` // position within the source
}

// candidateFunc yields the first eligible URL of one source.
type candidateFunc func(l *domain.ListingRecord, exclude URLSet) (url string, index int, ok bool)

var candidates = map[domain.ImageSource]candidateFunc{
	domain.SourceUploaded: func(l *domain.ListingRecord, exclude URLSet) (string, int, bool) {
		for i, u := range l.UploadedImages {
			if eligible(u, exclude) {
				return strings.TrimSpace(u), i, true
			}
		}
		return "", 0, false
	},
	domain.SourceGooglePhotos: func(l *domain.ListingRecord, exclude URLSet) (string, int, bool) {
		for i, p := range l.GooglePhotos {
			if eligible(p.URL, exclude) {
				return strings.TrimSpace(p.URL), i, true
			}
		}
		return "", 0, false
	},
	domain.SourceDefaultImage: func(l *domain.ListingRecord, exclude URLSet) (string, int, bool) {
		if l.DefaultSpecialtyImage != nil && eligible(*l.DefaultSpecialtyImage, exclude) {
			return strings.TrimSpace(*l.DefaultSpecialtyImage), 0, true
		}
		return "", 0, false
	},
}

func eligible(u string, exclude URLSet) bool {
	return domain.IsAbsoluteURL(u) && !exclude.Has(u)
}

// Order returns the sources consulted for l. An explicit priority is filtered
// of unknown and repeated names; sources it does not name are skipped. An
// explicit priority that filters down to nothing means the default order.
func Order(l *domain.ListingRecord) []domain.ImageSource {
	if len(l.ImagePriority) == 0 {
		return domain.DefaultImagePriority
	}
	seen := make(map[domain.ImageSource]bool, len(l.ImagePriority))
	order := make([]domain.ImageSource, 0, len(l.ImagePriority))
	for _, s := range l.ImagePriority {
		src, ok := domain.ParseImageSource(string(s))
		if !ok || seen[src] {
			continue
		}
		seen[src] = true
		order = append(order, src)
	}
	if len(order) == 0 {
		return domain.DefaultImagePriority
	}
	return order
}

// Select returns the first eligible listing image under the listing's source
// order, skipping anything in exclude. Within a source, stored order wins.
func Select(l domain.ListingRecord, exclude URLSet) (Choice, bool) {
	for _, src := range Order(&l) {
		if u, i, ok := candidates[src](&l, exclude); ok {
			return Choice{URL: u, Source: src, Index: i}, true
		}
	}
	return Choice{}, false
}
