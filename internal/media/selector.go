package media

import "strings"

// Selector names a quality class used to pick a rendition.
type Selector string

const (
	// SelectHighest picks the best muxed audio+video rendition.
	SelectHighest Selector = "highest"
	// SelectLowest picks the smallest muxed audio+video rendition.
	SelectLowest Selector = "lowest"
	// SelectHighestAudio picks the audio-only rendition with the highest bitrate.
	SelectHighestAudio Selector = "highestaudio"
	// SelectLowestAudio picks the audio-only rendition with the lowest bitrate.
	SelectLowestAudio Selector = "lowestaudio"
	// SelectHighestVideo picks the rendition with the largest picture, muxed or not.
	SelectHighestVideo Selector = "highestvideo"
)

var selectors = map[string]Selector{
	string(SelectHighest):      SelectHighest,
	string(SelectLowest):       SelectLowest,
	string(SelectHighestAudio): SelectHighestAudio,
	string(SelectLowestAudio):  SelectLowestAudio,
	string(SelectHighestVideo): SelectHighestVideo,
}

// ParseSelector resolves a quality class name.
func ParseSelector(s string) (Selector, bool) {
	sel, ok := selectors[strings.ToLower(strings.TrimSpace(s))]
	return sel, ok
}

// Select returns the rendition matching sel. There is no fallback across
// classes: if nothing in the class exists, ok is false.
func (m *Metadata) Select(sel Selector) (Rendition, bool) {
	var (
		match  func(Rendition) bool
		better func(a, b Rendition) bool
	)

	muxed := func(r Rendition) bool { return r.HasVideo() && r.HasAudio() }
	audioOnly := func(r Rendition) bool { return r.HasAudio() && !r.HasVideo() }

	switch sel {
	case SelectHighest:
		match, better = muxed, largerPicture
	case SelectLowest:
		match, better = muxed, func(a, b Rendition) bool { return largerPicture(b, a) }
	case SelectHighestAudio:
		match, better = audioOnly, func(a, b Rendition) bool { return a.Bitrate > b.Bitrate }
	case SelectLowestAudio:
		match, better = audioOnly, func(a, b Rendition) bool { return a.Bitrate < b.Bitrate }
	case SelectHighestVideo:
		match, better = Rendition.HasVideo, largerPicture
	default:
		return Rendition{}, false
	}

	var (
		best  Rendition
		found bool
	)
	for _, r := range m.Renditions {
		if r.URL == "" || !match(r) {
			continue
		}
		if !found || better(r, best) {
			best, found = r, true
		}
	}
	return best, found
}

func largerPicture(a, b Rendition) bool {
	if a.Height != b.Height {
		return a.Height > b.Height
	}
	return a.Bitrate > b.Bitrate
}
