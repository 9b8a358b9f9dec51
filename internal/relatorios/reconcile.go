// Package relatorios reports on stored attachments versus the letters that
// reference them.
package relatorios

import (
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/noel-cartinhas/noel/internal/cartas"
	"github.com/noel-cartinhas/noel/internal/storage"
)

// Entry is one object in a report.
type Entry struct {
	ObjectName   string    `json:"object_name"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	ThumbObject  *string   `json:"thumb_object,omitempty"`
	LetterNumber *int      `json:"letter_number,omitempty"`
}

// Report partitions a bucket listing.
type Report struct {
	Orphaned   []Entry `json:"orphaned"`
	Referenced []Entry `json:"referenced"`
}

// ExtractObjectName recovers the object name from a stored attachment
// value. Values are either bare object names or full URLs, possibly
// presigned, of the form scheme://host/{bucket}/{object}?query.
func ExtractObjectName(stored, bucket string) string {
	s := strings.TrimSpace(stored)
	if s == "" {
		return ""
	}
	if strings.HasPrefix(s, storage.Prefix) {
		return s
	}
	if i := strings.IndexByte(s, '?'); i >= 0 {
		s = s[:i]
	}

	var name string
	if marker := "/" + bucket + "/"; bucket != "" && strings.Contains(s, marker) {
		name = s[strings.Index(s, marker)+len(marker):]
	} else if i := strings.Index(s, storage.Prefix); i >= 0 {
		name = s[i:]
	}
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	return name
}

// referenced returns the set of referenced object names and, for main
// objects with a stored thumbnail, the thumbnail's name.
func referenced(refs []cartas.AttachmentRef, bucket string) (map[string]int, map[string]string) {
	names := make(map[string]int)
	thumbs := make(map[string]string)
	for _, r := range refs {
		main := ExtractObjectName(r.AttachmentURL, bucket)
		thumb := ExtractObjectName(r.ThumbnailURL, bucket)
		if main != "" {
			names[main] = r.LetterNumber
		}
		if thumb != "" {
			names[thumb] = r.LetterNumber
			if main != "" {
				thumbs[main] = thumb
			}
		}
	}
	return names, thumbs
}

// Reconcile splits objs into referenced and orphaned entries. Thumbnails
// never appear as orphans; they ride along with their main object.
func Reconcile(objs []storage.Object, refs []cartas.AttachmentRef, bucket string) Report {
	names, thumbOf := referenced(refs, bucket)

	listed := make(map[string]bool, len(objs))
	for _, o := range objs {
		listed[o.Name] = true
	}

	sorted := append([]storage.Object(nil), objs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	rep := Report{Orphaned: []Entry{}, Referenced: []Entry{}}
	for _, o := range sorted {
		e := Entry{ObjectName: o.Name, Size: o.Size, LastModified: o.LastModified}

		if n, ok := names[o.Name]; ok {
			e.LetterNumber = &n
			thumb := thumbOf[o.Name]
			if thumb == "" {
				thumb = storage.ThumbName(o.Name)
			}
			if thumb != o.Name && listed[thumb] {
				e.ThumbObject = &thumb
			}
			rep.Referenced = append(rep.Referenced, e)
			continue
		}

		if storage.IsThumb(o.Name) {
			continue
		}
		if thumb := storage.ThumbName(o.Name); listed[thumb] {
			e.ThumbObject = &thumb
		}
		if n, ok := storage.LetterNumberOf(o.Name); ok {
			e.LetterNumber = &n
		}
		rep.Orphaned = append(rep.Orphaned, e)
	}
	return rep
}
