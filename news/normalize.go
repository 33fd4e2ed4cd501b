package news

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robertmeta/newsdesk/model"
)

// Text is a JSON scalar read as a string. Numbers keep their literal form,
// true becomes "true", and false, null, objects and arrays become "".
type Text string

// UnmarshalJSON implements json.Unmarshaler.
func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		*t = ""
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
	case 't':
		*t = "true"
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		*t = Text(data)
	default:
		*t = ""
	}
	return nil
}

// Raw is an article as the API sends it, before any defaults are applied.
type Raw struct {
	MongoID     Text            `json:"_id"`
	ID          Text            `json:"id"`
	Slug        Text            `json:"slug"`
	Title       Text            `json:"title"`
	Excerpt     Text            `json:"excerpt"`
	Content     Text            `json:"content"`
	Image       json.RawMessage `json:"image"`
	Author      Text            `json:"author"`
	Published   json.RawMessage `json:"published"`
	PublishedAt Text            `json:"publishedAt"`
	Date        Text            `json:"date"`
	Categories  json.RawMessage `json:"categories"`
	CreatedAt   Text            `json:"createdAt"`
	UpdatedAt   Text            `json:"updatedAt"`
}

// RawFrom converts a normalized record back into its wire form.
func RawFrom(n model.News) Raw {
	image, _ := json.Marshal(n.Image)
	categories, _ := json.Marshal(n.Categories)
	published, _ := json.Marshal(n.Published)
	return Raw{
		MongoID:     Text(n.ID),
		Slug:        Text(n.Slug),
		Title:       Text(n.Title),
		Excerpt:     Text(n.Excerpt),
		Content:     Text(n.Content),
		Image:       image,
		Author:      Text(n.Author),
		Published:   published,
		PublishedAt: Text(n.PublishedAt),
		Date:        Text(n.Date),
		Categories:  categories,
		CreatedAt:   Text(n.CreatedAt),
		UpdatedAt:   Text(n.UpdatedAt),
	}
}

// NormalizerOption configures a Normalizer.
type NormalizerOption func(*Normalizer)

// WithClock sets the time source used for missing timestamps.
func WithClock(now func() time.Time) NormalizerOption {
	return func(n *Normalizer) {
		n.now = now
	}
}

// WithIDGenerator sets the generator used for records without an id.
func WithIDGenerator(newID func() string) NormalizerOption {
	return func(n *Normalizer) {
		n.newID = newID
	}
}

// Normalizer applies the field defaults that turn a Raw into a model.News.
// Every source funnels its records through one.
type Normalizer struct {
	now   func() time.Time
	newID func() string
}

// NewNormalizer creates a Normalizer using the wall clock and random ids.
func NewNormalizer(opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{
		now: time.Now,
		newID: func() string {
			return "temp-" + uuid.NewString()
		},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize fills every missing field of raw.
func (n *Normalizer) Normalize(raw Raw) model.News {
	fetchedAt := model.FormatTimestamp(n.now())

	id := firstNonEmpty(string(raw.MongoID), string(raw.ID))
	if id == "" {
		id = n.newID()
	}

	return model.News{
		ID:          id,
		Slug:        firstNonEmpty(string(raw.Slug), "news-"+id),
		Title:       firstNonEmpty(string(raw.Title), model.DefaultTitle),
		Excerpt:     firstNonEmpty(string(raw.Excerpt), model.DefaultExcerpt),
		Content:     string(raw.Content),
		Image:       resolveImage(raw.Image),
		Author:      firstNonEmpty(string(raw.Author), model.DefaultAuthor),
		PublishedAt: firstNonEmpty(string(raw.PublishedAt), string(raw.CreatedAt), fetchedAt),
		Date:        firstNonEmpty(string(raw.Date), model.FormatDate(firstNonEmpty(string(raw.PublishedAt), string(raw.CreatedAt)))),
		Categories:  resolveCategories(raw.Categories),
		Published:   resolvePublished(raw.Published),
		CreatedAt:   firstNonEmpty(string(raw.CreatedAt), fetchedAt),
		UpdatedAt:   firstNonEmpty(string(raw.UpdatedAt), fetchedAt),
	}
}

// NormalizeBatch decodes and normalizes a list of raw elements. Elements
// that are not JSON objects are skipped, as are records repeating an id
// already seen in the batch.
func (n *Normalizer) NormalizeBatch(elems []json.RawMessage) []model.News {
	out := make([]model.News, 0, len(elems))
	seen := make(map[string]struct{}, len(elems))
	for _, elem := range elems {
		raw, ok := decodeRaw(elem)
		if !ok {
			continue
		}
		rec := n.Normalize(raw)
		if _, dup := seen[rec.ID]; dup {
			continue
		}
		seen[rec.ID] = struct{}{}
		out = append(out, rec)
	}
	return out
}

func decodeRaw(elem json.RawMessage) (Raw, bool) {
	elem = bytes.TrimSpace(elem)
	if len(elem) == 0 || elem[0] != '{' {
		return Raw{}, false
	}
	var raw Raw
	if err := json.Unmarshal(elem, &raw); err != nil {
		return Raw{}, false
	}
	return raw, true
}

func resolveImage(data json.RawMessage) string {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return model.PlaceholderImage
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err == nil && s != "" {
			return s
		}
	case '{':
		var obj struct {
			URL Text `json:"url"`
		}
		if err := json.Unmarshal(data, &obj); err == nil && obj.URL != "" {
			return string(obj.URL)
		}
	}
	return model.PlaceholderImage
}

func resolveCategories(data json.RawMessage) []string {
	categories := []string{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '[' {
		return categories
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return categories
	}
	for _, elem := range elems {
		var name string
		if err := json.Unmarshal(elem, &name); err != nil {
			continue
		}
		if strings.TrimSpace(name) == "" {
			continue
		}
		categories = append(categories, name)
	}
	return categories
}

// resolvePublished keeps only an explicit false.
func resolvePublished(data json.RawMessage) bool {
	return string(bytes.TrimSpace(data)) != "false"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
