package normalize

import (
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"CoinPull/internal/domain/models"
)

// Normalizer flattens snapshot entries into rows. Nested objects become dotted
// field names in document order; null and empty-string scalars are left out.
type Normalizer struct {
	identity string
	drop     map[string]struct{}
}

type Option func(*Normalizer)

// WithIdentityField sets the field every row must carry (default "symbol").
func WithIdentityField(name string) Option {
	return func(n *Normalizer) {
		if name != "" {
			n.identity = name
		}
	}
}

// WithDropFields lists top-level keys removed before flattening. Arrays are
// only tolerated under these keys.
func WithDropFields(keys ...string) Option {
	return func(n *Normalizer) {
		for _, k := range keys {
			n.drop[k] = struct{}{}
		}
	}
}

func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		identity: models.DefaultIdentityField,
		drop:     make(map[string]struct{}),
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// IdentityField returns the configured identity field.
func (n *Normalizer) IdentityField() string { return n.identity }

// Normalize turns every well-formed entry into one row stamped with
// collectedAt, in entry order. Malformed entries are skipped and reported.
func (n *Normalizer) Normalize(snap *models.Snapshot, collectedAt time.Time) ([]models.Row, []*models.RecordError) {
	if snap.Len() == 0 {
		return nil, nil
	}

	rows := make([]models.Row, 0, len(snap.Entries))
	var skipped []*models.RecordError

	for i, raw := range snap.Entries {
		row, err := n.normalizeEntry(i, raw, collectedAt)
		if err != nil {
			skipped = append(skipped, err)
			continue
		}
		rows = append(rows, row)
	}
	return rows, skipped
}

func (n *Normalizer) normalizeEntry(index int, raw []byte, collectedAt time.Time) (models.Row, *models.RecordError) {
	if !gjson.ValidBytes(raw) {
		return models.Row{}, &models.RecordError{Index: index, Reason: "invalid JSON"}
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return models.Row{}, &models.RecordError{Index: index, Reason: "entry is not an object"}
	}

	identity := ""
	if id := doc.Get(gjson.Escape(n.identity)); id.Exists() && !id.IsObject() && !id.IsArray() {
		identity = id.String()
	}
	fail := func(format string, a ...interface{}) *models.RecordError {
		return &models.RecordError{Index: index, Identity: identity, Reason: fmt.Sprintf(format, a...)}
	}

	f := &flattener{seen: make(map[string]struct{})}
	var walkErr error
	doc.ForEach(func(key, value gjson.Result) bool {
		name := key.String()
		if _, dropped := n.drop[name]; dropped {
			return true
		}
		// the source's own value never competes with the stamped one
		if name == models.CollectionTimestampField {
			return true
		}
		walkErr = f.walk(name, value)
		return walkErr == nil
	})
	if walkErr != nil {
		return models.Row{}, fail("%v", walkErr)
	}

	v, ok := f.get(n.identity)
	if !ok {
		return models.Row{}, fail("missing identity field %q", n.identity)
	}
	if v.Kind != models.KindString {
		return models.Row{}, fail("identity field %q is a %s, want string", n.identity, v.Kind)
	}

	f.fields = append(f.fields, models.Field{
		Name:  models.CollectionTimestampField,
		Value: models.Timestamp(collectedAt),
	})
	return models.Row{Fields: f.fields}, nil
}

type flattener struct {
	fields []models.Field
	seen   map[string]struct{}
}

func (f *flattener) get(name string) (models.Value, bool) {
	return models.Row{Fields: f.fields}.Get(name)
}

func (f *flattener) walk(path string, value gjson.Result) error {
	switch {
	case value.IsObject():
		var err error
		value.ForEach(func(key, child gjson.Result) bool {
			err = f.walk(path+"."+key.String(), child)
			return err == nil
		})
		return err
	case value.IsArray():
		return fmt.Errorf("array at %q", path)
	}

	var v models.Value
	switch value.Type {
	case gjson.Null:
		return nil
	case gjson.String:
		if value.Str == "" {
			return nil
		}
		v = models.String(value.Str)
	case gjson.Number:
		v = models.Number(value.Num)
	case gjson.True, gjson.False:
		v = models.Bool(value.Bool())
	default:
		return fmt.Errorf("unsupported value at %q", path)
	}

	if _, dup := f.seen[path]; dup {
		return fmt.Errorf("duplicate field %q", path)
	}
	f.seen[path] = struct{}{}
	f.fields = append(f.fields, models.Field{Name: path, Value: v})
	return nil
}
