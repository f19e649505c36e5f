// Package settings defines the user preferences that drive matching and badge
// styling, and a Provider that loads and persists them through a key-value store.
package settings

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
)

// ErrInvalid reports a value outside its enumeration.
var ErrInvalid = errors.New("settings: invalid value")

// Storage keys.
const (
	KeyLanguage   = "dub-badge-lang"
	KeyConfidence = "dub-badge-conf"
	KeyPosition   = "dub-badge-pos"
	KeyColor      = "dub-badge-color"
	KeyDebug      = "dub-badge-debug"
)

// Keys lists every storage key in load order.
var Keys = []string{KeyLanguage, KeyConfidence, KeyPosition, KeyColor, KeyDebug}

// DefaultLanguage is used when nothing is stored.
const DefaultLanguage = "english"

// Languages are the dataset languages published upstream.
var Languages = []string{
	"arabic", "catalan", "chinese", "danish", "dutch", "english", "finnish",
	"french", "german", "hebrew", "hindi", "hungarian", "indonesian", "italian",
	"japanese", "korean", "lithuanian", "norwegian", "polish", "portuguese",
	"russian", "spanish", "swedish", "tagalog", "thai", "turkish", "vietnamese",
}

// Confidence tiers published upstream, lowest first.
var Confidences = []string{"low", "normal", "high", "very-high"}

// Position places the badge relative to a competing status badge.
type Position string

// Badge positions.
const (
	PositionBeside Position = "beside"
	PositionBelow  Position = "below"
)

// Positions lists valid positions.
var Positions = []Position{PositionBeside, PositionBelow}

// Color selects the badge palette.
type Color string

// Badge colors.
const (
	ColorDefault Color = "default"
	ColorRed     Color = "red"
	ColorGreen   Color = "green"
	ColorBlue    Color = "blue"
	ColorOrange  Color = "orange"
)

// Colors lists valid colors.
var Colors = []Color{ColorDefault, ColorRed, ColorGreen, ColorBlue, ColorOrange}

// Snapshot is an immutable view of the settings, taken once per batch.
type Snapshot struct {
	Language   string   `json:"language"`
	Confidence string   `json:"confidence"`
	Position   Position `json:"position"`
	Color      Color    `json:"color"`
	Debug      bool     `json:"debug"`
}

// DefaultConfidence is normal for English and low for every other language.
func DefaultConfidence(language string) string {
	if language == DefaultLanguage {
		return "normal"
	}
	return "low"
}

// Defaults returns the settings used when nothing is stored.
func Defaults() Snapshot {
	return Snapshot{
		Language:   DefaultLanguage,
		Confidence: DefaultConfidence(DefaultLanguage),
		Position:   PositionBeside,
		Color:      ColorDefault,
	}
}

// Validate checks every field against its enumeration.
func (s Snapshot) Validate() error {
	if !slices.Contains(Languages, s.Language) {
		return fmt.Errorf("%w: language %q", ErrInvalid, s.Language)
	}
	if !slices.Contains(Confidences, s.Confidence) {
		return fmt.Errorf("%w: confidence %q", ErrInvalid, s.Confidence)
	}
	if !slices.Contains(Positions, s.Position) {
		return fmt.Errorf("%w: position %q", ErrInvalid, s.Position)
	}
	if !slices.Contains(Colors, s.Color) {
		return fmt.Errorf("%w: color %q", ErrInvalid, s.Color)
	}
	return nil
}

// SameEpoch reports whether both snapshots select the same dataset.
func (s Snapshot) SameEpoch(o Snapshot) bool {
	return s.Language == o.Language && s.Confidence == o.Confidence
}

// Values encodes the snapshot as storage key-value pairs.
func (s Snapshot) Values() map[string]string {
	return map[string]string{
		KeyLanguage:   s.Language,
		KeyConfidence: s.Confidence,
		KeyPosition:   string(s.Position),
		KeyColor:      string(s.Color),
		KeyDebug:      strconv.FormatBool(s.Debug),
	}
}

// FromValues decodes stored values. Missing or empty entries take their
// default; invalid entries take their default and are reported in the error.
func FromValues(values map[string]string) (Snapshot, error) {
	var errs []error
	get := func(key, def string) string {
		if v := values[key]; v != "" {
			return v
		}
		return def
	}

	s := Defaults()
	s.Language = get(KeyLanguage, DefaultLanguage)
	if !slices.Contains(Languages, s.Language) {
		errs = append(errs, fmt.Errorf("%w: language %q", ErrInvalid, s.Language))
		s.Language = DefaultLanguage
	}
	s.Confidence = get(KeyConfidence, DefaultConfidence(s.Language))
	if !slices.Contains(Confidences, s.Confidence) {
		errs = append(errs, fmt.Errorf("%w: confidence %q", ErrInvalid, s.Confidence))
		s.Confidence = DefaultConfidence(s.Language)
	}
	s.Position = Position(get(KeyPosition, string(PositionBeside)))
	if !slices.Contains(Positions, s.Position) {
		errs = append(errs, fmt.Errorf("%w: position %q", ErrInvalid, s.Position))
		s.Position = PositionBeside
	}
	s.Color = Color(get(KeyColor, string(ColorDefault)))
	if !slices.Contains(Colors, s.Color) {
		errs = append(errs, fmt.Errorf("%w: color %q", ErrInvalid, s.Color))
		s.Color = ColorDefault
	}
	debug, err := strconv.ParseBool(get(KeyDebug, "false"))
	if err != nil {
		errs = append(errs, fmt.Errorf("%w: debug %q", ErrInvalid, values[KeyDebug]))
	}
	s.Debug = debug
	return s, errors.Join(errs...)
}
