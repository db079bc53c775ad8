package cpp

import (
	"fmt"
	"strings"
)

// Feature is an optional preprocessor behaviour.
type Feature int

const (
	FeatureDigraphs    Feature = iota // recognise <: :> <% %> %: %:%:
	FeatureTrigraphs                  // translate ??x sequences
	FeatureLineMarkers                // emit # N "file" markers on file transitions
	FeatureKeepComments               // pass comments through instead of replacing them
	FeaturePragmaOnce                 // honour #pragma once and include guards
	FeatureDebug                      // trace expansion through the logger
)

var featureNames = [...]string{
	FeatureDigraphs:     "digraphs",
	FeatureTrigraphs:    "trigraphs",
	FeatureLineMarkers:  "linemarkers",
	FeatureKeepComments: "keepcomments",
	FeaturePragmaOnce:   "pragma-once",
	FeatureDebug:        "debug",
}

func (f Feature) String() string {
	if f < 0 || int(f) >= len(featureNames) {
		return fmt.Sprintf("Feature(%d)", int(f))
	}
	return featureNames[f]
}

// ParseFeature looks a feature up by name.
func ParseFeature(name string) (Feature, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range featureNames {
		if n == name {
			return Feature(i), nil
		}
	}
	return 0, fmt.Errorf("unknown feature %q", name)
}

// FeatureSet is a set of features.
type FeatureSet uint32

func (s FeatureSet) Has(f Feature) bool { return s&(1<<f) != 0 }

func (s *FeatureSet) Add(f Feature) { *s |= 1 << f }

func (s *FeatureSet) Remove(f Feature) { *s &^= 1 << f }

// Warning is a category of optional diagnostic.
type Warning int

const (
	WarnTrigraphs    Warning = iota // trigraph sequences in the input
	WarnImport                      // use of #import
	WarnUndef                       // undefined identifier evaluated in #if
	WarnEndifLabels                 // extra tokens after #else or #endif
	WarnError                       // treat warnings as errors
)

var warningNames = [...]string{
	WarnTrigraphs:   "trigraphs",
	WarnImport:      "import",
	WarnUndef:       "undef",
	WarnEndifLabels: "endif-labels",
	WarnError:       "error",
}

func (w Warning) String() string {
	if w < 0 || int(w) >= len(warningNames) {
		return fmt.Sprintf("Warning(%d)", int(w))
	}
	return warningNames[w]
}

// ParseWarning looks a warning category up by name. "all" is not a
// category; use AllWarnings.
func ParseWarning(name string) (Warning, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range warningNames {
		if n == name {
			return Warning(i), nil
		}
	}
	return 0, fmt.Errorf("unknown warning %q", name)
}

// WarningSet is a set of warning categories.
type WarningSet uint32

func (s WarningSet) Has(w Warning) bool { return s&(1<<w) != 0 }

func (s *WarningSet) Add(w Warning) { *s |= 1 << w }

func (s *WarningSet) Remove(w Warning) { *s &^= 1 << w }

// AllWarnings enables every category except WarnError.
func AllWarnings() WarningSet {
	var s WarningSet
	for w := range warningNames {
		if Warning(w) != WarnError {
			s.Add(Warning(w))
		}
	}
	return s
}
