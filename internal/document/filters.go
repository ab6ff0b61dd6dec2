package document

import (
	"strings"

	"go.uber.org/zap"
)

// Filter is a single resolution step. Steps never fail and only drop entries
// that are not resumes at all; unreadable resumes are left for extraction.
type Filter interface {
	Name() string
	IsEnabled() bool
	Apply(refs []Ref) ([]Ref, Step)
}

// Step describes the result of executing a filtering step.
type Step struct {
	Initial int
	Dropped int
	Left    int
}

// Status represents runtime information about a filter.
type Status struct {
	Name    string
	Enabled bool
	Details map[string]string
}

func runFilters(logger *zap.Logger, steps []Filter, refs []Ref) []Ref {
	for _, step := range steps {
		if !step.IsEnabled() {
			continue
		}

		var info Step
		refs, info = step.Apply(refs)

		logger.Debug("filter step",
			zap.String("name", step.Name()),
			zap.Int("initial", info.Initial),
			zap.Int("dropped", info.Dropped),
			zap.Int("left", info.Left),
		)
	}
	return refs
}

// keep is an order-preserving in-place filter.
func keep(refs []Ref, pred func(*Ref) bool) ([]Ref, []string) {
	kept := refs[:0]
	var dropped []string
	for i := range refs {
		if pred(&refs[i]) {
			kept = append(kept, refs[i])
			continue
		}
		dropped = append(dropped, refs[i].Name)
	}
	return kept, dropped
}

type extensionFilter struct {
	logger *zap.Logger
}

// NewExtension creates a filter that keeps supported extensions and assigns the declared format.
func NewExtension(logger *zap.Logger) Filter {
	return &extensionFilter{logger: logger}
}

func (f *extensionFilter) Name() string { return "extension" }

func (f *extensionFilter) IsEnabled() bool { return true }

func (f *extensionFilter) Apply(refs []Ref) ([]Ref, Step) {
	initial := len(refs)
	kept, dropped := keep(refs, func(r *Ref) bool {
		format, ok := FormatFromName(r.Name)
		r.Format = format
		return ok
	})

	if len(dropped) > 0 {
		f.logger.Debug("skipping unsupported documents",
			zap.Strings("skipped", dropped),
			zap.Strings("supported", SupportedExtensions()),
		)
	}

	return kept, Step{Initial: initial, Dropped: len(dropped), Left: len(kept)}
}

func (f *extensionFilter) Status() Status {
	return Status{Name: f.Name(), Enabled: true, Details: map[string]string{
		"extensions": strings.Join(SupportedExtensions(), ","),
	}}
}

// Describe returns status entries for the provided filters.
func Describe(steps []Filter) []Status {
	statuses := make([]Status, 0, len(steps))
	for _, step := range steps {
		if reporter, ok := step.(interface{ Status() Status }); ok {
			statuses = append(statuses, reporter.Status())
			continue
		}
		statuses = append(statuses, Status{Name: step.Name(), Enabled: step.IsEnabled()})
	}
	return statuses
}
