// Package schedule parses the YAML discussion plan into a typed Schedule
// and extracts the set of distinct agent names it references, mirroring
// the teacher's pkg/config/chain.go nesting (ChainConfig -> StageConfig ->
// StageAgentConfig) one level deeper: Schedule -> Step -> Member.
package schedule

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Schedule is the parsed, typed execution plan (spec §3, §4.1).
type Schedule struct {
	Version               int    `yaml:"version"`
	Repeat                bool   `yaml:"repeat"`
	DiscussionModeSet     bool   `yaml:"-"`
	DiscussionMode        bool   `yaml:"-"`
	Steps                 []Step `yaml:"-"`
}

// StepKind discriminates the closed set of step shapes (spec §3).
type StepKind string

const (
	StepExpert   StepKind = "expert"
	StepParallel StepKind = "parallel"
	StepAll      StepKind = "all"
	StepManual   StepKind = "manual"
)

// Member is one entry of a Parallel step's member list.
type Member struct {
	Name        string
	Instruction string
}

// Step is one element of Schedule.Steps. Exactly the fields relevant to
// Kind are populated; the rest are zero.
type Step struct {
	Kind StepKind

	// Expert
	Name        string
	Instruction string

	// Parallel
	Members []Member

	// Manual
	Author   string
	Content  string
	ReplyTo  *int
	HasReply bool
}

// rawDoc is the top-level YAML shape (spec §6).
type rawDoc struct {
	Version    int            `yaml:"version"`
	Repeat     *bool          `yaml:"repeat"`
	Discussion *bool          `yaml:"discussion"`
	Plan       []yaml.Node    `yaml:"plan"`
}

// rawStep is used to sniff which key is present on a plan element.
type rawStep struct {
	Expert      *string      `yaml:"expert"`
	Instruction string       `yaml:"instruction"`
	Parallel    []yaml.Node  `yaml:"parallel"`
	AllExperts  *bool        `yaml:"all_experts"`
	Manual      *rawManual   `yaml:"manual"`
}

type rawManual struct {
	Author  string `yaml:"author"`
	Content string `yaml:"content"`
	ReplyTo *int   `yaml:"reply_to"`
}

type rawMember struct {
	Expert      *string `yaml:"expert"`
	Instruction string  `yaml:"instruction"`
}

// ParseSchedule parses a YAML document into a Schedule. Failure modes
// listed in spec §4.1 (missing plan, unknown step key, non-scalar where a
// scalar is required) all surface as *BadSchedule.
func ParseSchedule(data []byte) (*Schedule, error) {
	var doc rawDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &BadSchedule{Reason: "invalid YAML: " + err.Error()}
	}

	if doc.Version != 1 {
		return nil, &BadSchedule{Reason: fmt.Sprintf("unsupported version %d, want 1", doc.Version)}
	}
	if doc.Plan == nil {
		return nil, &BadSchedule{Reason: "missing plan"}
	}

	sched := &Schedule{
		Version: doc.Version,
		Repeat:  true,
	}
	if doc.Repeat != nil {
		sched.Repeat = *doc.Repeat
	}
	if doc.Discussion != nil {
		sched.DiscussionModeSet = true
		sched.DiscussionMode = *doc.Discussion
	}

	steps := make([]Step, 0, len(doc.Plan))
	for i, node := range doc.Plan {
		step, err := parseStep(node)
		if err != nil {
			return nil, &BadSchedule{Reason: fmt.Sprintf("plan[%d]: %v", i, err)}
		}
		steps = append(steps, step)
	}
	sched.Steps = steps

	return sched, nil
}

func parseStep(node yaml.Node) (Step, error) {
	var raw rawStep
	if err := node.Decode(&raw); err != nil {
		return Step{}, fmt.Errorf("malformed step: %w", err)
	}

	present := 0
	if raw.Expert != nil {
		present++
	}
	if raw.Parallel != nil {
		present++
	}
	if raw.AllExperts != nil {
		present++
	}
	if raw.Manual != nil {
		present++
	}
	if present == 0 {
		return Step{}, fmt.Errorf("step has none of expert/parallel/all_experts/manual")
	}
	if present > 1 {
		return Step{}, fmt.Errorf("step has more than one of expert/parallel/all_experts/manual")
	}

	switch {
	case raw.Expert != nil:
		return Step{Kind: StepExpert, Name: *raw.Expert, Instruction: raw.Instruction}, nil

	case raw.Parallel != nil:
		members := make([]Member, 0, len(raw.Parallel))
		for i, mn := range raw.Parallel {
			m, err := parseMember(mn)
			if err != nil {
				return Step{}, fmt.Errorf("parallel[%d]: %w", i, err)
			}
			members = append(members, m)
		}
		return Step{Kind: StepParallel, Members: members}, nil

	case raw.AllExperts != nil:
		if !*raw.AllExperts {
			return Step{}, fmt.Errorf("all_experts must be true when present")
		}
		return Step{Kind: StepAll, Instruction: raw.Instruction}, nil

	default: // raw.Manual != nil
		m := raw.Manual
		if m.Author == "" {
			return Step{}, fmt.Errorf("manual step missing author")
		}
		step := Step{Kind: StepManual, Author: m.Author, Content: m.Content}
		if m.ReplyTo != nil {
			step.ReplyTo = m.ReplyTo
			step.HasReply = true
		}
		return step, nil
	}
}

func parseMember(node yaml.Node) (Member, error) {
	if node.Kind == yaml.ScalarNode {
		var name string
		if err := node.Decode(&name); err != nil {
			return Member{}, fmt.Errorf("malformed member: %w", err)
		}
		return Member{Name: name}, nil
	}

	var raw rawMember
	if err := node.Decode(&raw); err != nil {
		return Member{}, fmt.Errorf("malformed member: %w", err)
	}
	if raw.Expert == nil {
		return Member{}, fmt.Errorf("member map must set expert")
	}
	return Member{Name: *raw.Expert, Instruction: raw.Instruction}, nil
}

// ReferencedAgentNames returns the ordered, de-duplicated list of every
// non-manual agent name literal appearing in the schedule (spec §4.1),
// used by the resolver to build its pool.
func (s *Schedule) ReferencedAgentNames() []string {
	seen := make(map[string]bool)
	var names []string
	add := func(n string) {
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	for _, step := range s.Steps {
		switch step.Kind {
		case StepExpert:
			add(step.Name)
		case StepParallel:
			for _, m := range step.Members {
				add(m.Name)
			}
		case StepAll, StepManual:
			// All has no literal names; Manual names no agent.
		}
	}
	return names
}
