package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSchedule_Expert(t *testing.T) {
	doc := `
version: 1
repeat: true
plan:
  - expert: "creative#temp#1"
`
	s, err := ParseSchedule([]byte(doc))
	require.NoError(t, err)
	require.Len(t, s.Steps, 1)
	assert.Equal(t, StepExpert, s.Steps[0].Kind)
	assert.Equal(t, "creative#temp#1", s.Steps[0].Name)
	assert.True(t, s.Repeat)
}

func TestParseSchedule_ParallelMixedScalarAndMap(t *testing.T) {
	doc := `
version: 1
repeat: false
plan:
  - parallel:
      - "a#temp#1"
      - expert: "b#temp#1"
        instruction: "be brief"
  - expert: "c#temp#1"
`
	s, err := ParseSchedule([]byte(doc))
	require.NoError(t, err)
	require.Len(t, s.Steps, 2)

	par := s.Steps[0]
	require.Equal(t, StepParallel, par.Kind)
	require.Len(t, par.Members, 2)
	assert.Equal(t, "a#temp#1", par.Members[0].Name)
	assert.Equal(t, "b#temp#1", par.Members[1].Name)
	assert.Equal(t, "be brief", par.Members[1].Instruction)

	assert.Equal(t, StepExpert, s.Steps[1].Kind)
	assert.Equal(t, "c#temp#1", s.Steps[1].Name)
}

func TestParseSchedule_AllExperts(t *testing.T) {
	doc := `
version: 1
repeat: true
plan:
  - all_experts: true
    instruction: "vote now"
`
	s, err := ParseSchedule([]byte(doc))
	require.NoError(t, err)
	require.Len(t, s.Steps, 1)
	assert.Equal(t, StepAll, s.Steps[0].Kind)
	assert.Equal(t, "vote now", s.Steps[0].Instruction)
}

func TestParseSchedule_Manual(t *testing.T) {
	doc := `
version: 1
repeat: true
plan:
  - manual:
      author: host
      content: rule
  - expert: "x#temp#1"
`
	s, err := ParseSchedule([]byte(doc))
	require.NoError(t, err)
	require.Len(t, s.Steps, 2)
	m := s.Steps[0]
	assert.Equal(t, StepManual, m.Kind)
	assert.Equal(t, "host", m.Author)
	assert.Equal(t, "rule", m.Content)
	assert.False(t, m.HasReply)
}

func TestParseSchedule_ManualWithReplyTo(t *testing.T) {
	doc := `
version: 1
repeat: true
plan:
  - manual:
      author: host
      content: rule
      reply_to: 1
`
	s, err := ParseSchedule([]byte(doc))
	require.NoError(t, err)
	m := s.Steps[0]
	require.True(t, m.HasReply)
	assert.Equal(t, 1, *m.ReplyTo)
}

func TestParseSchedule_MissingPlan(t *testing.T) {
	doc := `
version: 1
repeat: true
`
	_, err := ParseSchedule([]byte(doc))
	require.Error(t, err)
	assert.IsType(t, &BadSchedule{}, err)
}

func TestParseSchedule_UnknownVersion(t *testing.T) {
	doc := `
version: 2
plan:
  - expert: "a#temp#1"
`
	_, err := ParseSchedule([]byte(doc))
	require.Error(t, err)
}

func TestParseSchedule_StepWithNoKnownKey(t *testing.T) {
	doc := `
version: 1
plan:
  - foo: bar
`
	_, err := ParseSchedule([]byte(doc))
	require.Error(t, err)
}

func TestParseSchedule_DiscussionOverride(t *testing.T) {
	doc := `
version: 1
discussion: false
plan:
  - expert: "a#temp#1"
`
	s, err := ParseSchedule([]byte(doc))
	require.NoError(t, err)
	assert.True(t, s.DiscussionModeSet)
	assert.False(t, s.DiscussionMode)
}

func TestReferencedAgentNames_OrderedDeduplicated(t *testing.T) {
	doc := `
version: 1
plan:
  - expert: "a#temp#1"
  - parallel:
      - "b#temp#1"
      - "a#temp#1"
  - all_experts: true
  - manual:
      author: host
      content: hi
`
	s, err := ParseSchedule([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, []string{"a#temp#1", "b#temp#1"}, s.ReferencedAgentNames())
}
