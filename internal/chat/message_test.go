package chat

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUserMessage(t *testing.T) {
	m := NewUserMessage("hello there")

	assert.Equal(t, RoleUser, m.Role)
	assert.Equal(t, StatusCompleted, m.Status)
	assert.False(t, m.IsStreaming)
	require.Len(t, m.Parts, 1)
	assert.Equal(t, PartText, m.Parts[0].Type)
	assert.Equal(t, "hello there", m.Parts[0].Text)
	assert.NotEmpty(t, m.ID)
}

func TestNewUserMessage_Empty(t *testing.T) {
	m := NewUserMessage("")
	assert.Empty(t, m.Parts)
	assert.Equal(t, StatusCompleted, m.Status)
}

func TestNewAssistantPlaceholder(t *testing.T) {
	m := NewAssistantPlaceholder()

	assert.Equal(t, RoleAssistant, m.Role)
	assert.Equal(t, StatusStreaming, m.Status)
	assert.True(t, m.IsStreaming)
	assert.Empty(t, m.Parts)
}

func TestAppend_Coalesces(t *testing.T) {
	m := NewAssistantPlaceholder()

	// Derived content must equal the concatenation of inputs in order,
	// and consecutive text deltas must coalesce into one part.
	deltas := []string{"The ", "quick ", "brown ", "fox"}
	var want string
	for _, d := range deltas {
		m.Append(d)
		want += d
	}

	assert.Equal(t, want, m.Content())
	require.Len(t, m.Parts, 1)
	assert.Equal(t, want, m.Parts[0].Text)
}

func TestAppend_EmptyIsNoOp(t *testing.T) {
	m := NewAssistantPlaceholder()
	before := m.UpdatedAt

	m.Append("")

	assert.Empty(t, m.Parts)
	assert.Equal(t, before, m.UpdatedAt)
}

func TestAppend_AfterNonTextPart(t *testing.T) {
	m := NewAssistantPlaceholder()
	m.Append("first")
	m.ReplaceParts(append(m.Parts, ReasoningPart("thinking...")))
	m.Append("second")

	require.Len(t, m.Parts, 3)
	assert.Equal(t, PartReasoning, m.Parts[1].Type)
	assert.Equal(t, "second", m.Parts[2].Text)
	assert.Equal(t, "firstsecond", m.Content())
}

func TestComplete_FullReplace(t *testing.T) {
	m := NewAssistantPlaceholder()
	m.Append("partial")
	m.ReplaceParts(append(m.Parts, ReasoningPart("scratch"), Part{
		Type: PartToolInvocation,
		ToolInvocation: &ToolInvocation{
			ToolName: "search", ToolCallID: "t1", State: "call",
			Args: map[string]interface{}{"q": "go"},
		},
	}))

	m.Complete("x")

	// Regardless of prior parts: exactly one text part, completed, not streaming.
	require.Len(t, m.Parts, 1)
	assert.Equal(t, TextPart("x"), m.Parts[0])
	assert.Equal(t, StatusCompleted, m.Status)
	assert.False(t, m.IsStreaming)
}

func TestComplete_WithoutFinalText(t *testing.T) {
	m := NewAssistantPlaceholder()
	m.Append("kept")
	m.Complete()

	assert.Equal(t, "kept", m.Content())
	assert.Equal(t, StatusCompleted, m.Status)
}

func TestFail_LeavesParts(t *testing.T) {
	m := NewAssistantPlaceholder()
	m.Append("partial answer")
	m.Fail()

	assert.Equal(t, StatusErrored, m.Status)
	assert.False(t, m.IsStreaming)
	assert.Equal(t, "partial answer", m.Content())
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusQueued.Terminal())
	assert.False(t, StatusStreaming.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusErrored.Terminal())
}

func TestSerializeRoundTrip(t *testing.T) {
	m := NewAssistantPlaceholder()
	m.Append("hello ")
	m.ReplaceParts(append(m.Parts,
		ReasoningPart("let me think"),
		Part{Type: PartToolInvocation, ToolInvocation: &ToolInvocation{
			ToolName:   "lookup",
			ToolCallID: "call-1",
			State:      "result",
			Result:     map[string]interface{}{"answer": float64(42)},
		}},
	))
	m.Attachments = []Attachment{{
		ID: "a1", Name: "plan.md", Type: "text/markdown", URL: "blob:1",
		Metadata: map[string]interface{}{"size": float64(12)},
	}}
	m.Complete()

	snap := m.Serialize()

	// The snapshot itself must survive JSON, since that is how it is stored.
	data, err := json.Marshal(snap)
	require.NoError(t, err)
	var decoded Snapshot
	require.NoError(t, json.Unmarshal(data, &decoded))

	back, err := Deserialize(decoded)
	require.NoError(t, err)

	assert.Equal(t, m.ID, back.ID)
	assert.Equal(t, m.Role, back.Role)
	assert.Equal(t, m.Status, back.Status)
	assert.Equal(t, m.IsStreaming, back.IsStreaming)
	assert.True(t, m.CreatedAt.Equal(back.CreatedAt))
	assert.True(t, m.UpdatedAt.Equal(back.UpdatedAt))
	if diff := cmp.Diff(m.Parts, back.Parts); diff != "" {
		t.Errorf("parts mismatch after round trip (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(m.Attachments, back.Attachments); diff != "" {
		t.Errorf("attachments mismatch after round trip (-want +got):\n%s", diff)
	}
}

func TestSerialize_DerivedContent(t *testing.T) {
	m := NewAssistantPlaceholder()
	m.Append("a")
	m.ReplaceParts(append(m.Parts, ReasoningPart("hidden")))
	m.Append("b")

	snap := m.Serialize()
	assert.Equal(t, "ab", snap.Content)
}

func TestDeserialize_BadTimestamp(t *testing.T) {
	_, err := Deserialize(Snapshot{ID: "x", CreatedAt: "yesterday", UpdatedAt: "now"})
	assert.Error(t, err)
}

func TestClone_Isolation(t *testing.T) {
	m := NewAssistantPlaceholder()
	m.ReplaceParts([]Part{
		TextPart("base"),
		{Type: PartToolInvocation, ToolInvocation: &ToolInvocation{
			ToolName:   "calc",
			ToolCallID: "c1",
			State:      "call",
			Args:       map[string]interface{}{"nested": map[string]interface{}{"n": float64(1)}},
		}},
	})

	clone := m.Clone()
	clone.Append("!")
	clone.Parts[1].ToolInvocation.Args["nested"].(map[string]interface{})["n"] = float64(99)

	assert.Equal(t, "base", m.Parts[0].Text)
	assert.Equal(t, float64(1),
		m.Parts[1].ToolInvocation.Args["nested"].(map[string]interface{})["n"])
}
