package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainErrorFormat(t *testing.T) {
	err := NewDomainError("Coordinator.Handle", ErrAgentNotFound, "agent 'assistant'")
	want := "Coordinator.Handle: agent 'assistant': agent not found"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorFormatNoDetail(t *testing.T) {
	err := NewDomainError("Agent.Process", ErrEmptyResponse, "")
	want := "Agent.Process: empty model response"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorUnwrap(t *testing.T) {
	err := NewDomainError("Registry.Get", ErrProviderNotFound, "groq")
	if !errors.Is(err, ErrProviderNotFound) {
		t.Error("errors.Is should match ErrProviderNotFound")
	}
}

func TestDomainErrorAs(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewDomainError("LLM.Chat", ErrProviderNotFound, "groq"))
	var de *DomainError
	if !errors.As(err, &de) {
		t.Fatal("errors.As should match *DomainError")
	}
	if de.Op != "LLM.Chat" {
		t.Errorf("Op = %q, want %q", de.Op, "LLM.Chat")
	}
}

func TestFragmentError(t *testing.T) {
	err := &FragmentError{Kind: FragmentEssence, Name: "guardian", Err: ErrMissingField, Detail: "Tag"}
	assert.Equal(t, `essence "guardian": missing required field: Tag`, err.Error())
	assert.ErrorIs(t, err, ErrMissingField)
	assert.Equal(t, CodeMissingField, ErrorCodeOf(fmt.Errorf("load: %w", err)))

	bare := &FragmentError{Kind: FragmentRoom, Name: "atrium", Err: ErrFragmentNotFound}
	assert.Equal(t, `room "atrium": fragment not found`, bare.Error())
}

func TestErrorCodeOf_DirectSentinel(t *testing.T) {
	assert.Equal(t, CodeAgentNotFound, ErrorCodeOf(ErrAgentNotFound))
	assert.Equal(t, CodeFragmentNotFound, ErrorCodeOf(ErrFragmentNotFound))
	assert.Equal(t, CodeRateLimit, ErrorCodeOf(ErrRateLimit))
}

func TestErrorCodeOf_WrappedError(t *testing.T) {
	wrapped := fmt.Errorf("context: %w", ErrBackendUnavailable)
	assert.Equal(t, CodeBackendUnavailable, ErrorCodeOf(wrapped))
}

func TestErrorCodeOf_UnknownError(t *testing.T) {
	assert.Equal(t, CodeUnknown, ErrorCodeOf(fmt.Errorf("some random error")))
}

func TestErrorCodeOf_Nil(t *testing.T) {
	assert.Equal(t, CodeUnknown, ErrorCodeOf(nil))
}

func TestAllSentinelsHaveCodes(t *testing.T) {
	require.NotEmpty(t, errorCodeMap)
	for sentinel, code := range errorCodeMap {
		assert.NotEmpty(t, code, "sentinel %v has empty code", sentinel)
		assert.NotEqual(t, CodeUnknown, code, "sentinel %v maps to UNKNOWN", sentinel)
	}
}

func TestErrorCodeOf_SubSystem(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"agent not found", NewSubSystemError("agent", "Get", ErrNotFound, "x"), CodeAgentNotFound},
		{"agent timeout", NewSubSystemError("agent", "Invoke", ErrTimeout, ""), CodeAgentTimeout},
		{"backend timeout", NewSubSystemError("backend", "Load", ErrTimeout, ""), CodeBackendTimeout},
		{"constraint input", NewSubSystemError("constraint", "Register", ErrInvalidInput, ""), CodeConstraintInput},
		{"unknown subsystem falls back", NewSubSystemError("other", "Op", ErrNotFound, ""), CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCodeOf(tt.err))
		})
	}
}

func TestNewSubSystemError_Format(t *testing.T) {
	err := NewSubSystemError("agent", "Get", ErrNotFound, "reasoner")
	assert.Equal(t, "Get: reasoner: not found", err.Error())
	assert.Equal(t, "agent", err.SubSystem)
}

func TestDomainError_CodeUnknownSentinel(t *testing.T) {
	err := NewDomainError("Op", fmt.Errorf("custom"), "detail")
	assert.Equal(t, CodeUnknown, err.Code())
}

func TestWrapOp(t *testing.T) {
	assert.Nil(t, WrapOp("anything", nil))

	err := WrapOp("Store.Fragment", ErrFragmentNotFound)
	assert.Equal(t, "Store.Fragment: fragment not found", err.Error())
	assert.True(t, errors.Is(err, ErrFragmentNotFound))
	assert.Equal(t, CodeFragmentNotFound, ErrorCodeOf(err))

	outer := WrapOp("outer", err)
	assert.Equal(t, "outer: Store.Fragment: fragment not found", outer.Error())
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, IsRetryableError(ErrRateLimit))
	assert.True(t, IsRetryableError(fmt.Errorf("llm call: %w", ErrServerFailure)))
	assert.True(t, IsRetryableError(NewDomainError("Ollama.Load", ErrBackendUnavailable, "")))
	assert.False(t, IsRetryableError(ErrAuthInvalid))
	assert.False(t, IsRetryableError(fmt.Errorf("random error")))
	assert.False(t, IsRetryableError(nil))
}
