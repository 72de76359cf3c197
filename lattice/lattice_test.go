package lattice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/capgen/errors"
	"github.com/teranos/capgen/ir"
)

func TestDefaultTable(t *testing.T) {
	l := Default()

	assert.Equal(t, "Base", l.Base())
	assert.Equal(t, []string{"Base", "DoubleEnded", "ExactSize", "SizedDoubleEnded"}, l.Names())

	list, err := l.Subsumes("SizedDoubleEnded")
	require.NoError(t, err)
	assert.Equal(t, []string{"Base", "ExactSize", "DoubleEnded"}, list)

	assert.True(t, l.Known("ExactSize"))
	assert.False(t, l.Known("Rev"))
}

func TestResolve(t *testing.T) {
	l := Default()

	tests := []struct {
		name      string
		composite string
		strips    []string
		want      string
	}{
		{"degrades to most specific survivor", "SizedDoubleEnded", []string{"ExactSize"}, "DoubleEnded"},
		{"strips the top entry", "SizedDoubleEnded", []string{"DoubleEnded"}, "ExactSize"},
		{"strips two", "SizedDoubleEnded", []string{"DoubleEnded", "ExactSize"}, "Base"},
		{"no survivor falls back to base", "Base", []string{"Base"}, "Base"},
		{"irrelevant strip", "ExactSize", []string{"DoubleEnded"}, "ExactSize"},
		{"base scenario", "ExactSize", []string{"ExactSize"}, "Base"},
		{"no strips", "DoubleEnded", nil, "DoubleEnded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := l.Resolve(tt.composite, tt.strips)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveUnknownComposite(t *testing.T) {
	_, err := Default().Resolve("SizedDoubleEnd", []string{"ExactSize"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownCapabilityComposite))
	assert.True(t, errors.IsSelectionError(err))
	assert.Contains(t, errors.GetAllHints(err), "did you mean SizedDoubleEnded?")

	_, err = Default().Subsumes("Stream")
	assert.True(t, errors.Is(err, ErrUnknownCapabilityComposite))
}

func TestNewWithConfiguredComposites(t *testing.T) {
	l, err := New("Iterable", map[string][]string{
		"Random":       {"Iterable", "ExactSize", "Random"},
		"SizedReverse": {"Iterable", "ExactSize", "DoubleEnded"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Iterable", l.Base())
	assert.True(t, l.Known("Random"))
	assert.False(t, l.Known("Base"))

	got, err := l.Resolve("Random", []string{"Random", "ExactSize"})
	require.NoError(t, err)
	assert.Equal(t, "Iterable", got)
}

func TestNewRejectsBadComposites(t *testing.T) {
	tests := []struct {
		name  string
		base  string
		extra map[string][]string
	}{
		{"empty list", "", map[string][]string{"Empty": {}}},
		{"unknown member", "", map[string][]string{"Odd": {"Base", "Missing"}}},
		{"duplicate member", "", map[string][]string{"Twice": {"Base", "Base"}}},
		{"bad name", "", map[string][]string{"not-ident": {"Base"}}},
		{"bad base", "9lives", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.base, tt.extra)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidComposite))
		})
	}
}

func TestResolveReturn(t *testing.T) {
	l := Default()

	toList := &ir.Method{Name: "ToList", LiteralReturn: true, ReturnType: ir.MustParseResults("([]any, error)")}
	each := &ir.Method{Name: "Each", LiteralReturn: true}
	mapM := &ir.Method{Name: "Map", ReturnType: ir.MustParseResults("Seq")}
	filter := &ir.Method{Name: "Filter", ReturnType: ir.MustParseResults("Seq"), Strips: []string{"ExactSize"}}

	ret, err := l.ResolveReturn(toList, "ExactSize")
	require.NoError(t, err)
	assert.Equal(t, ReturnLiteral, ret.Kind)
	assert.Equal(t, "([]any, error)", ret.Type.String())

	ret, err = l.ResolveReturn(each, "ExactSize")
	require.NoError(t, err)
	assert.Equal(t, ReturnNone, ret.Kind)

	ret, err = l.ResolveReturn(mapM, "Unlisted")
	require.NoError(t, err, "composite is only needed for methods that strip")
	assert.Equal(t, ReturnSelf, ret.Kind)

	ret, err = l.ResolveReturn(filter, "ExactSize")
	require.NoError(t, err)
	assert.Equal(t, Return{Kind: ReturnWrapper, Capability: "Base"}, ret)

	_, err = l.ResolveReturn(filter, "Unlisted")
	assert.True(t, errors.Is(err, ErrUnknownCapabilityComposite))
}

func TestReturnKindString(t *testing.T) {
	assert.Equal(t, "self", ReturnSelf.String())
	assert.Equal(t, "wrapper", ReturnWrapper.String())
	assert.Equal(t, "NewDoubleEnded", WrapperConstructor("DoubleEnded"))
}
