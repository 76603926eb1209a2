package parse

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/and161185/smsrouter/internal/errs"
	"github.com/and161185/smsrouter/internal/model"
)

func TestParser_FirstMatchWins(t *testing.T) {
	p := New()
	require.NoError(t, p.Register("first", Keyword("hello")))
	require.NoError(t, p.Register("second", Keyword("hello")))

	res, err := p.Parse("+hello")
	require.NoError(t, err)
	require.Equal(t, model.Kind("first"), res.Kind)
}

func TestParser_PriorityOrderNotBestMatch(t *testing.T) {
	// The later grammar would consume more of the input, but the earlier
	// one still wins.
	p := New()
	require.NoError(t, p.Register("short", Keyword("reg", Opt("name"))))
	require.NoError(t, p.Register("long", Keyword("reg", Req("name"), Req("location"))))

	res, err := p.Parse("+reg alice")
	require.NoError(t, err)
	require.Equal(t, model.Kind("short"), res.Kind)
}

func TestParser_TrimsInput(t *testing.T) {
	p := New()
	require.NoError(t, p.Register("hello", Keyword("hello")))

	res, err := p.Parse("  \t+hello \n")
	require.NoError(t, err)
	require.Equal(t, model.Kind("hello"), res.Kind)
	require.Equal(t, "", res.Remaining)
}

func TestParser_NotUnderstoodFallback(t *testing.T) {
	p := New()
	require.NoError(t, p.Register("hello", Keyword("hello")))

	res, err := p.Parse("  +unknown stuff ")
	require.NoError(t, err)
	require.Equal(t, model.KindNotUnderstood, res.Kind)
	require.Equal(t, "+unknown stuff", res.Fields["text"])
	require.Equal(t, "", res.Remaining)
}

func TestParser_EmptyInputFallsThrough(t *testing.T) {
	p := New()
	require.NoError(t, p.Register("hello", Keyword("hello")))

	res, err := p.Parse("")
	require.NoError(t, err)
	require.Equal(t, model.KindNotUnderstood, res.Kind)
}

func TestParser_BlankGrammarClaimsEmptyInput(t *testing.T) {
	p := New()
	require.NoError(t, p.Register("empty", Blank()))
	require.NoError(t, p.Register("hello", Keyword("hello")))

	res, err := p.Parse("   ")
	require.NoError(t, err)
	require.Equal(t, model.Kind("empty"), res.Kind)

	res, err = p.Parse("+hello")
	require.NoError(t, err)
	require.Equal(t, model.Kind("hello"), res.Kind)
}

func TestParser_FormatErrorIsAuthoritative(t *testing.T) {
	p := New()
	require.NoError(t, p.Register("reg", Keyword("reg", Req("name"))))
	// A later grammar that would happily match the same keyword.
	require.NoError(t, p.Register("fallback", func(string) (model.Fields, string, error) {
		return model.Fields{}, "", nil
	}))

	res, err := p.Parse("+reg")
	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	require.Contains(t, fe.Text, "+reg")
	require.Equal(t, model.Kind("reg"), res.Kind)
}

func TestParser_Idempotent(t *testing.T) {
	p := New()
	require.NoError(t, p.Register("reg", Keyword("reg", Req("name"), Opt("location"))))

	first, err := p.Parse("+reg alice, kampala")
	require.NoError(t, err)
	second, err := p.Parse("+reg alice, kampala")
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestParser_RegisterDuplicateKind(t *testing.T) {
	p := New()
	require.NoError(t, p.Register("hello", Keyword("hello")))
	err := p.Register("hello", Keyword("hi"))
	require.ErrorIs(t, err, errs.ErrAlreadyExists)
}

func TestParser_RegisterReservedKind(t *testing.T) {
	p := New()
	require.Error(t, p.Register(model.KindNotUnderstood, Keyword("x")))
}

func TestParser_GrammarDefectPropagates(t *testing.T) {
	boom := errors.New("boom")
	p := New()
	require.NoError(t, p.Register("bad", func(string) (model.Fields, string, error) {
		return nil, "", boom
	}))

	_, err := p.Parse("anything")
	require.ErrorIs(t, err, boom)
}

func TestKeyword_ChainedCommands(t *testing.T) {
	p := New()
	require.NoError(t, p.Register("hello", Keyword("hello")))

	res, err := p.Parse("+hello +hello")
	require.NoError(t, err)
	require.Equal(t, model.Kind("hello"), res.Kind)
	require.Equal(t, "+hello", res.Remaining)

	res, err = p.Parse(res.Remaining)
	require.NoError(t, err)
	require.Equal(t, model.Kind("hello"), res.Kind)
	require.Equal(t, "", res.Remaining)
}

func TestKeyword_Arguments(t *testing.T) {
	g := Keyword("reg", Req("name"), Opt("location"))

	fields, remaining, err := g("+reg alice, kampala")
	require.NoError(t, err)
	require.Equal(t, "", remaining)
	require.Equal(t, model.Fields{"name": "alice", "location": "kampala"}, fields)

	fields, _, err = g("+REG bob")
	require.NoError(t, err)
	require.Equal(t, model.Fields{"name": "bob"}, fields)
}

func TestKeyword_MissingRequiredArgument(t *testing.T) {
	g := Keyword("reg", Req("name"))

	_, _, err := g("+reg")
	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	require.Contains(t, fe.Text, "name")
}

func TestKeyword_SurplusArgument(t *testing.T) {
	g := Keyword("reg", Req("name"))

	_, _, err := g("+reg alice, kampala")
	var fe *FormatError
	require.ErrorAs(t, err, &fe)
}

func TestKeyword_ArgumentsStopAtNextCommand(t *testing.T) {
	g := Keyword("reg", Req("name"))

	fields, remaining, err := g("+reg alice +hello")
	require.NoError(t, err)
	require.Equal(t, "alice", fields["name"])
	require.Equal(t, "+hello", remaining)
}

func TestKeyword_NoMatch(t *testing.T) {
	g := Keyword("reg")

	_, _, err := g("+register")
	require.ErrorIs(t, err, ErrNoMatch)

	_, _, err = g("reg")
	require.ErrorIs(t, err, ErrNoMatch)
}
