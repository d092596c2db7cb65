package diagnostics

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stvp/rollbar"
)

type spyReporter struct {
	errs   []error
	extras []map[string]string
}

func (s *spyReporter) Report(err error, extras map[string]string) {
	s.errs = append(s.errs, err)
	s.extras = append(s.extras, extras)
}

func TestMulti_ReportsToAll(t *testing.T) {
	a, b := &spyReporter{}, &spyReporter{}
	cause := errors.New("boom")

	Multi{a, b}.Report(cause, map[string]string{"op": "import"})

	require.Len(t, a.errs, 1)
	require.Len(t, b.errs, 1)
	assert.Equal(t, cause, b.errs[0])
	assert.Equal(t, "import", a.extras[0]["op"])
}

func TestNew_WithoutToken(t *testing.T) {
	spy := &spyReporter{}
	r, closeFn := New(Config{}, slog.New(slog.DiscardHandler), spy)
	defer closeFn()

	multi, ok := r.(Multi)
	require.True(t, ok)
	assert.Len(t, multi, 1)

	r.Report(errors.New("x"), nil)
	assert.Len(t, spy.errs, 1)
}

func TestNew_WithToken(t *testing.T) {
	oldToken, oldEnv, oldVersion := rollbar.Token, rollbar.Environment, rollbar.CodeVersion
	t.Cleanup(func() {
		rollbar.Token, rollbar.Environment, rollbar.CodeVersion = oldToken, oldEnv, oldVersion
	})

	r, closeFn := New(Config{RollbarToken: "tok", Environment: "staging", CodeVersion: "1.2.3"}, slog.New(slog.DiscardHandler))
	require.NotNil(t, closeFn)

	multi, ok := r.(Multi)
	require.True(t, ok)
	require.Len(t, multi, 1)
	assert.IsType(t, &Rollbar{}, multi[0])
	assert.Equal(t, "tok", rollbar.Token)
	assert.Equal(t, "staging", rollbar.Environment)
	assert.Equal(t, "1.2.3", rollbar.CodeVersion)
}
