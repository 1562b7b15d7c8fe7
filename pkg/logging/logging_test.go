package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
)

func TestInit_DoesNotPanic(t *testing.T) {
	defer Init(false, false)

	for _, tc := range []struct{ debug, human bool }{
		{false, false}, {true, false}, {false, true}, {true, true},
	} {
		Init(tc.debug, tc.human)
		L().Info().Msg("info")
		L().Debug().Msg("debug")
		if IsPrettyMode() != tc.human {
			t.Errorf("Init(%v, %v): IsPrettyMode = %v", tc.debug, tc.human, IsPrettyMode())
		}
	}
}

func TestWithPhase(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))
	defer Init(false, false)

	log := WithPhase("aggregate")
	log.Info().Msg("test message")

	if !bytes.Contains(buf.Bytes(), []byte(`"phase":"aggregate"`)) {
		t.Errorf("expected phase field in output, got: %s", buf.String())
	}
}

func TestSetLogger(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf).With().Str("custom", "field").Logger())
	defer Init(false, false)

	L().Info().Msg("test")

	if !bytes.Contains(buf.Bytes(), []byte(`"custom":"field"`)) {
		t.Errorf("expected custom field in output, got: %s", buf.String())
	}
}
