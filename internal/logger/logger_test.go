package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup(t *testing.T) {
	for _, tt := range []struct {
		env        string
		json       bool
		debugShown bool
	}{
		{env: EnvLocal, json: false, debugShown: true},
		{env: EnvDev, json: true, debugShown: true},
		{env: EnvProd, json: true, debugShown: false},
		{env: "staging", json: true, debugShown: false},
	} {
		t.Run(tt.env, func(t *testing.T) {
			var buf bytes.Buffer
			log := setup(&buf, tt.env)

			log.Debug("debug line")
			assert.Equal(t, tt.debugShown, buf.Len() > 0)

			buf.Reset()
			log.Info("info line", Err(errors.New("boom")))
			require.NotZero(t, buf.Len())

			if !tt.json {
				assert.Contains(t, buf.String(), "error=boom")
				return
			}

			var entry map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
			assert.Equal(t, "info line", entry["msg"])
			assert.Equal(t, "boom", entry["error"])
		})
	}
}
