package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/osa030/renify/internal/infra/config"
)

func TestResolveLoggerConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Log.Output = "stdout"
	cfg.Log.Level = "info"

	tests := []struct {
		name    string
		verbose bool
		logfile string
		want    string // expected output target
		level   string
	}{
		{name: "config only", want: "stdout", level: "info"},
		{name: "verbose flag overrides level", verbose: true, want: "stdout", level: "debug"},
		{name: "logfile flag overrides output", logfile: "/var/log/renify.log", want: "/var/log/renify.log", level: "info"},
		{name: "both flags", verbose: true, logfile: "/var/log/renify.log", want: "/var/log/renify.log", level: "debug"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lc := resolveLoggerConfig(cfg, tt.verbose, tt.logfile)
			assert.Equal(t, tt.want, lc.Output)
			assert.Equal(t, tt.level, lc.Level)
			if tt.logfile != "" {
				assert.Equal(t, tt.logfile, lc.File)
			}
		})
	}
}
