package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnalyzers(t *testing.T) {
	names := make(map[string]bool)
	for _, analyzer := range analyzers(ConfigData{Staticcheck: []string{"SA4006", "NOPE"}}) {
		names[analyzer.Name] = true
	}

	assert.True(t, names["noexit"])
	assert.True(t, names["ineffassign"])
	assert.True(t, names["nilerr"])
	assert.True(t, names["printf"])
	assert.True(t, names["SA4006"])
	assert.False(t, names["SA1000"], "only configured staticcheck analyzers are enabled")
	assert.False(t, names["NOPE"])
}

func TestLoadConfigDefault(t *testing.T) {
	cfg, err := loadConfig()
	assert.NoError(t, err)
	assert.NotEmpty(t, cfg.Staticcheck)
}
