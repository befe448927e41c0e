package kongtest

import (
	"testing"
	"time"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
)

func TestHelp(t *testing.T) {
	type cli struct {
		StringVar   string        `default:"string-default" env:"STRING_VAR" help:"A string"`
		IntVar      int           `default:"123" env:"INT_VAR"`
		BoolVar     bool          `default:"true" env:"BOOL_VAR"`
		DurationVar time.Duration `default:"10s" env:"DURATION_VAR"`
	}

	c := cli{}
	s := Help(t, &c)
	assert.Check(t, cmp.Contains(s, "Usage: test-app"))
	assert.Check(t, cmp.Contains(s, "--string-var="))
	assert.Check(t, cmp.Contains(s, "A string"))
	assert.Check(t, cmp.DeepEqual(c, cli{
		StringVar:   "string-default",
		IntVar:      123,
		BoolVar:     true,
		DurationVar: 10 * time.Second,
	}))
}

func TestHelp_Command(t *testing.T) {
	type cli struct {
		Verbose bool `help:"Say more"`
		Run     struct {
			Times int `default:"1" help:"How many times to run"`
		} `cmd:"" help:"Run it"`
	}

	s := Help(t, &cli{}, "run")
	assert.Check(t, cmp.Contains(s, "Usage: test-app run"))
	assert.Check(t, cmp.Contains(s, "How many times to run"))
}
